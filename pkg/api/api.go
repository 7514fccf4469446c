// Package api defines the core interfaces and data structures for bankanalyzer.
package api

import "context"

// Sentinel category pair assigned when no override or rule applies.
const (
	DefaultCategoryMain = "Inne wydatki"
	DefaultCategorySub  = "Nieprzypisane"
)

// UnknownBank is reported when no reader recognizes a statement file.
const UnknownBank = "UNKNOWN"

// Category is a two-level category assignment.
type Category struct {
	Main string `json:"category_main" yaml:"category_main"`
	Sub  string `json:"category_sub" yaml:"category_sub"`
}

// Uncategorized is the fallback "Inne wydatki / Nieprzypisane" pair.
var Uncategorized = Category{Main: DefaultCategoryMain, Sub: DefaultCategorySub}

// IsUncategorized reports whether the subcategory is the unassigned sentinel.
func (c Category) IsUncategorized() bool {
	return c.Sub == DefaultCategorySub
}

// Key renders the pair as "main > sub".
func (c Category) Key() string {
	return c.Main + " > " + c.Sub
}

// Reader parses one bank's statement export into transactions.
type Reader interface {
	// Name returns the bank identifier (e.g. "PKO", "ALIOR").
	Name() string
	// CanParse reports whether the file looks like this bank's export.
	CanParse(path string) bool
	// Parse reads every transaction from the file. Malformed rows are skipped.
	Parse(path string) ([]*Transaction, error)
}

// Writer exports an aggregated report to a destination.
// Implementations must treat the report as read-only; several writers
// may receive the same report concurrently.
type Writer interface {
	Write(ctx context.Context, report *Report) error
}
