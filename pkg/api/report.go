package api

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// Cell accumulates the transactions of one (main, sub) category.
// Yearly roll-up cells carry no transactions.
type Cell struct {
	Total        decimal.Decimal `json:"total"`
	Count        int             `json:"count"`
	Transactions []*Transaction  `json:"transactions,omitempty"`
}

// CategoryTree maps category_main to category_sub to a Cell and remembers
// the order in which pairs were first seen. The zero value is ready to use.
type CategoryTree struct {
	cells map[string]map[string]*Cell
	order []Category
}

// Cell returns the cell for c, creating it if needed.
func (t *CategoryTree) Cell(c Category) *Cell {
	if t.cells == nil {
		t.cells = make(map[string]map[string]*Cell)
	}
	subs, ok := t.cells[c.Main]
	if !ok {
		subs = make(map[string]*Cell)
		t.cells[c.Main] = subs
	}
	cell, ok := subs[c.Sub]
	if !ok {
		cell = &Cell{Total: decimal.Zero}
		subs[c.Sub] = cell
		t.order = append(t.order, c)
	}
	return cell
}

// Lookup returns the cell for c without creating it.
func (t *CategoryTree) Lookup(c Category) (*Cell, bool) {
	cell, ok := t.cells[c.Main][c.Sub]
	return cell, ok
}

// Main returns the subcategory cells of one main category.
func (t *CategoryTree) Main(main string) (map[string]*Cell, bool) {
	subs, ok := t.cells[main]
	return subs, ok
}

// Keys returns every pair in first-seen order.
func (t *CategoryTree) Keys() []Category {
	return slices.Clone(t.order)
}

// MainKeys returns the main categories in first-seen order.
func (t *CategoryTree) MainKeys() []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range t.order {
		if !seen[c.Main] {
			seen[c.Main] = true
			out = append(out, c.Main)
		}
	}
	return out
}

// Len returns the number of (main, sub) pairs.
func (t *CategoryTree) Len() int {
	return len(t.order)
}

// Map returns a shallow copy of the nested mapping.
func (t *CategoryTree) Map() map[string]map[string]*Cell {
	out := make(map[string]map[string]*Cell, len(t.cells))
	for main, subs := range t.cells {
		out[main] = maps.Clone(subs)
	}
	return out
}

// MarshalJSON renders the tree as nested objects.
func (t CategoryTree) MarshalJSON() ([]byte, error) {
	if t.cells == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t.cells)
}

// Month is the breakdown of one calendar month.
// Total is the sum of every amount in the month, income and expense alike.
type Month struct {
	Categories   CategoryTree    `json:"categories"`
	Total        decimal.Decimal `json:"total"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
}

// Year is the breakdown of one calendar year.
type Year struct {
	Months           map[int]*Month  `json:"months"`
	TotalYear        decimal.Decimal `json:"total_year"`
	TotalYearIncome  decimal.Decimal `json:"total_year_income"`
	TotalYearExpense decimal.Decimal `json:"total_year_expense"`
	CategoriesYear   CategoryTree    `json:"categories_year"`
}

// MonthKeys returns the months present in ascending order.
func (y *Year) MonthKeys() []int {
	return slices.Sorted(maps.Keys(y.Months))
}

// Summary holds pipeline-wide counts.
type Summary struct {
	TotalTransactions  int `json:"total_transactions"`
	TotalCategorized   int `json:"total_categorized"`
	TotalUncategorized int `json:"total_uncategorized"`
}

// Report is the aggregated view handed to writers.
type Report struct {
	Years           map[int]*Year  `json:"years"`
	Uncategorized   []*Transaction `json:"uncategorized"`
	AllTransactions []*Transaction `json:"all_transactions"`
	Summary         Summary        `json:"summary"`

	// RunID identifies the pipeline run that produced the report.
	RunID string `json:"-"`
}

// YearKeys returns the years present in ascending order.
func (r *Report) YearKeys() []int {
	return slices.Sorted(maps.Keys(r.Years))
}

// Month looks up a single month.
func (r *Report) Month(year, month int) (*Month, bool) {
	y, ok := r.Years[year]
	if !ok {
		return nil, false
	}
	m, ok := y.Months[month]
	return m, ok
}
