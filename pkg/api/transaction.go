package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType carries the sign of a transaction.
type TransactionType string

// Transaction types.
const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

// DefaultCurrency is used when a statement row carries no currency.
const DefaultCurrency = "PLN"

// isoLayout matches the timestamp text used when deriving transaction ids.
const isoLayout = "2006-01-02T15:04:05"

// Transaction is one normalized statement entry.
//
// Amount is always a non-negative magnitude; Type carries the sign.
// CategoryMain and CategorySub stay empty until the transaction is categorized.
type Transaction struct {
	ID           string
	Date         time.Time
	Description  string
	Counterparty string
	Amount       decimal.Decimal
	Type         TransactionType
	Currency     string
	SourceBank   string
	SourceFile   string
	ProcessedAt  time.Time

	CategoryMain   string
	CategorySub    string
	ManualOverride bool
}

// NewTransaction builds a transaction with a derived id, the default
// currency and the current processing time.
func NewTransaction(date time.Time, description string, amount decimal.Decimal, typ TransactionType) *Transaction {
	amount = amount.Abs()
	return &Transaction{
		ID:          TransactionID(date, description, amount),
		Date:        date,
		Description: description,
		Amount:      amount,
		Type:        typ,
		Currency:    DefaultCurrency,
		ProcessedAt: time.Now(),
	}
}

// TransactionID derives the stable identifier of a transaction: the first
// 16 hex characters of sha256(date + description + amount). Transactions
// sharing all three collide on purpose.
func TransactionID(date time.Time, description string, amount decimal.Decimal) string {
	sum := sha256.Sum256([]byte(isoFormat(date) + description + DecimalText(amount)))
	return hex.EncodeToString(sum[:])[:16]
}

// DecimalText renders d keeping the scale it was parsed with, so 100.00
// stays "100.00" instead of collapsing to "100".
func DecimalText(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

func isoFormat(t time.Time) string {
	s := t.Format(isoLayout)
	if us := t.Nanosecond() / 1000; us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s
}

// Category returns the assigned pair, substituting the sentinels for
// missing parts.
func (t *Transaction) Category() Category {
	c := Category{Main: t.CategoryMain, Sub: t.CategorySub}
	if c.Main == "" {
		c.Main = DefaultCategoryMain
	}
	if c.Sub == "" {
		c.Sub = DefaultCategorySub
	}
	return c
}

// SetCategory assigns a category pair.
func (t *Transaction) SetCategory(c Category) {
	t.CategoryMain = c.Main
	t.CategorySub = c.Sub
}

// IsExpense reports whether the transaction is an outflow.
func (t *Transaction) IsExpense() bool {
	return t.Type == Expense
}

func (t *Transaction) String() string {
	main := t.CategoryMain
	if main == "" {
		main = "N/A"
	}
	return fmt.Sprintf("%s | %-20s | %10.2f %s | %s",
		t.Date.Format(time.DateOnly),
		truncate(t.Counterparty, 20),
		t.Amount.InexactFloat64(),
		t.Currency,
		main,
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// transactionRecord is the flat serialized form of a Transaction.
type transactionRecord struct {
	ID              string          `json:"id"`
	Date            string          `json:"date"`
	Description     string          `json:"description"`
	Counterparty    string          `json:"counterparty"`
	Amount          float64         `json:"amount"`
	TransactionType TransactionType `json:"transaction_type"`
	Currency        string          `json:"currency"`
	CategoryMain    *string         `json:"category_main"`
	CategorySub     *string         `json:"category_sub"`
	SourceBank      string          `json:"source_bank"`
	SourceFile      string          `json:"source_file"`
	ManualOverride  bool            `json:"manual_override"`
	ProcessedAt     string          `json:"processed_at"`
}

// MarshalJSON renders the transaction with float amounts and null
// categories when unassigned.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionRecord{
		ID:              t.ID,
		Date:            isoFormat(t.Date),
		Description:     t.Description,
		Counterparty:    t.Counterparty,
		Amount:          t.Amount.InexactFloat64(),
		TransactionType: t.Type,
		Currency:        t.Currency,
		CategoryMain:    optional(t.CategoryMain),
		CategorySub:     optional(t.CategorySub),
		SourceBank:      t.SourceBank,
		SourceFile:      t.SourceFile,
		ManualOverride:  t.ManualOverride,
		ProcessedAt:     isoFormat(t.ProcessedAt),
	})
}

// UnmarshalJSON reads the form produced by MarshalJSON. A missing id is
// derived from the content.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var rec struct {
		transactionRecord
		Amount json.Number `json:"amount"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	date, err := parseISO(rec.Date)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", rec.Date, err)
	}
	amount, err := decimal.NewFromString(rec.Amount.String())
	if err != nil {
		return fmt.Errorf("parsing amount %q: %w", rec.Amount, err)
	}

	*t = Transaction{
		ID:             rec.ID,
		Date:           date,
		Description:    rec.Description,
		Counterparty:   rec.Counterparty,
		Amount:         amount,
		Type:           rec.TransactionType,
		Currency:       rec.Currency,
		SourceBank:     rec.SourceBank,
		SourceFile:     rec.SourceFile,
		ManualOverride: rec.ManualOverride,
	}
	if rec.CategoryMain != nil {
		t.CategoryMain = *rec.CategoryMain
	}
	if rec.CategorySub != nil {
		t.CategorySub = *rec.CategorySub
	}
	if rec.ProcessedAt != "" {
		if t.ProcessedAt, err = parseISO(rec.ProcessedAt); err != nil {
			return fmt.Errorf("parsing processed_at %q: %w", rec.ProcessedAt, err)
		}
	}
	if t.ID == "" {
		t.ID = TransactionID(t.Date, t.Description, t.Amount)
	}
	return nil
}

func parseISO(s string) (time.Time, error) {
	for _, layout := range []string{isoLayout, time.DateOnly} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Parse(time.RFC3339Nano, s)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
