// Package pko reads PKO BP account history exports.
//
// The export is comma separated with a single header row. Columns 0, 3 and
// 4 hold the operation date, signed amount and currency; columns 6 to 11
// hold free-form details such as "Tytuł: ..." or "Adres: ...".
package pko

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	"github.com/ArionMiles/bankanalyzer/pkg/reader/statement"
)

// Name is the bank identifier stamped on parsed transactions.
const Name = "PKO"

const (
	headerMarker = "Data operacji"
	dateLayout   = time.DateOnly
	minColumns   = 6

	detailsFrom = 6
	detailsTo   = 12
)

var (
	// Labels PKO puts in front of detail values.
	labelPattern = regexp.MustCompile(`(?i)^(Tytu[łl]|Lokalizacja|Nazwa odbiorcy|Adres|Rachunek odbiorcy|Data wykonania|Oryginalna kwota|Numer karty|Numer telefonu|Operacja|Numer referencyjny):\s*`)

	recipientPattern = regexp.MustCompile(`(?i)Nazwa odbiorcy:\s*(.+)`)
	addressPattern   = regexp.MustCompile(`(?i)Adres:\s*([^M]+?)(?:\s*Miasto:|Kraj:|$)`)
	cardSuffix       = regexp.MustCompile(`\s+K\.\d+`)
	titlePrefix      = regexp.MustCompile(`(?i)^Tytu[łl]:\s*`)
	chunkSeparator   = regexp.MustCompile(`\s{2,}|,\s+|\s+\d{2,}`)
)

// Columns starting with these hold technical data, never a name.
var technicalPrefixes = []string{"Data", "Oryginalna", "Numer", "Operacja"}

// Reader parses PKO BP statements.
type Reader struct {
	logger *slog.Logger
}

// New creates a PKO reader.
func New(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger.With("component", "reader", "bank", Name)}
}

// Name returns "PKO".
func (r *Reader) Name() string { return Name }

// CanParse reports whether the first line carries the PKO header.
func (r *Reader) CanParse(path string) bool {
	lines, err := statement.HeadLines(path, 1)
	if err != nil {
		r.logger.Warn("checking PKO format", "path", path, "error", err)
		return false
	}
	return len(lines) == 1 && strings.Contains(lines[0], headerMarker)
}

// Parse reads every transaction in the file. Rows that cannot be parsed
// are logged at debug level and skipped.
func (r *Reader) Parse(path string) ([]*api.Transaction, error) {
	text, err := statement.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading PKO statement: %w", err)
	}
	rows, err := statement.Rows(text, ',', 1)
	if err != nil {
		return nil, fmt.Errorf("parsing PKO statement %s: %w", filepath.Base(path), err)
	}
	return statement.Collect(r.logger, Name, filepath.Base(path), rows, parseRow), nil
}

func parseRow(row statement.Row) (*api.Transaction, error) {
	if len(row.Fields) < minColumns || row.Blank(minColumns) {
		return nil, nil
	}
	dateText := row.Field(0)
	if dateText == "" {
		return nil, nil
	}

	date, err := time.Parse(dateLayout, dateText)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", dateText)
	}
	amount, typ, err := statement.ParseAmount(row.Field(3))
	if err != nil {
		return nil, err
	}

	details := detailColumns(row)
	tx := api.NewTransaction(date, description(details), amount, typ)
	tx.Counterparty = counterparty(details)
	if currency := row.Field(4); currency != "" {
		tx.Currency = currency
	}
	return tx, nil
}

func detailColumns(row statement.Row) []string {
	var cols []string
	for i := detailsFrom; i < min(detailsTo, len(row.Fields)); i++ {
		cols = append(cols, row.Field(i))
	}
	return cols
}

func description(details []string) string {
	var parts []string
	for _, col := range details {
		if col == "" {
			continue
		}
		if col = labelPattern.ReplaceAllString(col, ""); col != "" {
			parts = append(parts, col)
		}
	}
	return statement.CleanText(strings.Join(parts, " "))
}

// counterparty prefers an explicit recipient, then the store name from a
// card payment address, then the first meaningful chunk of free text.
func counterparty(details []string) string {
	for _, col := range details {
		if m := recipientPattern.FindStringSubmatch(col); m != nil {
			if name := statement.CleanText(m[1]); name != "" {
				return name
			}
		}
	}

	for _, col := range details {
		if m := addressPattern.FindStringSubmatch(col); m != nil {
			name := cardSuffix.ReplaceAllString(statement.CleanText(m[1]), "")
			if len([]rune(name)) > 2 {
				return name
			}
		}
	}

	for _, col := range details {
		if col == "" || technical(col) {
			continue
		}
		text := titlePrefix.ReplaceAllString(statement.CleanText(col), "")
		if loc := chunkSeparator.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
		}
		if name := statement.CleanText(text); len([]rune(name)) > 2 {
			return name
		}
	}

	return statement.UnknownCounterparty
}

func technical(col string) bool {
	for _, p := range technicalPrefixes {
		if strings.HasPrefix(col, p) {
			return true
		}
	}
	return false
}
