// Package statement holds the plumbing shared by bank statement readers:
// encoding detection, text cleanup, amount parsing and row tolerant CSV
// reading.
package statement

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

// UnknownCounterparty is used when no counterparty can be extracted.
const UnknownCounterparty = "Nieznany"

var bom = []byte{0xEF, 0xBB, 0xBF}

// Decode returns the text of a statement export. A UTF-8 byte order mark
// is dropped; content that is not valid UTF-8 is decoded as windows-1250,
// the code page Polish banks export with.
func Decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, bom)
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := charmap.Windows1250.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decoding windows-1250: %w", err)
	}
	return string(out), nil
}

// ReadFile reads and decodes a statement file.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Decode(data)
}

// HeadLines returns up to n leading lines of a decoded statement file.
func HeadLines(path string, n int) ([]string, error) {
	text, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for len(lines) < n && sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// CleanText collapses whitespace runs into single spaces and trims the ends.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseAmount reads a signed Polish amount such as "-1 234,56". A leading
// minus marks an expense; anything else is income. The returned magnitude
// keeps the scale written in the file.
func ParseAmount(s string) (decimal.Decimal, api.TransactionType, error) {
	clean := strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(s)

	typ := api.Income
	if strings.HasPrefix(clean, "-") {
		typ = api.Expense
	}
	clean = strings.TrimLeft(clean, "+-")

	amount, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("invalid amount %q", s)
	}
	return amount, typ, nil
}

// Row is one CSV record with its 1-based line number.
type Row struct {
	Line   int
	Fields []string
}

// Field returns the trimmed field at i, or "" when the row is shorter.
func (r Row) Field(i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return strings.TrimSpace(r.Fields[i])
}

// Blank reports whether the first n fields are all empty.
func (r Row) Blank(n int) bool {
	for i := range min(n, len(r.Fields)) {
		if strings.TrimSpace(r.Fields[i]) != "" {
			return false
		}
	}
	return true
}

// Rows splits text into CSV records, dropping the first skip records.
// Records may have any number of fields and stray quotes are tolerated;
// a record the CSV reader still rejects is skipped.
func Rows(text string, comma rune, skip int) ([]Row, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []Row
	for n := 0; ; n++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		if n < skip {
			continue
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, Row{Line: line, Fields: fields})
	}
	return rows, nil
}

// RowFunc converts a row into a transaction. A nil transaction with a nil
// error skips the row silently; an error skips it and counts it as failed.
type RowFunc func(Row) (*api.Transaction, error)

// Collect converts every row with parse and stamps the source bank and
// file on the results.
func Collect(logger *slog.Logger, bank, file string, rows []Row, parse RowFunc) []*api.Transaction {
	var (
		out    []*api.Transaction
		failed int
	)
	for _, row := range rows {
		tx, err := parse(row)
		if err != nil {
			failed++
			logger.Debug("skipping row", "file", file, "line", row.Line, "error", err)
			continue
		}
		if tx == nil {
			continue
		}
		tx.SourceBank = bank
		tx.SourceFile = file
		out = append(out, tx)
	}
	logger.Info("statement parsed", "bank", bank, "file", file, "transactions", len(out), "skipped", failed)
	return out
}
