// Package alior reads Alior Bank transaction history exports.
//
// The export is semicolon separated. The first line holds search metadata
// and the second the column header; transactions follow.
package alior

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
const Name = "ALIOR"

const (
	headerMarker = "Data transakcji;Data księgowania"
	dateLayout   = "02-01-2006"
	minColumns   = 7
	headerLines  = 2
)

const (
	colDate = iota
	_
	colSender
	colRecipient
	colDetails
	colAmount
	colCurrency
)

var (
	trailingCountry = regexp.MustCompile(`(?i)^(.+?)\s+PL\s*$`)
	cardSuffix      = regexp.MustCompile(`\s+K\.\d+`)
	isoDate         = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// Reader parses Alior Bank statements.
type Reader struct {
	logger *slog.Logger
}

// New creates an Alior reader.
func New(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger.With("component", "reader", "bank", Name)}
}

// Name returns "ALIOR".
func (r *Reader) Name() string { return Name }

// CanParse reports whether the second line carries the Alior header.
func (r *Reader) CanParse(path string) bool {
	lines, err := statement.HeadLines(path, headerLines)
	if err != nil {
		r.logger.Warn("checking Alior format", "path", path, "error", err)
		return false
	}
	return len(lines) == headerLines && strings.Contains(lines[1], headerMarker)
}

// Parse reads every transaction in the file.
func (r *Reader) Parse(path string) ([]*api.Transaction, error) {
	text, err := statement.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading Alior statement: %w", err)
	}
	rows, err := statement.Rows(text, ';', headerLines)
	if err != nil {
		return nil, fmt.Errorf("parsing Alior statement %s: %w", filepath.Base(path), err)
	}
	return statement.Collect(r.logger, Name, filepath.Base(path), rows, parseRow), nil
}

func parseRow(row statement.Row) (*api.Transaction, error) {
	if len(row.Fields) < minColumns || row.Blank(minColumns) {
		return nil, nil
	}
	dateText := row.Field(colDate)
	if dateText == "" {
		return nil, nil
	}

	date, err := time.Parse(dateLayout, dateText)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", dateText)
	}
	amount, typ, err := statement.ParseAmount(row.Field(colAmount))
	if err != nil {
		return nil, err
	}

	sender, recipient, details := row.Field(colSender), row.Field(colRecipient), row.Field(colDetails)

	tx := api.NewTransaction(date, description(sender, recipient, details), amount, typ)
	tx.Counterparty = counterparty(sender, recipient, details)
	if currency := row.Field(colCurrency); currency != "" {
		tx.Currency = currency
	}
	return tx, nil
}

// description joins the non-empty parts as "Od: sender | Do: recipient | details".
func description(sender, recipient, details string) string {
	var parts []string
	if sender != "" {
		parts = append(parts, "Od: "+sender)
	}
	if recipient != "" {
		parts = append(parts, "Do: "+recipient)
	}
	if details != "" {
		parts = append(parts, details)
	}
	return strings.Join(parts, " | ")
}

func counterparty(sender, recipient, details string) string {
	if name := statement.CleanText(sender); name != "" {
		return name
	}
	if name := statement.CleanText(recipient); name != "" {
		return name
	}
	if details == "" {
		return statement.UnknownCounterparty
	}

	if m := trailingCountry.FindStringSubmatch(details); m != nil {
		if name := statement.CleanText(m[1]); name != "" {
			return name
		}
	}

	cleaned := isoDate.ReplaceAllString(cardSuffix.ReplaceAllString(details, ""), "")
	words := strings.Fields(cleaned)
	if name := strings.Join(words[:min(3, len(words))], " "); len([]rune(name)) > 2 {
		return name
	}
	return statement.UnknownCounterparty
}
