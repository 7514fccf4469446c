package alior

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

const sample = `Kryteria transakcji: 01-01-2024 - 31-01-2024;;;;;;
Data transakcji;Data księgowania;Nazwa nadawcy;Nazwa odbiorcy;Szczegóły transakcji;Kwota operacji;Waluta operacji
15-01-2024;16-01-2024;;;ZABKA Z5678 K.1 WARSZAWA PL;-12,99;PLN
20-01-2024;20-01-2024;PRACODAWCA SP. Z O.O.;;Wynagrodzenie;+6 500,00;PLN
22-01-2024;22-01-2024;;Jan   Nowak;Zwrot za bilety;-150,00;PLN
25-01-2024;25-01-2024;;;PRZELEW 2024-01-25 K.12 OPLATA MIESIECZNA;-5,00;EUR
2024-01-26;2024-01-26;;;Zły format daty;-1,00;PLN
26-01-2024;x;y
;;;;;;
27-01-2024;27-01-2024;;;;-1,00;
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestCanParse(t *testing.T) {
	r := New(discardLogger())

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "alior header", path: writeFile(t, "alior.csv", []byte(sample)), want: true},
		{name: "header on first line", path: writeFile(t, "first.csv", []byte("Data transakcji;Data księgowania\n")), want: false},
		{name: "pko", path: writeFile(t, "pko.csv", []byte("\"Data operacji\",\"Kwota\"\n")), want: false},
		{name: "missing", path: filepath.Join(t.TempDir(), "missing.csv"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.CanParse(tt.path); got != tt.want {
				t.Errorf("CanParse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	txs, err := New(discardLogger()).Parse(writeFile(t, "historia.csv", []byte(sample)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(txs) != 5 {
		t.Fatalf("len(txs) = %d, want 5", len(txs))
	}

	tests := []struct {
		counterparty string
		description  string
		amount       string
		typ          api.TransactionType
		currency     string
	}{
		{"ZABKA Z5678 K.1 WARSZAWA", "ZABKA Z5678 K.1 WARSZAWA PL", "12.99", api.Expense, "PLN"},
		{"PRACODAWCA SP. Z O.O.", "Od: PRACODAWCA SP. Z O.O. | Wynagrodzenie", "6500.00", api.Income, "PLN"},
		{"Jan Nowak", "Do: Jan   Nowak | Zwrot za bilety", "150.00", api.Expense, "PLN"},
		{"PRZELEW OPLATA MIESIECZNA", "PRZELEW 2024-01-25 K.12 OPLATA MIESIECZNA", "5.00", api.Expense, "EUR"},
		{"Nieznany", "", "1.00", api.Expense, "PLN"},
	}
	for i, tt := range tests {
		tx := txs[i]
		if tx.Counterparty != tt.counterparty {
			t.Errorf("txs[%d].Counterparty = %q, want %q", i, tx.Counterparty, tt.counterparty)
		}
		if tx.Description != tt.description {
			t.Errorf("txs[%d].Description = %q, want %q", i, tx.Description, tt.description)
		}
		if api.DecimalText(tx.Amount) != tt.amount || tx.Type != tt.typ {
			t.Errorf("txs[%d] amount = %s %s, want %s %s", i, api.DecimalText(tx.Amount), tx.Type, tt.amount, tt.typ)
		}
		if tx.Currency != tt.currency {
			t.Errorf("txs[%d].Currency = %q, want %q", i, tx.Currency, tt.currency)
		}
		if tx.SourceBank != Name {
			t.Errorf("txs[%d].SourceBank = %q", i, tx.SourceBank)
		}
	}

	if !txs[0].Date.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v, want transaction date 2024-01-15", txs[0].Date)
	}
}

func TestParseWindows1250(t *testing.T) {
	encoded, err := charmap.Windows1250.NewEncoder().String(sample)
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	path := writeFile(t, "cp1250.csv", []byte(encoded))

	r := New(discardLogger())
	if !r.CanParse(path) {
		t.Fatal("CanParse() = false for windows-1250 export")
	}
	txs, err := r.Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(txs) != 5 {
		t.Errorf("len(txs) = %d, want 5", len(txs))
	}
}

func TestCounterparty(t *testing.T) {
	tests := []struct {
		name                       string
		sender, recipient, details string
		want                       string
	}{
		{name: "sender first", sender: "  ACME  Sp ", recipient: "Other", want: "ACME Sp"},
		{name: "recipient", recipient: "Urząd Skarbowy", details: "Podatek", want: "Urząd Skarbowy"},
		{name: "trailing PL", details: "LIDL WROCLAW pl ", want: "LIDL WROCLAW"},
		{name: "first words", details: "Allegro.pl zakup nr 123 456", want: "Allegro.pl zakup nr"},
		{name: "too short", details: "K1", want: "Nieznany"},
		{name: "empty", want: "Nieznany"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterparty(tt.sender, tt.recipient, tt.details); got != tt.want {
				t.Errorf("counterparty() = %q, want %q", got, tt.want)
			}
		})
	}
}
