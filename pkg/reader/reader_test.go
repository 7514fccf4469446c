package reader

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

const pkoStatement = `"Data operacji","Data waluty","Typ transakcji","Kwota","Waluta","Saldo po transakcji","Opis transakcji"
"2024-01-15","2024-01-15","Płatność kartą","-45.50","PLN","1000.00","Tytuł: BIEDRONKA 1234"
`

const aliorStatement = `Kryteria transakcji;;;;;;
Data transakcji;Data księgowania;Nazwa nadawcy;Nazwa odbiorcy;Szczegóły transakcji;Kwota operacji;Waluta operacji
15-01-2024;16-01-2024;;;ZABKA Z5678 WARSZAWA PL;-12,99;PLN
16-01-2024;16-01-2024;;;LIDL PL;-20,00;PLN
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()
	d := Default(discardLogger())

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "pko", path: writeFile(t, dir, "pko.csv", pkoStatement), want: "PKO"},
		{name: "alior", path: writeFile(t, dir, "alior.csv", aliorStatement), want: "ALIOR"},
		{name: "other", path: writeFile(t, dir, "other.csv", "a,b,c\n1,2,3\n"), want: api.UnknownBank},
		{name: "missing", path: filepath.Join(dir, "missing.csv"), want: api.UnknownBank},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.DetectFormat(tt.path); got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectAndParse(t *testing.T) {
	dir := t.TempDir()
	d := Default(discardLogger())

	t.Run("alior", func(t *testing.T) {
		txs, err := d.DetectAndParse(writeFile(t, dir, "alior.csv", aliorStatement))
		if err != nil {
			t.Fatalf("DetectAndParse() error = %v", err)
		}
		if len(txs) != 2 || txs[0].SourceBank != "ALIOR" {
			t.Errorf("got %d transactions from %q", len(txs), txs[0].SourceBank)
		}
	})

	t.Run("upper case extension", func(t *testing.T) {
		txs, err := d.DetectAndParse(writeFile(t, dir, "PKO.CSV", pkoStatement))
		if err != nil || len(txs) != 1 {
			t.Errorf("DetectAndParse() = %d, %v; want 1 transaction", len(txs), err)
		}
	})

	t.Run("not csv", func(t *testing.T) {
		_, err := d.DetectAndParse(writeFile(t, dir, "statement.xlsx", pkoStatement))
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("error = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("unknown bank", func(t *testing.T) {
		_, err := d.DetectAndParse(writeFile(t, dir, "other.csv", "a,b\n"))
		if !errors.Is(err, ErrUnknownFormat) {
			t.Fatalf("error = %v, want ErrUnknownFormat", err)
		}
		if !strings.Contains(err.Error(), "PKO, ALIOR") {
			t.Errorf("error %q should list supported banks", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := d.DetectAndParse(filepath.Join(dir, "missing.csv"))
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("error = %v, want fs.ErrNotExist", err)
		}
	})
}

func TestParseFiles(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "a.csv", pkoStatement),
		writeFile(t, dir, "b.csv", "nothing to see"),
		writeFile(t, dir, "c.csv", aliorStatement),
	}

	txs, failed := Default(discardLogger()).ParseFiles(paths)

	if len(txs) != 3 {
		t.Errorf("len(txs) = %d, want 3", len(txs))
	}
	if txs[0].SourceBank != "PKO" || txs[2].SourceBank != "ALIOR" {
		t.Errorf("transactions not in file order")
	}
	if len(failed) != 1 || failed[0].Path != paths[1] || !errors.Is(failed[0], ErrUnknownFormat) {
		t.Errorf("failed = %v, want b.csv with ErrUnknownFormat", failed)
	}
}

// fakeReader recognizes every file.
type fakeReader struct{ name string }

func (f fakeReader) Name() string                             { return f.name }
func (f fakeReader) CanParse(string) bool                     { return true }
func (f fakeReader) Parse(string) ([]*api.Transaction, error) { return nil, nil }

func TestDetectorOrder(t *testing.T) {
	path := writeFile(t, t.TempDir(), "x.csv", "x")
	d := NewDetector([]api.Reader{fakeReader{"FIRST"}, fakeReader{"SECOND"}}, discardLogger())

	if got := d.DetectFormat(path); got != "FIRST" {
		t.Errorf("DetectFormat() = %q, want the first matching reader", got)
	}
	if got := strings.Join(d.Supported(), ","); got != "FIRST,SECOND" {
		t.Errorf("Supported() = %q", got)
	}
}
