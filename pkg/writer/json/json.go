// Package json implements a Writer that exports the aggregated report to a
// JSON file.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON output file.
	FilePath string
	// IncludeTransactions adds each monthly cell's transactions to the output.
	IncludeTransactions bool
}

// Writer writes the report to a JSON file.
type Writer struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// New creates a new JSON writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "json_writer"),
	}, nil
}

type cellDoc struct {
	Total        float64            `json:"total"`
	Count        int                `json:"count"`
	Transactions []*api.Transaction `json:"transactions,omitempty"`
}

type monthDoc struct {
	Total        float64                        `json:"total"`
	TotalIncome  float64                        `json:"total_income"`
	TotalExpense float64                        `json:"total_expense"`
	Categories   map[string]map[string]*cellDoc `json:"categories"`
}

type yearDoc struct {
	TotalYear        float64                        `json:"total_year"`
	TotalYearIncome  float64                        `json:"total_year_income"`
	TotalYearExpense float64                        `json:"total_year_expense"`
	Months           map[int]*monthDoc              `json:"months"`
	Categories       map[string]map[string]*cellDoc `json:"categories"`
}

// Document is the exported file layout. Amounts are flattened to floats.
type Document struct {
	GeneratedAt        string             `json:"generated_at"`
	Summary            api.Summary        `json:"summary"`
	Years              map[int]*yearDoc   `json:"years"`
	Uncategorized      []*api.Transaction `json:"uncategorized"`
	UncategorizedCount int                `json:"uncategorized_count"`
}

// Write renders the report and replaces the output file.
func (w *Writer) Write(ctx context.Context, report *api.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(w.document(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.cfg.FilePath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(w.cfg.FilePath, data, 0o600); err != nil {
		return fmt.Errorf("writing json file: %w", err)
	}

	w.logger.Info("report exported", "file", w.cfg.FilePath, "years", len(report.Years))
	return nil
}

func (w *Writer) document(report *api.Report) Document {
	doc := Document{
		GeneratedAt:        w.now().Format(time.RFC3339),
		Summary:            report.Summary,
		Years:              make(map[int]*yearDoc, len(report.Years)),
		Uncategorized:      report.Uncategorized,
		UncategorizedCount: len(report.Uncategorized),
	}
	if doc.Uncategorized == nil {
		doc.Uncategorized = []*api.Transaction{}
	}

	for yr, y := range report.Years {
		yd := &yearDoc{
			TotalYear:        y.TotalYear.InexactFloat64(),
			TotalYearIncome:  y.TotalYearIncome.InexactFloat64(),
			TotalYearExpense: y.TotalYearExpense.InexactFloat64(),
			Months:           make(map[int]*monthDoc, len(y.Months)),
			Categories:       w.tree(&y.CategoriesYear, false),
		}
		for m, month := range y.Months {
			yd.Months[m] = &monthDoc{
				Total:        month.Total.InexactFloat64(),
				TotalIncome:  month.TotalIncome.InexactFloat64(),
				TotalExpense: month.TotalExpense.InexactFloat64(),
				Categories:   w.tree(&month.Categories, w.cfg.IncludeTransactions),
			}
		}
		doc.Years[yr] = yd
	}
	return doc
}

func (w *Writer) tree(t *api.CategoryTree, withTransactions bool) map[string]map[string]*cellDoc {
	out := make(map[string]map[string]*cellDoc)
	for _, c := range t.Keys() {
		cell, _ := t.Lookup(c)
		if out[c.Main] == nil {
			out[c.Main] = make(map[string]*cellDoc)
		}
		cd := &cellDoc{Total: cell.Total.InexactFloat64(), Count: cell.Count}
		if withTransactions {
			cd.Transactions = cell.Transactions
		}
		out[c.Main][c.Sub] = cd
	}
	return out
}
