// Package csv implements a Writer that exports categorized transactions to
// a flat CSV file.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

// Header is the first row of every export.
var Header = []string{
	"ID", "Date", "Counterparty", "Description", "Amount", "Type", "Currency",
	"Category", "Subcategory", "ManualOverride", "SourceBank", "SourceFile",
}

// Config holds configuration for the CSV writer.
type Config struct {
	// FilePath is the path to the CSV output file. It is replaced on every run.
	FilePath string
}

// Writer writes transactions to a CSV file.
type Writer struct {
	filePath string
	logger   *slog.Logger
}

// New creates a new CSV writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		filePath: cfg.FilePath,
		logger:   logger.With("component", "csv_writer"),
	}, nil
}

// Write writes one row per transaction in report order.
func (w *Writer) Write(ctx context.Context, report *api.Report) (err error) {
	if err := os.MkdirAll(filepath.Dir(w.filePath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	file, err := os.Create(w.filePath)
	if err != nil {
		return fmt.Errorf("opening csv file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing csv file: %w", closeErr)
		}
	}()

	cw := csv.NewWriter(file)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing headers: %w", err)
	}
	for _, tx := range report.AllTransactions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cw.Write(Record(tx)); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	w.logger.Info("transactions exported", "file", w.filePath, "count", len(report.AllTransactions))
	return nil
}

// Record renders one transaction as a CSV row matching Header.
func Record(tx *api.Transaction) []string {
	c := tx.Category()
	return []string{
		tx.ID,
		tx.Date.Format(time.DateOnly),
		tx.Counterparty,
		tx.Description,
		tx.Amount.StringFixed(2),
		string(tx.Type),
		tx.Currency,
		c.Main,
		c.Sub,
		strconv.FormatBool(tx.ManualOverride),
		tx.SourceBank,
		tx.SourceFile,
	}
}
