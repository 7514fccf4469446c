// Package sqlite provides a single-file SQLite writer for categorized
// transactions and monthly category totals.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	"github.com/ArionMiles/bankanalyzer/pkg/writer/buffered"
)

const upsertTransaction = `
	INSERT INTO transactions (
		id, date, description, counterparty, amount_cents, transaction_type, currency,
		category_main, category_sub, manual_override, source_bank, source_file,
		processed_at, run_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		description = excluded.description,
		counterparty = excluded.counterparty,
		amount_cents = excluded.amount_cents,
		transaction_type = excluded.transaction_type,
		currency = excluded.currency,
		category_main = excluded.category_main,
		category_sub = excluded.category_sub,
		manual_override = excluded.manual_override,
		source_bank = excluded.source_bank,
		source_file = excluded.source_file,
		processed_at = excluded.processed_at,
		run_id = excluded.run_id
`

// Config holds configuration for the SQLite writer.
type Config struct {
	// Path is the database file. Parent directories are created as needed.
	Path string
	// BatchSize is the number of transactions written per database transaction.
	BatchSize int
}

// Writer stores reports in a SQLite database.
type Writer struct {
	db        *sql.DB
	batchSize int
	logger    *slog.Logger
}

// New opens the database at cfg.Path and applies migrations.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = buffered.DefaultBatchSize
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(cfg.Path); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Writer{
		db:        db,
		batchSize: cfg.BatchSize,
		logger:    logger.With("component", "sqlite_writer", "path", cfg.Path),
	}, nil
}

// Write upserts the report's transactions and replaces the totals of every
// month the report covers.
func (w *Writer) Write(ctx context.Context, report *api.Report) error {
	txs := buffered.New(func(ctx context.Context, batch []*api.Transaction) error {
		return w.writeBatch(ctx, batch, report.RunID)
	}, buffered.Config{BatchSize: w.batchSize}, w.logger)

	if err := txs.Write(ctx, report.AllTransactions); err != nil {
		return err
	}
	if err := w.writeTotals(ctx, report); err != nil {
		return err
	}

	w.logger.Info("report stored", "transactions", txs.Flushed(), "run_id", report.RunID)
	return nil
}

func (w *Writer) writeBatch(ctx context.Context, batch []*api.Transaction, runID string) error {
	return w.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertTransaction)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, t := range batch {
			c := t.Category()
			_, err := stmt.ExecContext(ctx,
				t.ID, t.Date.Format(time.DateOnly), t.Description, t.Counterparty, cents(t.Amount),
				string(t.Type), t.Currency, c.Main, c.Sub, t.ManualOverride, t.SourceBank, t.SourceFile,
				t.ProcessedAt.UTC().Format(time.RFC3339), runID,
			)
			if err != nil {
				return fmt.Errorf("upsert transaction %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

func (w *Writer) writeTotals(ctx context.Context, report *api.Report) error {
	return w.inTx(ctx, func(tx *sql.Tx) error {
		for _, yr := range report.YearKeys() {
			y := report.Years[yr]
			for _, m := range y.MonthKeys() {
				if _, err := tx.ExecContext(ctx, `DELETE FROM category_totals WHERE year = ? AND month = ?`, yr, m); err != nil {
					return fmt.Errorf("clear totals %d-%02d: %w", yr, m, err)
				}
				month := y.Months[m]
				for _, c := range month.Categories.Keys() {
					cell, _ := month.Categories.Lookup(c)
					_, err := tx.ExecContext(ctx,
						`INSERT INTO category_totals (year, month, category_main, category_sub, total_cents, count, run_id)
						 VALUES (?, ?, ?, ?, ?, ?, ?)`,
						yr, m, c.Main, c.Sub, cents(cell.Total), cell.Count, report.RunID,
					)
					if err != nil {
						return fmt.Errorf("insert total %d-%02d %s: %w", yr, m, c.Key(), err)
					}
				}
			}
		}
		return nil
	})
}

func (w *Writer) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}

func cents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
