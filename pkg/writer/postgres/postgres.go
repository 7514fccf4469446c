// Package postgres provides a PostgreSQL writer for categorized transactions
// and monthly category totals.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	"github.com/ArionMiles/bankanalyzer/pkg/writer/buffered"
)

//go:embed 001_create_tables.sql
var migrationSQL string

const upsertTransaction = `
	INSERT INTO transactions (
		id, date, description, counterparty, amount, transaction_type, currency,
		category_main, category_sub, manual_override, source_bank, source_file,
		processed_at, run_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO UPDATE SET
		description = EXCLUDED.description,
		counterparty = EXCLUDED.counterparty,
		amount = EXCLUDED.amount,
		transaction_type = EXCLUDED.transaction_type,
		currency = EXCLUDED.currency,
		category_main = EXCLUDED.category_main,
		category_sub = EXCLUDED.category_sub,
		manual_override = EXCLUDED.manual_override,
		source_bank = EXCLUDED.source_bank,
		source_file = EXCLUDED.source_file,
		processed_at = EXCLUDED.processed_at,
		run_id = EXCLUDED.run_id,
		updated_at = NOW()
`

const insertTotal = `
	INSERT INTO category_totals (year, month, category_main, category_sub, total, count, run_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Config holds the PostgreSQL writer configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// DSN, when set, is used instead of the individual connection fields.
	DSN string

	// BatchSize is the number of transactions sent per database transaction.
	BatchSize int

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Writer writes reports to a PostgreSQL database.
type Writer struct {
	pool      *pgxpool.Pool
	logger    *slog.Logger
	batchSize int
}

// New connects to PostgreSQL and applies the schema.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = buffered.DefaultBatchSize
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = 10
	}

	connStr := cfg.DSN
	if connStr == "" {
		connStr = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger = logger.With("component", "postgres_writer")
	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	w := &Writer{
		pool:      pool,
		logger:    logger,
		batchSize: cfg.BatchSize,
	}

	if err := w.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return w, nil
}

func (w *Writer) runMigrations(ctx context.Context) error {
	w.logger.Debug("running database migrations")
	if _, err := w.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

// Write upserts every transaction of the report in batches, then replaces
// the category totals of each month present in the report.
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

// writeBatch upserts a batch of transactions keyed by their ID.
func (w *Writer) writeBatch(ctx context.Context, transactions []*api.Transaction, runID string) error {
	if len(transactions) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range transactions {
		c := t.Category()
		batch.Queue(upsertTransaction,
			t.ID, t.Date, t.Description, t.Counterparty, t.Amount, string(t.Type), t.Currency,
			c.Main, c.Sub, t.ManualOverride, t.SourceBank, t.SourceFile,
			t.ProcessedAt, runID,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting transactions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	w.logger.Debug("wrote transaction batch", "count", len(transactions))
	return nil
}

// writeTotals replaces the stored totals month by month so categories that
// disappeared from a month do not linger.
func (w *Writer) writeTotals(ctx context.Context, report *api.Report) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, yr := range report.YearKeys() {
		y := report.Years[yr]
		for _, m := range y.MonthKeys() {
			batch.Queue(`DELETE FROM category_totals WHERE year = $1 AND month = $2`, yr, m)
			month := y.Months[m]
			for _, c := range month.Categories.Keys() {
				cell, _ := month.Categories.Lookup(c)
				batch.Queue(insertTotal, yr, m, c.Main, c.Sub, cell.Total, cell.Count, report.RunID)
			}
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing category totals: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing category totals: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (w *Writer) Close() error {
	w.pool.Close()
	return nil
}
