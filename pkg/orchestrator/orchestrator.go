// Package orchestrator runs one batch of parsed transactions through
// exclusion, categorization and aggregation, then hands the report to the
// configured writers.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ArionMiles/bankanalyzer/pkg/aggregator"
	"github.com/ArionMiles/bankanalyzer/pkg/api"
	"github.com/ArionMiles/bankanalyzer/pkg/overrides"
	"github.com/ArionMiles/bankanalyzer/pkg/rules"
)

// Config wires the pipeline stages.
type Config struct {
	// Engine provides exclusion and categorization rules. Required.
	Engine *rules.Engine
	// Overrides takes precedence over Engine when set.
	Overrides *overrides.Store
	// Aggregator builds the report. A default one is used when nil.
	Aggregator *aggregator.Aggregator
	// Writers receive the finished report, keyed by plugin name.
	Writers map[string]api.Writer
}

// Excluded is a transaction dropped by an exclusion rule.
type Excluded struct {
	Transaction *api.Transaction
	Reason      string
}

// Result is the outcome of categorizing one batch.
type Result struct {
	// Transactions are the kept transactions in input order, categorized.
	Transactions []*api.Transaction
	Excluded     []Excluded

	Categorized   int
	Uncategorized int
	Overridden    int
}

// Outcome describes a complete pipeline run.
type Outcome struct {
	Result
	Report   *api.Report
	RunID    string
	Duration time.Duration
}

// Orchestrator runs the pipeline. Like the engine and store it wraps, it
// must not be used from several goroutines at once.
type Orchestrator struct {
	engine     *rules.Engine
	overrides  *overrides.Store
	aggregator *aggregator.Aggregator
	writers    map[string]api.Writer
	newRunID   func() string
	logger     *slog.Logger
}

// New creates an orchestrator.
func New(cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Engine == nil {
		cfg.Engine = rules.New(nil, nil, logger)
	}
	if cfg.Aggregator == nil {
		cfg.Aggregator = aggregator.New(logger)
	}
	return &Orchestrator{
		engine:     cfg.Engine,
		overrides:  cfg.Overrides,
		aggregator: cfg.Aggregator,
		writers:    cfg.Writers,
		newRunID:   uuid.NewString,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Categorize applies, per transaction and in order: the exclusion check,
// then an override when one is recorded for the id, else the rule engine.
// Kept transactions are mutated in place.
func (o *Orchestrator) Categorize(txs []*api.Transaction) Result {
	res := Result{Transactions: make([]*api.Transaction, 0, len(txs))}

	for _, tx := range txs {
		if excluded, reason := o.engine.ShouldExclude(tx); excluded {
			res.Excluded = append(res.Excluded, Excluded{Transaction: tx, Reason: reason})
			continue
		}

		if c, ok := o.override(tx.ID); ok {
			tx.SetCategory(c)
			tx.ManualOverride = true
			res.Overridden++
			res.Categorized++
			res.Transactions = append(res.Transactions, tx)
			continue
		}

		c := o.engine.Categorize(tx)
		tx.SetCategory(c)
		if c.IsUncategorized() {
			res.Uncategorized++
		} else {
			res.Categorized++
		}
		res.Transactions = append(res.Transactions, tx)
	}

	o.logger.Info("transactions categorized",
		"kept", len(res.Transactions),
		"excluded", len(res.Excluded),
		"categorized", res.Categorized,
		"overridden", res.Overridden,
		"uncategorized", res.Uncategorized,
	)
	return res
}

func (o *Orchestrator) override(id string) (api.Category, bool) {
	if o.overrides == nil {
		return api.Category{}, false
	}
	return o.overrides.Get(id)
}

// Run categorizes and aggregates txs, then writes the report with every
// writer concurrently. A failing writer does not stop the others; the first
// error is returned once all of them have finished. The outcome is returned
// even when a writer fails.
func (o *Orchestrator) Run(ctx context.Context, txs []*api.Transaction) (*Outcome, error) {
	start := time.Now()
	runID := o.newRunID()
	logger := o.logger.With("run_id", runID)

	res := o.Categorize(txs)
	report := o.aggregator.Aggregate(res.Transactions)
	report.RunID = runID

	out := &Outcome{Result: res, Report: report, RunID: runID}

	var g errgroup.Group
	for _, name := range slices.Sorted(maps.Keys(o.writers)) {
		w := o.writers[name]
		g.Go(func() error {
			if err := w.Write(ctx, report); err != nil {
				logger.Error("writer failed", "writer", name, "error", err)
				return fmt.Errorf("writer %s: %w", name, err)
			}
			return nil
		})
	}
	err := g.Wait()

	out.Duration = time.Since(start)
	logger.Info("run finished",
		"transactions", len(txs),
		"writers", len(o.writers),
		"duration", out.Duration,
	)
	return out, err
}
