// Package runner assembles one analysis run from configuration.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	"github.com/ArionMiles/bankanalyzer/pkg/config"
	"github.com/ArionMiles/bankanalyzer/pkg/orchestrator"
	"github.com/ArionMiles/bankanalyzer/pkg/overrides"
	"github.com/ArionMiles/bankanalyzer/pkg/plugins"
	"github.com/ArionMiles/bankanalyzer/pkg/rules"
)

// ErrNoTransactions is returned when a run has nothing to categorize.
var ErrNoTransactions = errors.New("no transactions found")

// Input is the work for one run.
type Input struct {
	Transactions []*api.Transaction
	Engine       *rules.Engine
	Overrides    *overrides.Store
}

// Runner builds writers from plugins and runs the pipeline.
type Runner struct {
	registry   *plugins.Registry
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new runner. httpClient may be nil when no configured
// writer needs OAuth.
func New(registry *plugins.Registry, httpClient *http.Client, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry:   registry,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Run categorizes and aggregates in.Transactions and hands the report to
// every writer named in cfg.Writers. Writers implementing io.Closer are
// closed before Run returns. The outcome is returned even when a writer
// fails.
func (r *Runner) Run(ctx context.Context, cfg config.Config, in Input) (*orchestrator.Outcome, error) {
	if len(in.Transactions) == 0 {
		return nil, ErrNoTransactions
	}

	r.logger.Info("starting analysis",
		"transactions", len(in.Transactions),
		"writers", cfg.Writers,
	)

	writers, err := r.createWriters(cfg)
	if err != nil {
		return nil, err
	}
	defer r.closeWriters(writers)

	orch := orchestrator.New(orchestrator.Config{
		Engine:    in.Engine,
		Overrides: in.Overrides,
		Writers:   writers,
	}, r.logger)

	outcome, err := orch.Run(ctx, in.Transactions)
	if err != nil {
		return outcome, fmt.Errorf("running pipeline: %w", err)
	}

	r.logger.Info("analysis finished", "run_id", outcome.RunID, "duration", outcome.Duration)
	return outcome, nil
}

func (r *Runner) createWriters(cfg config.Config) (map[string]api.Writer, error) {
	writers := make(map[string]api.Writer, len(cfg.Writers))
	for _, name := range cfg.Writers {
		if _, dup := writers[name]; dup {
			continue
		}

		raw, err := cfg.WriterConfig(name)
		if err != nil {
			r.closeWriters(writers)
			return nil, err
		}

		w, err := r.registry.CreateWriter(name, r.httpClient, raw, r.logger.With("plugin", name))
		if err != nil {
			r.closeWriters(writers)
			return nil, fmt.Errorf("creating writer %s: %w", name, err)
		}
		writers[name] = w
	}
	return writers, nil
}

func (r *Runner) closeWriters(writers map[string]api.Writer) {
	for name, w := range writers {
		c, ok := w.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			r.logger.Warn("failed to close writer", "writer", name, "error", err)
		}
	}
}
