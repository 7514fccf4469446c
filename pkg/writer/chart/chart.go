// Package chart implements a Writer that renders the top spending
// categories as a PNG bar chart.
package chart

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/ArionMiles/bankanalyzer/pkg/aggregator"
	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

// Default configuration values.
const (
	DefaultWidth  = 1200
	DefaultHeight = 600
)

// Config holds configuration for the chart writer.
type Config struct {
	// FilePath is the PNG file to write.
	FilePath string
	// Year restricts the ranking to one year. Zero ranks all years.
	Year int
	// Limit is the number of bars. Zero uses aggregator.DefaultTopLimit.
	Limit  int
	Width  int
	Height int
}

// Writer renders a bar chart of the categories with the largest totals.
type Writer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a new chart writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	return &Writer{
		cfg:    cfg,
		logger: logger.With("component", "chart_writer"),
	}, nil
}

// Write renders the ranking. An empty ranking writes nothing.
func (w *Writer) Write(ctx context.Context, report *api.Report) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	top := aggregator.TopExpenses(report, w.cfg.Year, w.cfg.Limit)
	if len(top) == 0 {
		w.logger.Info("nothing to chart", "year", w.cfg.Year)
		return nil
	}

	graph := w.barChart(top)

	if err := os.MkdirAll(filepath.Dir(w.cfg.FilePath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(w.cfg.FilePath)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing chart file: %w", closeErr)
		}
	}()

	if err := graph.Render(chart.PNG, f); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}

	w.logger.Info("chart rendered", "file", w.cfg.FilePath, "bars", len(top))
	return nil
}

func (w *Writer) barChart(top []aggregator.TopEntry) chart.BarChart {
	bars := make([]chart.Value, 0, len(top))
	maxValue := 0.0
	for _, e := range top {
		v := e.Total.InexactFloat64()
		maxValue = max(maxValue, v)
		bars = append(bars, chart.Value{Label: e.CategorySub, Value: v})
	}
	if maxValue == 0 {
		maxValue = 1
	}

	title := "Największe wydatki"
	if w.cfg.Year != 0 {
		title = fmt.Sprintf("%s %d", title, w.cfg.Year)
	}

	graph := chart.BarChart{
		Title: title,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:    w.cfg.Width,
		Height:   w.cfg.Height,
		BarWidth: max(10, w.cfg.Width/(2*len(bars)+1)),
		Bars:     bars,
	}
	// A fixed range keeps single-bar and equal-value charts renderable.
	graph.YAxis.Range = &chart.ContinuousRange{Min: 0, Max: maxValue * 1.1}
	graph.YAxis.ValueFormatter = func(v interface{}) string {
		if vf, isFloat := v.(float64); isFloat {
			return fmt.Sprintf("%.0f zł", vf)
		}
		return ""
	}
	return graph
}
