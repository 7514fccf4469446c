// Package chart provides a plugin wrapper for the top-expenses chart writer.
package chart

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/bankanalyzer/pkg/aggregator"
	"github.com/ArionMiles/bankanalyzer/pkg/api"
	chartwriter "github.com/ArionMiles/bankanalyzer/pkg/writer/chart"
)

// Plugin implements the WriterPlugin interface for PNG charts.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "chart"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Render the top spending categories as a PNG bar chart"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path to the PNG output file",
			},
			"year": map[string]any{
				"type":        "integer",
				"description": "Rank a single year (0 ranks all years)",
				"default":     0,
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Number of bars",
				"default":     aggregator.DefaultTopLimit,
			},
			"width": map[string]any{
				"type":    "integer",
				"default": chartwriter.DefaultWidth,
			},
			"height": map[string]any{
				"type":    "integer",
				"default": chartwriter.DefaultHeight,
			},
		},
		"required": []string{"file_path"},
	}
}

// Config represents the chart writer configuration.
type Config struct {
	FilePath string `json:"file_path"`
	Year     int    `json:"year,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// NewWriter creates a new chart writer instance.
func (p *Plugin) NewWriter(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling chart config: %w", err)
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}
	if cfg.Year < 0 {
		return nil, fmt.Errorf("year must not be negative")
	}

	return chartwriter.New(chartwriter.Config{
		FilePath: cfg.FilePath,
		Year:     cfg.Year,
		Limit:    cfg.Limit,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, logger)
}
