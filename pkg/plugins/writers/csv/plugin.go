// Package csv provides a plugin wrapper for the CSV writer.
package csv

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	csvwriter "github.com/ArionMiles/bankanalyzer/pkg/writer/csv"
)

// Plugin implements the WriterPlugin interface for CSV files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "csv"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Write categorized transactions to a CSV file"
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
				"description": "Path to the CSV output file, replaced on every run",
			},
		},
		"required": []string{"file_path"},
	}
}

// Config represents the CSV writer configuration.
type Config struct {
	FilePath string `json:"file_path"`
}

// NewWriter creates a new CSV writer instance.
func (p *Plugin) NewWriter(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling csv config: %w", err)
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}

	return csvwriter.New(csvwriter.Config{FilePath: cfg.FilePath}, logger)
}
