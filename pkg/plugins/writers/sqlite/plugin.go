// Package sqlite provides a plugin wrapper for the SQLite writer.
package sqlite

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	sqlitewriter "github.com/ArionMiles/bankanalyzer/pkg/writer/sqlite"
)

// Plugin implements the WriterPlugin interface for SQLite.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "sqlite"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Archive categorized transactions and monthly totals in a local SQLite file"
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
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the database file",
			},
			"batch_size": map[string]any{
				"type":        "integer",
				"description": "Number of transactions per database transaction (default: 100)",
				"default":     100,
			},
		},
		"required": []string{"path"},
	}
}

// Config represents the SQLite writer configuration.
type Config struct {
	Path      string `json:"path"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// NewWriter creates a new SQLite writer instance.
func (p *Plugin) NewWriter(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling sqlite config: %w", err)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	return sqlitewriter.New(sqlitewriter.Config{Path: cfg.Path, BatchSize: cfg.BatchSize}, logger)
}
