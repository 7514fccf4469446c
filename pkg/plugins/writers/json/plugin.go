// Package json provides a plugin wrapper for the JSON report writer.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	jsonwriter "github.com/ArionMiles/bankanalyzer/pkg/writer/json"
)

// Plugin implements the WriterPlugin interface for JSON files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "json"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Write the aggregated report to a JSON file"
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
				"description": "Path to the JSON output file",
			},
			"include_transactions": map[string]any{
				"type":        "boolean",
				"description": "Embed each monthly category's transactions",
				"default":     false,
			},
		},
		"required": []string{"file_path"},
	}
}

// Config represents the JSON writer configuration.
type Config struct {
	FilePath            string `json:"file_path"`
	IncludeTransactions bool   `json:"include_transactions,omitempty"`
}

// NewWriter creates a new JSON writer instance.
func (p *Plugin) NewWriter(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling json config: %w", err)
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}

	return jsonwriter.New(jsonwriter.Config{
		FilePath:            cfg.FilePath,
		IncludeTransactions: cfg.IncludeTransactions,
	}, logger)
}
