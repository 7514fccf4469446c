// Package sheets provides a plugin wrapper for the Google Sheets writer.
package sheets

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	sheetswriter "github.com/ArionMiles/bankanalyzer/pkg/writer/sheets"
)

// Plugin implements the WriterPlugin interface for Google Sheets.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "sheets"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Write yearly category pivots, uncategorized and all transactions to Google Sheets"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{
		sheetsapi.SpreadsheetsScope,
	}
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sheet_title": map[string]any{
				"type":        "string",
				"description": "Title for a new spreadsheet (used if sheet_id is not provided)",
				"default":     sheetswriter.DefaultSheetTitle,
			},
			"sheet_id": map[string]any{
				"type":        "string",
				"description": "ID of an existing spreadsheet to use",
			},
			"sheet_name": map[string]any{
				"type":        "string",
				"description": "Tab receiving one row per transaction",
				"default":     sheetswriter.DefaultSheetName,
			},
			"summary_sheet_name": map[string]any{
				"type":        "string",
				"description": "Tab receiving one row per month and category",
				"default":     sheetswriter.DefaultSummarySheetName,
			},
			"uncategorized_sheet_name": map[string]any{
				"type":        "string",
				"description": "Tab listing uncategorized transactions",
				"default":     sheetswriter.DefaultUncategorizedSheetName,
			},
			"batch_size": map[string]any{
				"type":        "integer",
				"description": "Number of rows per append call",
				"default":     sheetswriter.DefaultBatchSize,
			},
		},
	}
}

// Config represents the Sheets writer configuration.
type Config struct {
	SheetTitle             string `json:"sheet_title,omitempty"`
	SheetID                string `json:"sheet_id,omitempty"`
	SheetName              string `json:"sheet_name,omitempty"`
	SummarySheetName       string `json:"summary_sheet_name,omitempty"`
	UncategorizedSheetName string `json:"uncategorized_sheet_name,omitempty"`
	BatchSize              int    `json:"batch_size,omitempty"`
}

// NewWriter creates a new Sheets writer instance.
func (p *Plugin) NewWriter(httpClient *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if len(configData) > 0 {
		if err := json.Unmarshal(configData, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling sheets config: %w", err)
		}
	}
	if httpClient == nil {
		return nil, fmt.Errorf("sheets writer requires an authorized client, run setup first")
	}
	names := []string{
		cmp.Or(cfg.SheetName, sheetswriter.DefaultSheetName),
		cmp.Or(cfg.SummarySheetName, sheetswriter.DefaultSummarySheetName),
		cmp.Or(cfg.UncategorizedSheetName, sheetswriter.DefaultUncategorizedSheetName),
	}
	if len(slices.Compact(slices.Sorted(slices.Values(names)))) != len(names) {
		return nil, fmt.Errorf("sheet_name, summary_sheet_name and uncategorized_sheet_name must differ")
	}

	return sheetswriter.New(httpClient, sheetswriter.Config{
		SheetTitle:             cfg.SheetTitle,
		SheetID:                cfg.SheetID,
		SheetName:              cfg.SheetName,
		SummarySheetName:       cfg.SummarySheetName,
		UncategorizedSheetName: cfg.UncategorizedSheetName,
		BatchSize:              cfg.BatchSize,
	}, logger)
}
