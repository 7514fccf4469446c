// Package postgres provides a plugin wrapper for the PostgreSQL writer.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	pgwriter "github.com/ArionMiles/bankanalyzer/pkg/writer/postgres"
)

// Plugin implements the WriterPlugin interface for PostgreSQL.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "postgres"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Archive categorized transactions and monthly totals in PostgreSQL"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
// PostgreSQL writer doesn't require OAuth scopes.
func (p *Plugin) RequiredScopes() []string {
	return []string{}
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"dsn": map[string]any{
				"type":        "string",
				"description": "Connection string; overrides the individual fields",
			},
			"host": map[string]any{
				"type":        "string",
				"description": "PostgreSQL host address",
				"default":     "localhost",
			},
			"port": map[string]any{
				"type":        "integer",
				"description": "PostgreSQL port",
				"default":     5432,
			},
			"database": map[string]any{
				"type":        "string",
				"description": "Database name",
				"default":     "bankanalyzer",
			},
			"user": map[string]any{
				"type":        "string",
				"description": "Database user",
			},
			"password": map[string]any{
				"type":        "string",
				"description": "Database password",
			},
			"sslmode": map[string]any{
				"type":        "string",
				"description": "SSL mode (disable, require, verify-ca, verify-full)",
				"default":     "disable",
				"enum":        []string{"disable", "require", "verify-ca", "verify-full"},
			},
			"batch_size": map[string]any{
				"type":        "integer",
				"description": "Number of transactions per database transaction (default: 100)",
				"default":     100,
			},
			"max_pool_size": map[string]any{
				"type":        "integer",
				"description": "Maximum number of connections in the pool (default: 10)",
				"default":     10,
			},
		},
	}
}

// Config represents the PostgreSQL writer configuration.
type Config struct {
	DSN         string `json:"dsn,omitempty"`
	Host        string `json:"host"`
	Port        int    `json:"port,omitempty"`
	Database    string `json:"database"`
	User        string `json:"user"`
	Password    string `json:"password"`
	SSLMode     string `json:"sslmode,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`
	MaxPoolSize int    `json:"max_pool_size,omitempty"`
}

// NewWriter creates a new PostgreSQL writer instance.
// Note: httpClient is ignored as PostgreSQL doesn't need OAuth.
func (p *Plugin) NewWriter(_ *http.Client, configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling postgres config: %w", err)
	}

	if cfg.DSN == "" {
		if cfg.Host == "" {
			return nil, fmt.Errorf("host is required")
		}
		if cfg.Database == "" {
			return nil, fmt.Errorf("database is required")
		}
		if cfg.User == "" {
			return nil, fmt.Errorf("user is required")
		}
	}

	return pgwriter.New(context.Background(), pgwriter.Config{
		DSN:         cfg.DSN,
		Host:        cfg.Host,
		Port:        cfg.Port,
		Database:    cfg.Database,
		User:        cfg.User,
		Password:    cfg.Password,
		SSLMode:     cfg.SSLMode,
		BatchSize:   cfg.BatchSize,
		MaxPoolSize: cfg.MaxPoolSize,
	}, logger)
}
