// Package alior provides a plugin wrapper for the Alior Bank statement reader.
package alior

import (
	"log/slog"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	aliorreader "github.com/ArionMiles/bankanalyzer/pkg/reader/alior"
)

// Plugin implements the ReaderPlugin interface for Alior Bank.
type Plugin struct{}

// Name returns the bank identifier.
func (p *Plugin) Name() string {
	return aliorreader.Name
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Read Alior Bank CSV account history exports"
}

// NewReader creates a new reader instance.
func (p *Plugin) NewReader(logger *slog.Logger) api.Reader {
	return aliorreader.New(logger)
}
