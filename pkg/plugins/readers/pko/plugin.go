// Package pko provides a plugin wrapper for the PKO Bank Polski statement reader.
package pko

import (
	"log/slog"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	pkoreader "github.com/ArionMiles/bankanalyzer/pkg/reader/pko"
)

// Plugin implements the ReaderPlugin interface for PKO Bank Polski.
type Plugin struct{}

// Name returns the bank identifier.
func (p *Plugin) Name() string {
	return pkoreader.Name
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Read PKO Bank Polski CSV account history exports"
}

// NewReader creates a new reader instance.
func (p *Plugin) NewReader(logger *slog.Logger) api.Reader {
	return pkoreader.New(logger)
}
