// Package plugins provides a plugin registry for statement readers and
// report writers.
package plugins

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

// ReaderPlugin defines the interface for bank statement reader plugins.
type ReaderPlugin interface {
	// Name returns the bank identifier (e.g., "PKO", "ALIOR").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// NewReader creates a new reader instance.
	NewReader(logger *slog.Logger) api.Reader
}

// WriterPlugin defines the interface for report writer plugins.
type WriterPlugin interface {
	// Name returns the plugin name (e.g., "sheets", "csv", "json").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// RequiredScopes returns the OAuth scopes needed by this plugin.
	RequiredScopes() []string
	// ConfigSchema returns a JSON schema describing the plugin's configuration.
	ConfigSchema() map[string]any
	// NewWriter creates a new writer instance with the given config.
	NewWriter(httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error)
}

// Registry manages available reader and writer plugins.
//
// Readers keep registration order, which is the order format detection
// tries them in.
type Registry struct {
	readers []ReaderPlugin
	writers map[string]WriterPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		writers: make(map[string]WriterPlugin),
	}
}

// RegisterReader registers a reader plugin.
func (r *Registry) RegisterReader(plugin ReaderPlugin) error {
	name := plugin.Name()
	if slices.ContainsFunc(r.readers, func(p ReaderPlugin) bool { return p.Name() == name }) {
		return fmt.Errorf("reader plugin %q already registered", name)
	}
	r.readers = append(r.readers, plugin)
	return nil
}

// RegisterWriter registers a writer plugin.
func (r *Registry) RegisterWriter(plugin WriterPlugin) error {
	name := plugin.Name()
	if _, exists := r.writers[name]; exists {
		return fmt.Errorf("writer plugin %q already registered", name)
	}
	r.writers[name] = plugin
	return nil
}

// GetWriter returns a writer plugin by name.
func (r *Registry) GetWriter(name string) (WriterPlugin, error) {
	plugin, exists := r.writers[name]
	if !exists {
		return nil, fmt.Errorf("writer plugin %q not found", name)
	}
	return plugin, nil
}

// ListReaders returns all registered reader plugins in registration order.
func (r *Registry) ListReaders() []ReaderPlugin {
	return slices.Clone(r.readers)
}

// ListWriters returns all registered writer plugins sorted by name.
func (r *Registry) ListWriters() []WriterPlugin {
	plugins := make([]WriterPlugin, 0, len(r.writers))
	for _, plugin := range r.writers {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Name() < plugins[j].Name()
	})
	return plugins
}

// Readers instantiates every registered reader.
func (r *Registry) Readers(logger *slog.Logger) []api.Reader {
	readers := make([]api.Reader, 0, len(r.readers))
	for _, plugin := range r.readers {
		readers = append(readers, plugin.NewReader(logger))
	}
	return readers
}

// Scopes returns the deduplicated OAuth scopes required by the named writers.
func (r *Registry) Scopes(writerNames ...string) ([]string, error) {
	scopeSet := make(map[string]struct{})
	for _, name := range writerNames {
		writer, err := r.GetWriter(name)
		if err != nil {
			return nil, err
		}
		for _, scope := range writer.RequiredScopes() {
			scopeSet[scope] = struct{}{}
		}
	}

	scopes := make([]string, 0, len(scopeSet))
	for scope := range scopeSet {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes, nil
}

// CreateWriter creates a writer instance from a plugin.
func (r *Registry) CreateWriter(name string, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	plugin, err := r.GetWriter(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewWriter(httpClient, config, logger)
}
