// Package overrides stores manually chosen categories for individual
// transactions in a YAML file.
//
// Writes re-read the file before saving so that entries edited by hand in
// the meantime survive, but there is no locking: two processes writing at
// once race and the last writer wins.
package overrides

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
)

// dateLayout is used for date_added and date_updated.
const dateLayout = time.DateOnly

// Entry is one override as stored on disk. Unknown keys are preserved.
type Entry struct {
	TransactionID string         `yaml:"transaction_id"`
	CategoryMain  string         `yaml:"category_main"`
	CategorySub   string         `yaml:"category_sub"`
	Note          string         `yaml:"note"`
	DateAdded     string         `yaml:"date_added,omitempty"`
	DateUpdated   string         `yaml:"date_updated,omitempty"`
	Extra         map[string]any `yaml:",inline"`
}

type document struct {
	Overrides []Entry        `yaml:"overrides"`
	Extra     map[string]any `yaml:",inline"`
}

// Store maps transaction ids to category pairs. It is not safe for
// concurrent use.
type Store struct {
	path      string
	overrides map[string]api.Category
	now       func() time.Time
	logger    *slog.Logger
}

// Open loads the overrides file at path. A missing or malformed file is
// logged and yields an empty store. An empty path keeps the store in memory.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:      path,
		overrides: make(map[string]api.Category),
		now:       time.Now,
		logger:    logger.With("component", "overrides"),
	}
	if path == "" {
		return s
	}

	doc, err := s.read()
	if err != nil {
		s.logger.Warn("overrides unavailable, starting empty", "path", path, "error", err)
		return s
	}
	for _, e := range doc.Overrides {
		if e.TransactionID == "" || e.CategoryMain == "" || e.CategorySub == "" {
			continue
		}
		s.overrides[e.TransactionID] = api.Category{Main: e.CategoryMain, Sub: e.CategorySub}
	}
	s.logger.Info("overrides loaded", "count", len(s.overrides))
	return s
}

// Get returns the override for a transaction id.
func (s *Store) Get(id string) (api.Category, bool) {
	c, ok := s.overrides[id]
	return c, ok
}

// Add records an override and persists it. An existing entry is updated
// in place and stamped date_updated; a new one is appended with date_added.
// The in-memory store is updated even when persisting fails.
func (s *Store) Add(id string, c api.Category, note string) error {
	s.overrides[id] = c
	if s.path == "" {
		return nil
	}

	doc, err := s.read()
	if err != nil {
		return fmt.Errorf("reading overrides: %w", err)
	}

	today := s.now().Format(dateLayout)
	found := false
	for i := range doc.Overrides {
		e := &doc.Overrides[i]
		if e.TransactionID != id {
			continue
		}
		e.CategoryMain, e.CategorySub, e.Note = c.Main, c.Sub, note
		e.DateUpdated = today
		found = true
		break
	}
	if !found {
		doc.Overrides = append(doc.Overrides, Entry{
			TransactionID: id,
			CategoryMain:  c.Main,
			CategorySub:   c.Sub,
			Note:          note,
			DateAdded:     today,
		})
	}

	if err := s.write(doc); err != nil {
		return err
	}
	s.logger.Info("override saved", "transaction_id", id, "category", c.Key())
	return nil
}

// Remove deletes an override and rewrites the file without it. It reports
// whether the id was known. A missing file is left missing.
func (s *Store) Remove(id string) (bool, error) {
	if _, ok := s.overrides[id]; !ok {
		return false, nil
	}
	delete(s.overrides, id)
	if s.path == "" {
		return true, nil
	}
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("override removed", "transaction_id", id)
		return true, nil
	}

	doc, err := s.read()
	if err != nil {
		return true, fmt.Errorf("reading overrides: %w", err)
	}
	kept := doc.Overrides[:0]
	for _, e := range doc.Overrides {
		if e.TransactionID != id {
			kept = append(kept, e)
		}
	}
	doc.Overrides = kept

	if err := s.write(doc); err != nil {
		return true, err
	}
	s.logger.Info("override removed", "transaction_id", id)
	return true, nil
}

// List returns a copy of every override.
func (s *Store) List() map[string]api.Category {
	return maps.Clone(s.overrides)
}

// Len returns the number of overrides.
func (s *Store) Len() int {
	return len(s.overrides)
}

// Entries returns the stored entries with notes and dates, in file order.
func (s *Store) Entries() ([]Entry, error) {
	if s.path == "" {
		return nil, nil
	}
	doc, err := s.read()
	if err != nil {
		return nil, fmt.Errorf("reading overrides: %w", err)
	}
	return doc.Overrides, nil
}

// read returns the current file content; a missing file is an empty document.
func (s *Store) read() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *Store) write(doc document) error {
	if doc.Overrides == nil {
		doc.Overrides = []Entry{}
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding overrides: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating overrides directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing overrides: %w", err)
	}
	return nil
}
