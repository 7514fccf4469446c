// Package reader detects which bank produced a statement file and parses
// it with the matching reader.
package reader

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ArionMiles/bankanalyzer/pkg/api"
	"github.com/ArionMiles/bankanalyzer/pkg/reader/alior"
	"github.com/ArionMiles/bankanalyzer/pkg/reader/pko"
)

var (
	// ErrUnsupportedFormat is returned for files that are not CSV exports.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrUnknownFormat is returned when no reader recognizes a CSV file.
	ErrUnknownFormat = errors.New("unrecognized statement format")
)

// FileError records a statement file that could not be parsed.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Detector tries readers in order and uses the first that recognizes a file.
type Detector struct {
	readers []api.Reader
	logger  *slog.Logger
}

// NewDetector creates a detector over readers, tried in the given order.
func NewDetector(readers []api.Reader, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		readers: readers,
		logger:  logger.With("component", "detector"),
	}
}

// Default returns a detector over the built-in bank readers: PKO, then Alior.
func Default(logger *slog.Logger) *Detector {
	return NewDetector([]api.Reader{pko.New(logger), alior.New(logger)}, logger)
}

// Supported returns the bank names in detection order.
func (d *Detector) Supported() []string {
	names := make([]string, len(d.readers))
	for i, r := range d.readers {
		names[i] = r.Name()
	}
	return names
}

// DetectFormat returns the name of the first reader that recognizes the
// file, or api.UnknownBank.
func (d *Detector) DetectFormat(path string) string {
	if _, err := os.Stat(path); err != nil {
		return api.UnknownBank
	}
	if r := d.match(path); r != nil {
		return r.Name()
	}
	return api.UnknownBank
}

// DetectAndParse parses a statement with the first reader that recognizes
// it. The file must exist and carry a .csv extension.
func (d *Detector) DetectAndParse(path string) ([]*api.Transaction, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening statement: %w", err)
	}
	if ext := filepath.Ext(path); !strings.EqualFold(ext, ".csv") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	d.logger.Info("detecting format", "file", filepath.Base(path))
	r := d.match(path)
	if r == nil {
		return nil, fmt.Errorf("%w: %s (supported banks: %s)",
			ErrUnknownFormat, filepath.Base(path), strings.Join(d.Supported(), ", "))
	}
	d.logger.Info("detected format", "file", filepath.Base(path), "bank", r.Name())
	return r.Parse(path)
}

// ParseFiles parses every file, concatenating transactions in file order.
// Files that fail are reported and skipped.
func (d *Detector) ParseFiles(paths []string) ([]*api.Transaction, []*FileError) {
	var (
		all    []*api.Transaction
		failed []*FileError
	)
	for _, path := range paths {
		txs, err := d.DetectAndParse(path)
		if err != nil {
			d.logger.Warn("skipping statement", "file", path, "error", err)
			failed = append(failed, &FileError{Path: path, Err: err})
			continue
		}
		all = append(all, txs...)
	}
	return all, failed
}

func (d *Detector) match(path string) api.Reader {
	for _, r := range d.readers {
		if r.CanParse(path) {
			return r
		}
	}
	return nil
}
