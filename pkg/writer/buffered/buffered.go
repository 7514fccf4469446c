// Package buffered provides a batching base for writers that send rows to
// a remote store in chunks.
package buffered

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultBatchSize is the default number of items buffered before a flush.
const DefaultBatchSize = 100

// Flusher is called with each full batch and with the remainder.
type Flusher[T any] func(ctx context.Context, batch []T) error

// Config holds configuration for buffered writing.
type Config struct {
	// BatchSize is the number of items to buffer before flushing.
	// Defaults to DefaultBatchSize.
	BatchSize int
}

// Writer buffers items and flushes them in batches.
type Writer[T any] struct {
	mu      sync.Mutex
	buffer  []T
	flushed int
	flusher Flusher[T]
	config  Config
	logger  *slog.Logger
}

// New creates a buffered writer around flusher.
func New[T any](flusher Flusher[T], cfg Config, logger *slog.Logger) *Writer[T] {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer[T]{
		buffer:  make([]T, 0, cfg.BatchSize),
		flusher: flusher,
		config:  cfg,
		logger:  logger,
	}
}

// Add buffers one item, flushing when the batch is full.
func (w *Writer[T]) Add(ctx context.Context, item T) error {
	w.mu.Lock()
	w.buffer = append(w.buffer, item)
	full := len(w.buffer) >= w.config.BatchSize
	w.mu.Unlock()

	if full {
		return w.Flush(ctx)
	}
	return nil
}

// Write buffers every item and flushes the remainder. It stops at the
// first failed batch or when ctx is done.
func (w *Writer[T]) Write(ctx context.Context, items []T) error {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Add(ctx, item); err != nil {
			return err
		}
	}
	return w.Flush(ctx)
}

// Flush writes all buffered items. The buffer is cleared even when the
// flusher fails.
func (w *Writer[T]) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := make([]T, len(w.buffer))
	copy(batch, w.buffer)
	w.buffer = w.buffer[:0]
	w.mu.Unlock()

	w.logger.Debug("flushing buffer", "count", len(batch))
	if err := w.flusher(ctx, batch); err != nil {
		return err
	}

	w.mu.Lock()
	w.flushed += len(batch)
	w.mu.Unlock()
	w.logger.Info("flushed batch", "count", len(batch))
	return nil
}

// BufferLen returns the number of buffered items.
func (w *Writer[T]) BufferLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Flushed returns the number of items written so far.
func (w *Writer[T]) Flushed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushed
}
