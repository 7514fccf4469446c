// Package logging provides structured logging configuration using log/slog.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logging configuration options.
type Config struct {
	// Level is the minimum log level to output.
	Level slog.Level
	// JSON enables JSON output format.
	JSON bool
	// Output is the writer to write logs to. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the CLI's default: text output at WARN. The
// BANKANALYZER_LOG_LEVEL environment variable overrides the level.
func DefaultConfig() Config {
	level := slog.LevelWarn
	if logLevel := os.Getenv("BANKANALYZER_LOG_LEVEL"); logLevel != "" {
		level = ParseLevel(logLevel, level)
	}

	return Config{
		Level:  level,
		Output: os.Stderr,
	}
}

// ParseLevel converts a level name to slog.Level, returning fallback for
// unknown names.
func ParseLevel(level string, fallback slog.Level) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return fallback
	}
}

// New builds a logger from cfg. It leaves slog's default logger untouched;
// callers pass the result down explicitly.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	return slog.New(handler)
}
