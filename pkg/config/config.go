// Package config loads bankanalyzer settings from built-in defaults, an
// optional YAML file and BANKANALYZER_ environment variables, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix is stripped from environment variable names. A double
// underscore separates nested keys, e.g.
// BANKANALYZER_WRITER_CONFIG__JSON__FILE_PATH.
const EnvPrefix = "BANKANALYZER_"

// DefaultFile is the YAML file read when no path is given.
const DefaultFile = "config/bankanalyzer.yaml"

// Default locations, relative to the working directory.
const (
	DefaultConfigDir        = "config"
	DefaultOverridesFile    = "data/manual_overrides.yaml"
	DefaultProcessedDir     = "data/processed"
	DefaultOutputDir        = "data/output"
	DefaultClientSecretFile = "data/client_secret.json"
	DefaultTokenFile        = "data/token.json"
)

// Config holds the application configuration.
type Config struct {
	ConfigDir        string `koanf:"config_dir"`
	RulesFile        string `koanf:"rules_file"`
	OverridesFile    string `koanf:"overrides_file"`
	ProcessedDir     string `koanf:"processed_dir"`
	OutputDir        string `koanf:"output_dir"`
	LogLevel         string `koanf:"log_level"`
	LogJSON          bool   `koanf:"log_json"`
	ClientSecretFile string `koanf:"client_secret_file"`
	TokenFile        string `koanf:"token_file"`

	// Writers names the writer plugins an analyze run feeds.
	Writers []string `koanf:"-"`

	// File is the YAML file that was loaded, empty when none was found.
	File string `koanf:"-"`

	writerConfig map[string]map[string]any
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ConfigDir:        DefaultConfigDir,
		OverridesFile:    DefaultOverridesFile,
		ProcessedDir:     DefaultProcessedDir,
		OutputDir:        DefaultOutputDir,
		LogLevel:         "warn",
		ClientSecretFile: DefaultClientSecretFile,
		TokenFile:        DefaultTokenFile,
		Writers:          []string{"json"},
	}
}

// Load reads path (DefaultFile when empty) on top of the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
	}

	k := koanf.New(".")
	switch _, err := os.Stat(path); {
	case err == nil:
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("loading config file %s: %w", path, err)
		}
		cfg.File = path
	case !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return cfg, fmt.Errorf("loading environment: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	if k.Exists("writers") {
		cfg.Writers = splitList(k.Get("writers"))
	}

	cfg.writerConfig = make(map[string]map[string]any)
	for name, raw := range k.Cut("writer_config").Raw() {
		if m, ok := raw.(map[string]any); ok {
			cfg.writerConfig[name] = m
		}
	}

	if cfg.RulesFile == "" {
		cfg.RulesFile = filepath.Join(cfg.ConfigDir, "rules.yaml")
	}
	return cfg, nil
}

// envKey maps BANKANALYZER_WRITER_CONFIG__JSON__FILE_PATH to
// writer_config.json.file_path.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// splitList accepts a YAML list or a comma separated string.
func splitList(v any) []string {
	var items []string
	switch t := v.(type) {
	case string:
		items = strings.Split(t, ",")
	case []any:
		for _, e := range t {
			items = append(items, fmt.Sprint(e))
		}
	case []string:
		items = t
	}

	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the configuration against the known writer names.
func (c Config) Validate(knownWriters []string) error {
	if c.RulesFile == "" {
		return fmt.Errorf("%w: rules file path is empty", ErrInvalidConfig)
	}
	for _, w := range c.Writers {
		if !slices.Contains(knownWriters, w) {
			return fmt.Errorf("%w: unknown writer %q (available: %s)", ErrInvalidConfig, w, strings.Join(knownWriters, ", "))
		}
	}
	return nil
}

// SetWriter sets one key of a writer's configuration.
func (c *Config) SetWriter(name, key string, value any) {
	if c.writerConfig == nil {
		c.writerConfig = make(map[string]map[string]any)
	}
	if c.writerConfig[name] == nil {
		c.writerConfig[name] = make(map[string]any)
	}
	c.writerConfig[name][key] = value
}

// WriterConfig returns the JSON configuration handed to the named writer
// plugin. File based writers default their output path into OutputDir.
func (c Config) WriterConfig(name string) (json.RawMessage, error) {
	m := make(map[string]any)
	for k, v := range c.writerConfig[name] {
		m[k] = v
	}

	if key, base, ok := defaultOutput(name); ok {
		if s, _ := m[key].(string); s == "" {
			m[key] = filepath.Join(c.OutputDir, base)
		}
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s writer config: %w", name, err)
	}
	return raw, nil
}

func defaultOutput(writer string) (key, base string, ok bool) {
	switch writer {
	case "json":
		return "file_path", "wydatki.json", true
	case "csv":
		return "file_path", "transakcje.csv", true
	case "chart":
		return "file_path", "top_wydatki.png", true
	case "sqlite":
		return "path", "bankanalyzer.db", true
	}
	return "", "", false
}
