package rules

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// File is the layout of a rules file.
type File struct {
	Rules   []Definition `koanf:"rules"`
	Exclude []Definition `koanf:"exclude"`
}

// ReadFile parses a YAML rules file.
func ReadFile(path string) (File, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return File{}, fmt.Errorf("loading rules file %s: %w", path, err)
	}

	var f File
	if err := k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return File{}, fmt.Errorf("decoding rules file %s: %w", path, err)
	}
	return f, nil
}

// Load builds an engine from a rules file. A missing or malformed file is
// logged and yields an engine without rules.
func Load(path string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return New(nil, nil, logger)
	}

	f, err := ReadFile(path)
	if err != nil {
		logger.Warn("rules unavailable, every transaction will be uncategorized", "path", path, "error", err)
		return New(nil, nil, logger)
	}
	return New(f.Rules, f.Exclude, logger)
}

// AppendRule adds a categorization rule to the end of the rules list in a
// YAML file, creating the file if needed. Existing content and comments are
// kept.
func AppendRule(path string, def Definition) error {
	if err := def.withDefaults(categorization).validate(categorization); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading rules file: %w", err)
	}

	var doc yamlv3.Node
	if len(data) > 0 {
		if err := yamlv3.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing rules file: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yamlv3.Node{Kind: yamlv3.DocumentNode, Content: []*yamlv3.Node{{Kind: yamlv3.MappingNode}}}
	}

	root := doc.Content[0]
	if root.Kind != yamlv3.MappingNode {
		return fmt.Errorf("rules file %s: top level is not a mapping", path)
	}

	seq := mappingValue(root, "rules")
	if seq == nil {
		seq = &yamlv3.Node{Kind: yamlv3.SequenceNode}
		root.Content = append(root.Content, &yamlv3.Node{Kind: yamlv3.ScalarNode, Value: "rules"}, seq)
	}
	if seq.Kind != yamlv3.SequenceNode {
		// "rules:" with no entries decodes as a null scalar.
		*seq = yamlv3.Node{Kind: yamlv3.SequenceNode}
	}

	var item yamlv3.Node
	if err := item.Encode(def); err != nil {
		return fmt.Errorf("encoding rule: %w", err)
	}
	seq.Content = append(seq.Content, &item)

	out, err := yamlv3.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding rules file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating rules directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing rules file: %w", err)
	}
	return nil
}

func mappingValue(m *yamlv3.Node, key string) *yamlv3.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
