package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// IgnorePattern suppresses errors during ingestion.
// Match semantics: contains checks "class message transaction", exact
// compares the error class, prefix matches the start of the error class.
type IgnorePattern struct {
	Pattern string `yaml:"pattern"`
	Match   string `yaml:"match"`
	Reason  string `yaml:"reason,omitempty"`
}

// ignoreFile is the on-disk shape of ignore.yml.
type ignoreFile struct {
	Ignore []IgnorePattern `yaml:"ignore"`
}

// LoadIgnorePatterns reads ignore patterns from a YAML file.
// A missing file is not an error; it returns an empty list.
func LoadIgnorePatterns(path string) ([]IgnorePattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ignore file %s: %w", path, err)
	}

	var f ignoreFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ignore file %s: %w", path, err)
	}

	out := f.Ignore[:0:0]
	for _, p := range f.Ignore {
		if p.Pattern == "" {
			continue
		}
		if p.Match == "" {
			p.Match = "contains"
		}
		out = append(out, p)
	}
	return out, nil
}
