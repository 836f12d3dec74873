package rules

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a rule file.  Both a top-level list of rules
// and a {"rules": [...]} document are accepted; JSON is valid YAML so the
// same decoder reads both.
type File struct {
	Priorities map[string]int `yaml:"priorities,omitempty"`
	Rules      []Rule         `yaml:"rules"`
}

// LoadFile reads and normalises the rules in path.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	f, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a rule document.
func Parse(raw []byte) (*File, error) {
	var f File
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' || bytes.HasPrefix(trimmed, []byte("- ")) {
		if err := yaml.Unmarshal(raw, &f.Rules); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	for i := range f.Rules {
		f.Rules[i].Normalize()
	}
	return &f, nil
}

// Scale returns the default priority scale extended with the file's own
// categories.
func (f *File) Scale() PriorityScale {
	return DefaultPriorities().With(f.Priorities)
}
