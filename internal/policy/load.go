package policy

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML policy table. Unknown keys are rejected so a typo
// cannot silently drop a limit.
func Parse(raw []byte) (*Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var t Table
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode policy table: %w", err)
	}
	return &t, nil
}

// LoadFile reads and validates one policy file.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	t, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadDir publishes every *.yaml file in dir into a new registry.
func LoadDir(dir string) (*Registry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list policy files: %w", err)
	}
	slices.Sort(paths)
	reg := NewRegistry()
	for _, p := range paths {
		t, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		if err := reg.Publish(t); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if len(reg.Versions()) == 0 {
		return nil, fmt.Errorf("no policy files in %s", dir)
	}
	return reg, nil
}
