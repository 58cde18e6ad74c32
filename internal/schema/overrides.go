package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// Overrides maps an import kind to its override document.
type Overrides map[string]json.RawMessage

// LoadOverrides reads a JSON object keyed by import kind, e.g.
//
//	{"projects": {"aliases": {"Título": "Titulo"}}}
//
// An empty path yields no overrides.
func LoadOverrides(path string) (Overrides, error) {
	if path == "" {
		return Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema overrides: %w", err)
	}
	var o Overrides
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse schema overrides %s: %w", path, err)
	}
	if o == nil {
		o = Overrides{}
	}
	return o, nil
}

// Apply resolves base with the override registered for kind, if any.
func (o Overrides) Apply(kind string, base *Schema) (*Schema, error) {
	s, err := Resolve(base, o[kind])
	if err != nil {
		return nil, fmt.Errorf("%s schema: %w", kind, err)
	}
	return s, nil
}
