package data

import (
	"fmt"
	"os"

	"github.com/l1jgo/enginecore/internal/core/doc"
	"gopkg.in/yaml.v3"
)

type entityFile struct {
	Entities []*doc.Document `yaml:"entities"`
}

// EntityTable holds entity documents to spawn at start-up, in file order.
type EntityTable struct {
	entries []*doc.Document
	byID    map[string]*doc.Document
}

// LoadEntityTable loads an entity template YAML file.
func LoadEntityTable(path string) (*EntityTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entity templates: %w", err)
	}
	t, err := ParseEntityTable(raw)
	if err != nil {
		return nil, fmt.Errorf("parse entity templates %s: %w", path, err)
	}
	return t, nil
}

func ParseEntityTable(raw []byte) (*EntityTable, error) {
	var f entityFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	t := &EntityTable{
		entries: make([]*doc.Document, 0, len(f.Entities)),
		byID:    make(map[string]*doc.Document, len(f.Entities)),
	}
	for i, e := range f.Entities {
		if e == nil {
			return nil, fmt.Errorf("entity %d: empty entry", i)
		}
		if id := e.String("id", ""); id != "" {
			if _, dup := t.byID[id]; dup {
				return nil, fmt.Errorf("entity %d: duplicate id %q", i, id)
			}
			t.byID[id] = e
		}
		t.entries = append(t.entries, e)
	}
	return t, nil
}

// Get returns a copy of the entity document with id.
func (t *EntityTable) Get(id string) (*doc.Document, bool) {
	e, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// All returns copies of every entity document in file order.
func (t *EntityTable) All() []*doc.Document {
	out := make([]*doc.Document, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Clone()
	}
	return out
}

// Count returns the total number of entity documents loaded.
func (t *EntityTable) Count() int {
	return len(t.entries)
}
