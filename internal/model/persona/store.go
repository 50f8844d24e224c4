package persona

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store exposes persona retrieval for HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

// Parse decodes a YAML persona document of the form `personas: [...]`.
func Parse(data []byte) ([]Persona, error) {
	var doc personaFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}
	if len(doc.Personas) == 0 {
		return nil, errors.New("persona file defines no personas")
	}

	seen := make(map[string]bool, len(doc.Personas))
	for i, p := range doc.Personas {
		id := strings.TrimSpace(p.ID)
		if id == "" || strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("persona %d: id and name are required", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("persona %q defined twice", id)
		}
		seen[id] = true
		doc.Personas[i].ID = id
	}
	return doc.Personas, nil
}

// LoadFile reads personas from a YAML file.
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(data)
}
