package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSeedContainsYui(t *testing.T) {
	store := NewMemoryStore(Seed())

	yui, ok := store.FindByID("yui")
	if !ok {
		t.Fatal("expected seeded persona yui")
	}
	if yui.UserAlias != "ototo-kun" {
		t.Fatalf("unexpected alias %q", yui.UserAlias)
	}
	if _, ok := store.FindByID("missing"); ok {
		t.Fatal("unexpected persona found")
	}
}

func TestListReturnsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	list := store.List()
	list[0].Name = "changed"

	if store.List()[0].Name != "Yui" {
		t.Fatal("store mutated through List")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	doc := `personas:
  - id: " mika "
    name: Mika
    tone: cheerful
    userAlias: senpai
    traits: [bright, curious]
    rules:
      - Keep answers short.
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	personas, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if len(personas) != 1 {
		t.Fatalf("expected 1 persona, got %d", len(personas))
	}
	p := personas[0]
	if p.ID != "mika" || p.UserAlias != "senpai" || len(p.Traits) != 2 || len(p.Rules) != 1 {
		t.Fatalf("unexpected persona %#v", p)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"empty":     "personas: []",
		"no name":   "personas:\n  - id: a\n",
		"duplicate": "personas:\n  - {id: a, name: A}\n  - {id: a, name: B}\n",
		"malformed": "personas: [",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
