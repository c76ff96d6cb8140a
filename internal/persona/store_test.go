package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "personas.json"))
	if len(s.List()) != 0 {
		t.Errorf("expected empty store, got %d personas", len(s.List()))
	}
}

func TestLoadMalformedFileYieldsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	s := Load(path)
	if len(s.List()) != 0 {
		t.Errorf("expected empty store for malformed file, got %d personas", len(s.List()))
	}
}

func TestUpsertPersistsAndGetRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.json")
	s := Load(path)

	p := Persona{Name: "Helper", Preamble: "Be concise.", ModelTier: "fast"}
	if err := s.Upsert("helper", p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, ok := s.Get("helper")
	if !ok || got.Name != "Helper" {
		t.Fatalf("Get(helper) = %+v, %v", got, ok)
	}

	reloaded := Load(path)
	got, ok = reloaded.Get("helper")
	if !ok || got.Preamble != "Be concise." {
		t.Errorf("persona did not survive reload: %+v, %v", got, ok)
	}
}

func TestUpsertReplacesExisting(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "personas.json"))
	s.Upsert("helper", Persona{Name: "Helper", ModelTier: "fast"})
	s.Upsert("helper", Persona{Name: "Helper", ModelTier: "smart"})

	got, _ := s.Get("helper")
	if got.ModelTier != "smart" {
		t.Errorf("ModelTier = %q, want smart", got.ModelTier)
	}
	if len(s.List()) != 1 {
		t.Errorf("expected a single persona after replace, got %d", len(s.List()))
	}
}

func TestRemoveReportsWhetherPersonaExisted(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "personas.json"))
	s.Upsert("helper", Persona{Name: "Helper"})

	ok, err := s.Remove("helper")
	if err != nil || !ok {
		t.Fatalf("Remove existing: ok=%v err=%v", ok, err)
	}
	ok, err = s.Remove("helper")
	if err != nil || ok {
		t.Fatalf("Remove missing: ok=%v err=%v", ok, err)
	}
}

func TestListReturnsIndependentSnapshot(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "personas.json"))
	s.Upsert("helper", Persona{Name: "Helper"})

	snapshot := s.List()
	snapshot["helper"] = Persona{Name: "Mutated"}

	got, _ := s.Get("helper")
	if got.Name != "Helper" {
		t.Error("mutating the List() snapshot affected the store")
	}
}
