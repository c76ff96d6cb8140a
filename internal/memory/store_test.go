package memory

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadLongTermMissingReturnsEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	got, err := s.ReadLongTerm()
	if err != nil {
		t.Fatalf("ReadLongTerm: %v", err)
	}
	if got != "" {
		t.Errorf("ReadLongTerm on a missing file = %q, want empty", got)
	}
}

func TestWriteReadLongTermRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.WriteLongTerm("facts about the user"); err != nil {
		t.Fatalf("WriteLongTerm: %v", err)
	}
	got, err := s.ReadLongTerm()
	if err != nil {
		t.Fatalf("ReadLongTerm: %v", err)
	}
	if got != "facts about the user" {
		t.Errorf("ReadLongTerm = %q, want facts about the user", got)
	}
}

func TestWriteLongTermOverwrites(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.WriteLongTerm("first"); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteLongTerm("second"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.ReadLongTerm()
	if got != "second" {
		t.Errorf("ReadLongTerm = %q, want second (overwritten)", got)
	}
}

func TestAppendHistoryCreatesParentDirs(t *testing.T) {
	workspace := filepath.Join(t.TempDir(), "nested", "workspace")
	s := NewStore(workspace)
	if err := s.AppendHistory("[2026-01-01 00:00] did a thing"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(workspace, "memory", "HISTORY.md"))
	if err != nil {
		t.Fatalf("read HISTORY.md: %v", err)
	}
	want := "\n[2026-01-01 00:00] did a thing\n"
	if string(b) != want {
		t.Errorf("HISTORY.md = %q, want %q", string(b), want)
	}
}

func TestAppendHistorySeparatesEntriesWithBlankLine(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.AppendHistory("first entry"); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendHistory("second entry"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(s.dir, historyFile))
	if err != nil {
		t.Fatal(err)
	}
	want := "\nfirst entry\n\nsecond entry\n"
	if string(b) != want {
		t.Errorf("HISTORY.md = %q, want %q", string(b), want)
	}
}
