package filewatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewNotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	changed := make(chan string, 1)
	w := New([]string{path}, func(p string) {
		select {
		case changed <- p:
		default:
		}
	})
	if w == nil {
		t.Skip("fsnotify unavailable in this environment")
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte(`{"updated":true}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-changed:
		if got != path {
			t.Errorf("changed path = %q, want %q", got, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func TestCloseIsNilSafe(t *testing.T) {
	var w *Watcher
	w.Close() // must not panic on a nil receiver
}
