package sessions

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetOrCreateLazilyCreatesSession(t *testing.T) {
	m := NewManager(t.TempDir())
	s, err := m.GetOrCreate("cli:abc")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s.Key != "cli:abc" || len(s.Messages) != 0 {
		t.Errorf("GetOrCreate returned unexpected session: %+v", s)
	}
}

func TestRoundTripPreservesMessagesToolsAndReasoning(t *testing.T) {
	dir := t.TempDir()
	key := "telegram:42"

	m := NewManager(dir)
	if _, err := m.GetOrCreate(key); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	msgs := []Message{
		{Role: "user", Content: "hello", Timestamp: time.Now().UTC()},
		{
			Role:             "assistant",
			Content:          "hi there",
			Timestamp:        time.Now().UTC(),
			ToolsUsed:        []string{"exec", "read_file"},
			ReasoningContent: "thinking it through",
		},
	}
	for _, msg := range msgs {
		if err := m.AddMessage(key, msg); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}
	if err := m.Save(key); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m.Invalidate(key)

	reloaded, err := m.GetOrCreate(key)
	if err != nil {
		t.Fatalf("GetOrCreate after reload: %v", err)
	}
	if len(reloaded.Messages) != len(msgs) {
		t.Fatalf("got %d messages, want %d", len(reloaded.Messages), len(msgs))
	}
	for i, want := range msgs {
		got := reloaded.Messages[i]
		if got.Role != want.Role || got.Content != want.Content {
			t.Errorf("message %d = %+v, want %+v", i, got, want)
		}
		if got.ReasoningContent != want.ReasoningContent {
			t.Errorf("message %d reasoning = %q, want %q", i, got.ReasoningContent, want.ReasoningContent)
		}
		if len(got.ToolsUsed) != len(want.ToolsUsed) {
			t.Errorf("message %d tools_used = %v, want %v", i, got.ToolsUsed, want.ToolsUsed)
		}
	}
}

func TestGetHistoryReturnsLastNInOrder(t *testing.T) {
	s := &Session{Key: "cli:x"}
	for i := 0; i < 5; i++ {
		s.Messages = append(s.Messages, Message{Content: string(rune('a' + i))})
	}
	hist := GetHistory(s, 2)
	if len(hist) != 2 || hist[0].Content != "d" || hist[1].Content != "e" {
		t.Errorf("GetHistory(2) = %+v, want last 2 in order", hist)
	}
	full := GetHistory(s, 100)
	if len(full) != 5 {
		t.Errorf("GetHistory(100) = %d messages, want 5 (clamped)", len(full))
	}
	all := GetHistory(s, 0)
	if len(all) != 5 {
		t.Errorf("GetHistory(0) = %d messages, want all", len(all))
	}
}

func TestLoadMalformedLineAbortsWithLineNumber(t *testing.T) {
	dir := t.TempDir()
	key := "cli:bad"
	path := filepath.Join(dir, sanitizeKey(key)+".jsonl")
	content := "{\"role\":\"user\",\"content\":\"ok\"}\nnot json\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewManager(dir)
	_, err := m.GetOrCreate(key)
	if err == nil {
		t.Fatal("expected an error for a malformed session file")
	}
}

func TestClearResetsMessagesAndLastConsolidated(t *testing.T) {
	m := NewManager(t.TempDir())
	key := "cli:y"
	if _, err := m.GetOrCreate(key); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := m.AddMessage(key, Message{Role: "user", Content: "x"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := m.SetLastConsolidated(key, 1); err != nil {
		t.Fatalf("SetLastConsolidated: %v", err)
	}
	if err := m.Clear(key); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	s, _ := m.GetOrCreate(key)
	if len(s.Messages) != 0 || s.LastConsolidated != 0 {
		t.Errorf("Clear left %+v, want empty messages and last_consolidated=0", s)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	m := NewManager(t.TempDir())
	key := "cli:z"
	if _, err := m.GetOrCreate(key); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := m.SetMetadata(key, "persona", "researcher"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	v, ok := m.GetMetadata(key, "persona")
	if !ok || v != "researcher" {
		t.Errorf("GetMetadata = (%q, %v), want (researcher, true)", v, ok)
	}
	_, ok = m.GetMetadata(key, "missing")
	if ok {
		t.Errorf("GetMetadata for missing key should be ok=false")
	}
}

func TestSanitizeKeyReplacesUnsafeChars(t *testing.T) {
	got := sanitizeKey("telegram:123 456/789\\x")
	want := "telegram_123_456_789_x"
	if got != want {
		t.Errorf("sanitizeKey = %q, want %q", got, want)
	}
}

func TestSessionsSnapshot(t *testing.T) {
	m := NewManager(t.TempDir())
	if _, err := m.GetOrCreate("cli:a"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetOrCreate("cli:b"); err != nil {
		t.Fatal(err)
	}
	got := m.Sessions()
	if len(got) != 2 {
		t.Errorf("Sessions() returned %d, want 2", len(got))
	}
}
