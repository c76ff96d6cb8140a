package contextbuilder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaredwolff/patina-go/internal/memory"
	"github.com/jaredwolff/patina-go/internal/sessions"
	"github.com/jaredwolff/patina-go/internal/skills"
)

func newTestBuilder(t *testing.T) (*Builder, string) {
	t.Helper()
	workspace := t.TempDir()
	mem := memory.NewStore(workspace)
	sk := skills.NewLoader(workspace, "")
	return New(workspace, mem, sk), workspace
}

func TestBuildSystemPromptIncludesIdentity(t *testing.T) {
	b, _ := newTestBuilder(t)
	prompt, err := b.BuildSystemPrompt()
	if err != nil {
		t.Fatalf("BuildSystemPrompt: %v", err)
	}
	if !strings.Contains(prompt, "# Patina") {
		t.Errorf("system prompt missing identity block: %q", prompt)
	}
}

func TestBuildSystemPromptIncludesBootstrapFilesInOrder(t *testing.T) {
	b, workspace := newTestBuilder(t)
	if err := os.WriteFile(filepath.Join(workspace, "USER.md"), []byte("I like Go."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "AGENTS.md"), []byte("Be terse."), 0o644); err != nil {
		t.Fatal(err)
	}
	prompt, err := b.BuildSystemPrompt()
	if err != nil {
		t.Fatalf("BuildSystemPrompt: %v", err)
	}
	agentsIdx := strings.Index(prompt, "## AGENTS.md")
	userIdx := strings.Index(prompt, "## USER.md")
	if agentsIdx == -1 || userIdx == -1 {
		t.Fatalf("expected both bootstrap sections present: %q", prompt)
	}
	if agentsIdx > userIdx {
		t.Errorf("AGENTS.md should appear before USER.md per bootstrap order")
	}
}

func TestBuildSystemPromptIncludesLongTermMemory(t *testing.T) {
	b, workspace := newTestBuilder(t)
	memDir := filepath.Join(workspace, "memory")
	if err := os.MkdirAll(memDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(memDir, "MEMORY.md"), []byte("The user prefers dark mode."), 0o644); err != nil {
		t.Fatal(err)
	}
	prompt, err := b.BuildSystemPrompt()
	if err != nil {
		t.Fatalf("BuildSystemPrompt: %v", err)
	}
	if !strings.Contains(prompt, "# Memory") || !strings.Contains(prompt, "The user prefers dark mode.") {
		t.Errorf("system prompt missing memory section: %q", prompt)
	}
}

func TestBuildSystemPromptPreambleOverrideReplacesEverything(t *testing.T) {
	b, workspace := newTestBuilder(t)
	if err := os.WriteFile(filepath.Join(workspace, "AGENTS.md"), []byte("Be terse."), 0o644); err != nil {
		t.Fatal(err)
	}
	override := b.WithPreambleOverride("You are a focused background worker.")
	prompt, err := override.BuildSystemPrompt()
	if err != nil {
		t.Fatalf("BuildSystemPrompt: %v", err)
	}
	if prompt != "You are a focused background worker." {
		t.Errorf("preamble override should replace the whole prompt, got %q", prompt)
	}
}

func TestBuildMessagesAppendsCurrentSessionBlock(t *testing.T) {
	b, _ := newTestBuilder(t)
	msgs, err := b.BuildMessages(nil, "hello", "cli", "interactive", nil)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want system + current user turn", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "## Current Session") ||
		!strings.Contains(msgs[0].Content, "Channel: cli") ||
		!strings.Contains(msgs[0].Content, "Chat ID: interactive") {
		t.Errorf("system message missing current session block: %q", msgs[0].Content)
	}
	if msgs[1].Content != "hello" {
		t.Errorf("current turn content = %q, want hello", msgs[1].Content)
	}
}

func TestBuildMessagesOmitsSessionBlockWhenUnset(t *testing.T) {
	b, _ := newTestBuilder(t)
	msgs, err := b.BuildMessages(nil, "hello", "", "", nil)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if strings.Contains(msgs[0].Content, "Current Session") {
		t.Errorf("system message should not include a session block when channel/chatID are empty")
	}
}

func TestBuildMessagesPreservesHistoryReasoning(t *testing.T) {
	b, _ := newTestBuilder(t)
	history := []sessions.Message{
		{Role: "user", Content: "what's 2+2"},
		{Role: "assistant", Content: "4", ReasoningContent: "basic arithmetic"},
	}
	msgs, err := b.BuildMessages(history, "thanks", "", "", nil)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	// system + 2 history + current = 4
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[2].ReasoningContent != "basic arithmetic" {
		t.Errorf("reasoning content not preserved: %+v", msgs[2])
	}
}

func TestBuildMessagesSkipsNonImageMedia(t *testing.T) {
	b, _ := newTestBuilder(t)
	dir := t.TempDir()
	textPath := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(textPath, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}
	msgs, err := b.BuildMessages(nil, "see attached", "", "", []string{textPath})
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	current := msgs[len(msgs)-1]
	if len(current.Images) != 0 {
		t.Errorf("non-image media should not produce image parts, got %d", len(current.Images))
	}
}

func TestBuildMessagesEncodesImageMediaAsBase64(t *testing.T) {
	b, _ := newTestBuilder(t)
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "pic.png")
	if err := os.WriteFile(imgPath, []byte{0x89, 'P', 'N', 'G'}, 0o644); err != nil {
		t.Fatal(err)
	}
	msgs, err := b.BuildMessages(nil, "see attached", "", "", []string{imgPath})
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	current := msgs[len(msgs)-1]
	if len(current.Images) != 1 {
		t.Fatalf("got %d image parts, want 1", len(current.Images))
	}
	if current.Images[0].MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", current.Images[0].MimeType)
	}
	if current.Images[0].Data == "" {
		t.Errorf("image data should be base64-encoded, got empty string")
	}
}

func TestBuildMessagesInjectsChannelRules(t *testing.T) {
	b, _ := newTestBuilder(t)
	b.SetChannelRules(map[string]string{"slack": "No markdown tables."})

	msgs, err := b.BuildMessages(nil, "hello", "slack", "C123", nil)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if !strings.Contains(msgs[0].Content, "## Channel Rules (slack)") ||
		!strings.Contains(msgs[0].Content, "No markdown tables.") {
		t.Errorf("system prompt missing slack channel rules: %q", msgs[0].Content)
	}

	msgs, err = b.BuildMessages(nil, "hello", "cli", "interactive", nil)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if strings.Contains(msgs[0].Content, "Channel Rules") {
		t.Errorf("channel rules for slack must not leak into cli turns")
	}
}

func TestChannelRulesSurviveOverride(t *testing.T) {
	b, _ := newTestBuilder(t)
	b.SetChannelRules(map[string]string{"slack": "No markdown tables."})
	ob := b.WithPreambleOverride("You are a narrow worker.")

	msgs, err := ob.BuildMessages(nil, "hello", "slack", "C123", nil)
	if err != nil {
		t.Fatalf("BuildMessages: %v", err)
	}
	if !strings.HasPrefix(msgs[0].Content, "You are a narrow worker.") {
		t.Errorf("override preamble must replace the assembled prompt")
	}
	if !strings.Contains(msgs[0].Content, "## Channel Rules (slack)") {
		t.Errorf("channel rules should still apply under a persona override")
	}
}
