package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/jaredwolff/patina-go/internal/bus"
)

func TestSlashCommandRecognizesKnownCommands(t *testing.T) {
	cases := map[string]bool{
		"/new":          true,
		"/help":         true,
		"/start":        true,
		"/new please":   true,
		"hello /new":    false,
		"":               false,
		"not a command": false,
	}
	for content, want := range cases {
		_, got := slashCommand(content)
		if got != want {
			t.Errorf("slashCommand(%q) ok = %v, want %v", content, got, want)
		}
	}
}

func TestSplitSystemChatID(t *testing.T) {
	channel, id := splitSystemChatID("cli:interactive")
	if channel != "cli" || id != "interactive" {
		t.Errorf("splitSystemChatID = (%q, %q), want (cli, interactive)", channel, id)
	}
}

func TestSplitSystemChatIDMalformedFallsBackToSystem(t *testing.T) {
	channel, id := splitSystemChatID("no-colon-here")
	if channel != "system" || id != "no-colon-here" {
		t.Errorf("splitSystemChatID(malformed) = (%q, %q), want (system, no-colon-here)", channel, id)
	}
}

func TestMatchesSessionExcludesSystemAndSlashCommands(t *testing.T) {
	if matchesSession(bus.InboundMessage{Channel: "system", ChatID: "x"}, "system:x") {
		t.Errorf("system-channel messages should never coalesce")
	}
	if matchesSession(bus.InboundMessage{Channel: "cli", ChatID: "a", Content: "/new"}, "cli:a") {
		t.Errorf("slash commands should never coalesce")
	}
	if !matchesSession(bus.InboundMessage{Channel: "cli", ChatID: "a", Content: "hi"}, "cli:a") {
		t.Errorf("same-session plain message should match")
	}
	if matchesSession(bus.InboundMessage{Channel: "cli", ChatID: "b", Content: "hi"}, "cli:a") {
		t.Errorf("different-session message should not match")
	}
}

// Coalescing preserves arrival order.
func TestCoalescePreservesOrder(t *testing.T) {
	d := &Dispatcher{
		Bus: bus.New(),
		pending: []bus.InboundMessage{
			{Channel: "cli", ChatID: "a", Content: "B"},
			{Channel: "cli", ChatID: "other", Content: "ignored"},
			{Channel: "cli", ChatID: "a", Content: "C"},
		},
	}
	parts := []string{"A"}
	var media []string
	metadata := map[string]string{}

	d.coalesce("cli:a", &parts, &media, &metadata)

	got := ""
	for i, p := range parts {
		if i > 0 {
			got += "\n\n"
		}
		got += p
	}
	if got != "A\n\nB\n\nC" {
		t.Errorf("coalesced content = %q, want %q", got, "A\n\nB\n\nC")
	}
	if len(d.pending) != 1 || d.pending[0].ChatID != "other" {
		t.Errorf("pending should retain only the non-matching message, got %+v", d.pending)
	}
}

func TestCoalesceNoPendingLeavesPartsUnchanged(t *testing.T) {
	d := &Dispatcher{Bus: bus.New()}
	parts := []string{"solo"}
	var media []string
	metadata := map[string]string{}

	d.coalesce("cli:a", &parts, &media, &metadata)

	if len(parts) != 1 || parts[0] != "solo" {
		t.Errorf("parts = %v, want [solo] when nothing pending", parts)
	}
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	return s.text, s.err
}

func TestTranscribeAudioAppendsTranscriptAndDropsAudioMedia(t *testing.T) {
	d := &Dispatcher{Transcriber: &stubTranscriber{text: "voice note"}}
	content, media := d.transcribeAudio(context.Background(), "typed text",
		[]string{"/tmp/clip.mp3", "/tmp/photo.png"})
	if content != "typed text\n\nvoice note" {
		t.Errorf("content = %q, want transcript appended after typed text", content)
	}
	if len(media) != 1 || media[0] != "/tmp/photo.png" {
		t.Errorf("media = %v, want only the image to remain", media)
	}
}

func TestTranscribeAudioFailureKeepsFileInMedia(t *testing.T) {
	d := &Dispatcher{Transcriber: &stubTranscriber{err: errors.New("no model")}}
	content, media := d.transcribeAudio(context.Background(), "hi", []string{"/tmp/clip.ogg"})
	if content != "hi" {
		t.Errorf("content = %q, want unchanged on transcription failure", content)
	}
	if len(media) != 1 {
		t.Errorf("media = %v, want failed audio file kept", media)
	}
}

func TestTranscribeAudioNilTranscriberPassesThrough(t *testing.T) {
	d := &Dispatcher{}
	content, media := d.transcribeAudio(context.Background(), "hi", []string{"/tmp/clip.mp3"})
	if content != "hi" || len(media) != 1 {
		t.Errorf("nil transcriber must pass content and media through unchanged")
	}
}
