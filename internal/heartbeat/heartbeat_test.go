package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaredwolff/patina-go/internal/bus"
)

func TestIsEmpty_StructuralContentOnly(t *testing.T) {
	cases := []string{
		"",
		"# Header\n\n## Another\n",
		"# Header\n<!-- comment -->\n",
		"# Heartbeat\n\n<!-- Add tasks here -->\n\n## Active\n",
	}
	for _, c := range cases {
		if !isEmpty(c) {
			t.Errorf("isEmpty(%q) = false, want true", c)
		}
	}
}

func TestIsEmpty_ChecksBoxPatterns(t *testing.T) {
	empty := []string{
		"- [ ]", "* [ ]", "- [x]", "* [x]",
		"# Tasks\n- [ ]\n* [x]\n",
	}
	for _, c := range empty {
		if !isEmpty(c) {
			t.Errorf("isEmpty(%q) = false, want true", c)
		}
	}

	nonEmpty := []string{"- [x] Done task", "- [ ] Pending task"}
	for _, c := range nonEmpty {
		if isEmpty(c) {
			t.Errorf("isEmpty(%q) = true, want false", c)
		}
	}
}

func TestIsEmpty_FrontMatterStripped(t *testing.T) {
	content := "---\ntitle: heartbeat\n---\n# Tasks\n"
	if !isEmpty(content) {
		t.Errorf("isEmpty with only front-matter + header = false, want true")
	}
	content = "---\ntitle: heartbeat\n---\n- do the thing\n"
	if isEmpty(content) {
		t.Errorf("isEmpty with front-matter + actionable line = true, want false")
	}
}

func TestIsEmpty_NonEmpty(t *testing.T) {
	cases := []string{
		"- Check system health\n",
		"# Tasks\n- Do something\n",
		"# Heartbeat\n<!-- comment -->\n- [x] Done task\n",
	}
	for _, c := range cases {
		if isEmpty(c) {
			t.Errorf("isEmpty(%q) = true, want false", c)
		}
	}
}

func TestTriggerNow_EmitsInboundMessageWhenActionable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "HEARTBEAT.md"), []byte("- check integrations"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	svc := New(dir, b, 1)
	svc.TriggerNow(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected an inbound message")
	}
	if msg.Channel != "system" || msg.SenderID != "heartbeat" || msg.ChatID != "system:heartbeat" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestTriggerNow_SkipsWhenStructurallyEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "HEARTBEAT.md"), []byte("# Heartbeat\n- [ ]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	svc := New(dir, b, 1)
	svc.TriggerNow(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Fatal("no heartbeat message should be emitted")
	}
}
