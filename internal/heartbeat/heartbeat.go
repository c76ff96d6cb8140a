// Package heartbeat implements the periodic HEARTBEAT.md poller: on each
// tick, if the file exists and has actionable content, a fixed prompt is
// published to the bus as a system-channel turn.
package heartbeat

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jaredwolff/patina-go/internal/bus"
)

const defaultInterval = 30 * time.Minute

const prompt = "Read HEARTBEAT.md in your workspace (if it exists). " +
	"Follow any instructions or tasks listed there. " +
	"If nothing needs attention, reply with just: HEARTBEAT_OK"

var checkboxPatterns = map[string]bool{
	"- [ ]": true, "* [ ]": true, "- [x]": true, "* [x]": true,
}

var frontMatterRe = regexp.MustCompile(`(?s)^---\n.*?\n---\n?`)

// Service periodically checks HEARTBEAT.md and publishes an inbound turn
// when it has content worth acting on.
type Service struct {
	workspace string
	interval  time.Duration
	b         *bus.Bus

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Service for workspace. intervalSecs<=0 uses the 30-minute
// default.
func New(workspace string, b *bus.Bus, intervalSecs int) *Service {
	interval := defaultInterval
	if intervalSecs > 0 {
		interval = time.Duration(intervalSecs) * time.Second
	}
	return &Service{workspace: workspace, interval: interval, b: b}
}

// Start runs the tick loop in a goroutine until ctx is cancelled or Stop
// is called.
func (s *Service) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		slog.Info("heartbeat service started", "interval", s.interval)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick(runCtx)
			case <-runCtx.Done():
				return
			}
		}
	}()
}

// Stop cancels the tick loop and waits for it to exit.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("heartbeat service stopped")
}

// TriggerNow runs a single tick synchronously, bypassing the interval —
// used by tests.
func (s *Service) TriggerNow(ctx context.Context) {
	s.tick(ctx)
}

// HeartbeatFile returns the path to HEARTBEAT.md under the workspace.
func (s *Service) HeartbeatFile() string {
	return filepath.Join(s.workspace, "HEARTBEAT.md")
}

func (s *Service) tick(ctx context.Context) {
	path := s.HeartbeatFile()
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Info("heartbeat: no HEARTBEAT.md found, skipping")
		return
	}

	if isEmpty(string(content)) {
		slog.Info("heartbeat: HEARTBEAT.md has no actionable content, skipping")
		return
	}

	slog.Info("heartbeat: found tasks in HEARTBEAT.md, triggering agent")
	s.b.PublishInbound(ctx, bus.InboundMessage{
		Channel:   "system",
		SenderID:  "heartbeat",
		ChatID:    "system:heartbeat",
		Content:   prompt,
		Timestamp: time.Now(),
	})
}

// isEmpty reports whether content has no actionable lines: blank lines,
// "#" headers, "<!-- -->" comments, bare checkbox markers, and a leading
// YAML front-matter block are all considered structural, not content.
func isEmpty(content string) bool {
	content = frontMatterRe.ReplaceAllString(content, "")

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "<!--") {
			continue
		}
		if checkboxPatterns[trimmed] {
			continue
		}
		return false
	}
	return true
}
