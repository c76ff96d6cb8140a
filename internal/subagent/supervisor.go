// Package subagent implements the background agent spawner: each spawn
// mints a task id, runs one restricted turn in a detached goroutine, and
// announces the result back onto the message bus.
package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaredwolff/patina-go/internal/bus"
)

// RunOptions carries the persona override and extra metadata a spawn
// wants threaded through to the completion announcement.
type RunOptions struct {
	Preamble      string
	ModelTier     string
	ExtraMetadata map[string]string
}

// Runner executes one subagent turn. Implemented by a restricted agent
// loop; this package never imports the agent package directly — the
// concrete loop is handed in via LoopFactory at wiring time, the same
// closure-injection idiom the tool registry uses for its own dependencies.
type Runner interface {
	RunTurn(ctx context.Context, sessionKey, userMessage string) (string, error)
}

// LoopFactory builds a restricted Runner for one spawn.
type LoopFactory func(taskID string, opts RunOptions) Runner

// Supervisor tracks running subagents and lets them be cancelled.
type Supervisor struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc

	b       *bus.Bus
	newLoop LoopFactory
}

func NewSupervisor(b *bus.Bus, newLoop LoopFactory) *Supervisor {
	return &Supervisor{
		running: make(map[string]context.CancelFunc),
		b:       b,
		newLoop: newLoop,
	}
}

// SetFactory (re)binds the LoopFactory after construction. Used when the
// factory closure itself needs a reference to this Supervisor (the
// restricted tool registry's spawn/task tools are wired to the
// Supervisor before the factory that depends on that same registry can
// be built) — callers construct the Supervisor with a nil factory, wire
// dependent tools to it, then call SetFactory once the factory is ready.
func (s *Supervisor) SetFactory(newLoop LoopFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newLoop = newLoop
}

// Spawn mints an 8-char task id, launches a detached goroutine running one
// turn, and returns the task id immediately without waiting for it.
func (s *Supervisor) Spawn(task, label, originChannel, originChatID string, opts RunOptions) string {
	taskID := uuid.NewString()[:8]
	if label == "" {
		label = fmt.Sprintf("subagent-%s", taskID)
	}

	sessionKey := "subagent:" + taskID
	if originChannel == "task" {
		sessionKey = "task:" + originChatID
	}

	s.mu.Lock()
	factory := s.newLoop
	s.mu.Unlock()
	runner := factory(taskID, opts)
	taskCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.running[taskID] = cancel
	s.mu.Unlock()

	go s.run(taskCtx, taskID, label, task, sessionKey, originChannel, originChatID, opts, runner)

	return taskID
}

func (s *Supervisor) run(ctx context.Context, taskID, label, task, sessionKey, originChannel, originChatID string, opts RunOptions, runner Runner) {
	defer func() {
		s.mu.Lock()
		delete(s.running, taskID)
		s.mu.Unlock()
	}()

	slog.Info("subagent starting", "task_id", taskID, "label", label)
	result, err := runner.RunTurn(ctx, sessionKey, task)

	var announcement, status string
	if err != nil {
		status = bus.StatusError
		announcement = fmt.Sprintf("[Subagent %q failed]\nTask: %s\nError: %s", label, task, err.Error())
	} else {
		status = bus.StatusCompleted
		announcement = fmt.Sprintf("[Subagent %q completed]\nTask: %s\nResult: %s", label, task, result)
	}

	metadata := map[string]string{
		bus.MetaSubagentID: taskID,
		bus.MetaStatus:     status,
	}
	for k, v := range opts.ExtraMetadata {
		metadata[k] = v
	}

	s.b.PublishInbound(context.Background(), bus.InboundMessage{
		Channel:   "system",
		SenderID:  "subagent",
		ChatID:    originChannel + ":" + originChatID,
		Content:   announcement,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
}

// Cancel aborts a running subagent's detached task, reporting whether it
// was found.
func (s *Supervisor) Cancel(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.running[taskID]
	if !ok {
		return false
	}
	cancel()
	delete(s.running, taskID)
	return true
}
