package subagent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaredwolff/patina-go/internal/bus"
)

func waitForInbound(t *testing.T, b *bus.Bus) bus.InboundMessage {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if msg, ok := b.TryConsumeInbound(); ok {
			return msg
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for subagent announcement")
	return bus.InboundMessage{}
}

func TestSpawnAnnouncesSuccessOnCompletion(t *testing.T) {
	b := bus.New()
	sup := NewSupervisor(b, func(taskID string, opts RunOptions) Runner {
		return &immediateRunner{result: "done"}
	})

	taskID := sup.Spawn("do the thing", "label", "telegram", "123", RunOptions{})
	if taskID == "" {
		t.Fatal("expected a non-empty task id")
	}

	msg := waitForInbound(t, b)
	if msg.Channel != "system" || msg.Metadata[bus.MetaStatus] != bus.StatusCompleted {
		t.Errorf("unexpected announcement: %+v", msg)
	}
	if msg.Metadata[bus.MetaSubagentID] != taskID {
		t.Errorf("subagent id = %q, want %q", msg.Metadata[bus.MetaSubagentID], taskID)
	}
}

func TestSpawnAnnouncesErrorOnFailure(t *testing.T) {
	b := bus.New()
	sup := NewSupervisor(b, func(taskID string, opts RunOptions) Runner {
		return &immediateRunner{err: errors.New("boom")}
	})

	sup.Spawn("do the thing", "label", "telegram", "123", RunOptions{})

	msg := waitForInbound(t, b)
	if msg.Metadata[bus.MetaStatus] != bus.StatusError {
		t.Errorf("status = %q, want error", msg.Metadata[bus.MetaStatus])
	}
}

func TestSetFactoryRebindsBeforeSpawn(t *testing.T) {
	b := bus.New()
	sup := NewSupervisor(b, nil)
	sup.SetFactory(func(taskID string, opts RunOptions) Runner {
		return &immediateRunner{result: "from rebound factory"}
	})

	sup.Spawn("task", "label", "telegram", "123", RunOptions{})

	msg := waitForInbound(t, b)
	if msg.Metadata[bus.MetaStatus] != bus.StatusCompleted {
		t.Errorf("expected the rebound factory to run, got %+v", msg)
	}
}

func TestCancelReportsWhetherTaskWasRunning(t *testing.T) {
	b := bus.New()
	started := make(chan struct{})
	sup := NewSupervisor(b, func(taskID string, opts RunOptions) Runner {
		return &blockingRunner{started: started}
	})

	taskID := sup.Spawn("task", "label", "telegram", "123", RunOptions{})
	<-started

	if ok := sup.Cancel(taskID); !ok {
		t.Error("expected Cancel to find the running task")
	}
	if ok := sup.Cancel(taskID); ok {
		t.Error("expected a second Cancel to report the task as no longer running")
	}
	if ok := sup.Cancel("unknown"); ok {
		t.Error("expected Cancel of an unknown id to report false")
	}
}

// immediateRunner returns without waiting on context cancellation, for
// tests that just want to observe the announcement.
type immediateRunner struct {
	result string
	err    error
}

func (r *immediateRunner) RunTurn(ctx context.Context, sessionKey, userMessage string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.result, nil
}

// blockingRunner signals it has started, then blocks until the context is
// cancelled, so a test can exercise Cancel while a spawn is in flight.
type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) RunTurn(ctx context.Context, sessionKey, userMessage string) (string, error) {
	close(r.started)
	<-ctx.Done()
	return "", ctx.Err()
}
