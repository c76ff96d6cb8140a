package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jaredwolff/patina-go/internal/bus"
)

// Scheduler runs the single sleep-until-next-fire timer loop over a Store,
// publishing due jobs onto the message bus.
type Scheduler struct {
	store *Store
	b     *bus.Bus

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(store *Store, b *bus.Bus) *Scheduler {
	return &Scheduler{store: store, b: b}
}

// Start arms the timer loop. Calling Start again cancels any prior loop
// first, so a mutation can always safely re-arm.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(loopCtx, done)
}

// Stop cancels the timer loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
		s.done = nil
	}
}

// Rearm re-triggers the loop after a job add/remove/enable/disable, so the
// new earliest deadline takes effect without waiting out the stale one.
func (s *Scheduler) Rearm(ctx context.Context) {
	s.Start(ctx)
}

// RunNow fires a job immediately regardless of its schedule, reporting
// whether the job id was found. Used by the "cron run" CLI surface.
func (s *Scheduler) RunNow(ctx context.Context, id string) (bool, error) {
	s.store.mu.Lock()
	idx := -1
	for i, j := range s.store.file.Jobs {
		if j.ID == id {
			idx = i
			break
		}
	}
	s.store.mu.Unlock()
	if idx < 0 {
		return false, nil
	}
	s.fireJob(ctx, idx, time.Now())
	if err := s.store.save(); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		earliest := s.store.earliestNextRun()
		if earliest == nil {
			return
		}
		wait := time.Until(time.UnixMilli(*earliest))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.executeDueJobs(ctx)
	}
}

func (s *Scheduler) executeDueJobs(ctx context.Context) {
	now := time.Now()
	nowMsVal := now.UnixMilli()
	for _, idx := range s.store.dueJobIndexes(nowMsVal) {
		s.fireJob(ctx, idx, now)
	}
	if err := s.store.save(); err != nil {
		slog.Warn("failed to persist cron store after firing jobs", "error", err)
	}
}

func (s *Scheduler) fireJob(ctx context.Context, idx int, now time.Time) {
	s.store.mu.Lock()
	if idx < 0 || idx >= len(s.store.file.Jobs) {
		s.store.mu.Unlock()
		return
	}
	job := &s.store.file.Jobs[idx]

	channel := job.Payload.Channel
	if channel == "" {
		channel = "system"
	}
	chatID := job.Payload.To
	if chatID == "" {
		chatID = "cron"
	}
	msg := bus.InboundMessage{
		Channel:   channel,
		SenderID:  "cron",
		ChatID:    chatID,
		Content:   job.Payload.Message,
		Timestamp: now,
		Metadata: map[string]string{
			bus.MetaCronJobID:   job.ID,
			bus.MetaCronJobName: job.Name,
		},
	}

	nowV := now.UnixMilli()
	job.State.LastRunAtMs = &nowV
	job.State.LastStatus = "ok"
	job.State.LastError = ""

	if job.Schedule.Kind == KindAt {
		if job.DeleteAfterRun {
			s.store.file.Jobs = append(s.store.file.Jobs[:idx], s.store.file.Jobs[idx+1:]...)
		} else {
			job.Enabled = false
			job.State.NextRunAtMs = nil
		}
	} else {
		next, err := computeNextRun(job.Schedule, now, job.State.NextRunAtMs)
		if err != nil {
			job.State.LastStatus = "error"
			job.State.LastError = err.Error()
			job.State.NextRunAtMs = nil
		} else {
			job.State.NextRunAtMs = next
		}
	}
	s.store.mu.Unlock()

	s.b.PublishInbound(ctx, msg)
}
