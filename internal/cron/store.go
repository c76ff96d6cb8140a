package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
)

// Store holds the job list backed by a JSON file, refreshed from disk
// before every mutation.
type Store struct {
	mu   sync.Mutex
	path string
	file storeFile
	now  func() time.Time
}

// Load reads path, treating a missing or malformed file as an empty store.
func Load(path string) *Store {
	s := &Store{path: path, file: storeFile{Version: 1}, now: time.Now}
	s.refreshLocked()
	return s
}

func (s *Store) refreshLocked() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}
	s.file = f
}

func (s *Store) save() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cron dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cron jobs: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cron jobs tmp: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func nowMs(t time.Time) int64 { return t.UnixMilli() }

// computeNextRun returns the next fire time in epoch-ms for the schedule,
// or nil if the schedule will never fire again (a past "at").
func computeNextRun(sched Schedule, from time.Time, prevNextMs *int64) (*int64, error) {
	switch sched.Kind {
	case KindAt:
		if sched.AtMs == nil {
			return nil, fmt.Errorf("at schedule missing atMs")
		}
		if *sched.AtMs <= nowMs(from) {
			return nil, nil
		}
		v := *sched.AtMs
		return &v, nil

	case KindEvery:
		if sched.EveryMs == nil || *sched.EveryMs <= 0 {
			return nil, fmt.Errorf("every schedule missing positive everyMs")
		}
		candidate := nowMs(from) + *sched.EveryMs
		// Drift correction: never schedule earlier than one interval past
		// the previous next-run. This only wins when the recompute happens
		// before that run was due (e.g. RecomputeAll at startup); once the
		// job has fired, now+every is the later of the two.
		if prevNextMs != nil {
			fromPrev := *prevNextMs + *sched.EveryMs
			if fromPrev > candidate {
				candidate = fromPrev
			}
		}
		return &candidate, nil

	case KindCron:
		if sched.Expr == "" {
			return nil, fmt.Errorf("cron schedule missing expr")
		}
		loc := time.Local
		if sched.TZ != "" {
			l, err := time.LoadLocation(sched.TZ)
			if err != nil {
				return nil, fmt.Errorf("load timezone %q: %w", sched.TZ, err)
			}
			loc = l
		}
		ref := from.In(loc)
		next, err := gronx.NextTickAfter(sched.Expr, ref, false)
		if err != nil {
			return nil, fmt.Errorf("compute next tick for %q: %w", sched.Expr, err)
		}
		v := nowMs(next)
		return &v, nil

	default:
		return nil, fmt.Errorf("unknown schedule kind %q", sched.Kind)
	}
}

// RecomputeAll recomputes next_run_at_ms for every enabled non-"at" job
// as of now, called once at startup.
func (s *Store) RecomputeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for i := range s.file.Jobs {
		j := &s.file.Jobs[i]
		if !j.Enabled || j.Schedule.Kind == KindAt {
			continue
		}
		next, err := computeNextRun(j.Schedule, now, j.State.NextRunAtMs)
		if err != nil {
			j.State.LastError = err.Error()
			continue
		}
		j.State.NextRunAtMs = next
	}
	return s.save()
}

// Add creates a job with a freshly computed next_run_at_ms and persists it.
func (s *Store) Add(name string, sched Schedule, payload Payload, deleteAfterRun bool) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()

	now := s.now()
	next, err := computeNextRun(sched, now, nil)
	if err != nil {
		return Job{}, err
	}
	job := Job{
		ID:             uuid.NewString()[:8],
		Name:           name,
		Enabled:        true,
		Schedule:       sched,
		Payload:        payload,
		State:          State{NextRunAtMs: next},
		CreatedAtMs:    nowMs(now),
		UpdatedAtMs:    nowMs(now),
		DeleteAfterRun: deleteAfterRun,
	}
	s.file.Jobs = append(s.file.Jobs, job)
	if err := s.save(); err != nil {
		return Job{}, err
	}
	return job, nil
}

// List returns a snapshot of all jobs after refreshing from disk.
func (s *Store) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()
	out := make([]Job, len(s.file.Jobs))
	copy(out, s.file.Jobs)
	return out
}

// Get returns a single job by id.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()
	for _, j := range s.file.Jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

// SetEnabled flips a job's enabled flag, recomputing its next run time when
// re-enabling, and persists the change.
func (s *Store) SetEnabled(id string, enabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()

	for i := range s.file.Jobs {
		j := &s.file.Jobs[i]
		if j.ID != id {
			continue
		}
		j.Enabled = enabled
		j.UpdatedAtMs = nowMs(s.now())
		if enabled && j.Schedule.Kind != KindAt {
			next, err := computeNextRun(j.Schedule, s.now(), j.State.NextRunAtMs)
			if err != nil {
				return true, err
			}
			j.State.NextRunAtMs = next
		}
		if !enabled {
			j.State.NextRunAtMs = nil
		}
		return true, s.save()
	}
	return false, nil
}

// Remove deletes a job by id, reporting whether it existed.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()

	before := len(s.file.Jobs)
	filtered := make([]Job, 0, before)
	for _, j := range s.file.Jobs {
		if j.ID != id {
			filtered = append(filtered, j)
		}
	}
	if len(filtered) == before {
		return false, nil
	}
	s.file.Jobs = filtered
	return true, s.save()
}

// earliestNextRun returns the earliest NextRunAtMs among enabled jobs, or
// nil if none are scheduled.
func (s *Store) earliestNextRun() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest *int64
	for _, j := range s.file.Jobs {
		if !j.Enabled || j.State.NextRunAtMs == nil {
			continue
		}
		if earliest == nil || *j.State.NextRunAtMs < *earliest {
			v := *j.State.NextRunAtMs
			earliest = &v
		}
	}
	return earliest
}

// dueJobIndexes returns indexes of enabled jobs whose NextRunAtMs <= now.
func (s *Store) dueJobIndexes(now int64) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idxs []int
	for i, j := range s.file.Jobs {
		if j.Enabled && j.State.NextRunAtMs != nil && *j.State.NextRunAtMs <= now {
			idxs = append(idxs, i)
		}
	}
	return idxs
}
