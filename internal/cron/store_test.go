package cron

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	return Load(filepath.Join(t.TempDir(), "jobs.json"))
}

func TestComputeNextRunAtInFuture(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour).UnixMilli()
	next, err := computeNextRun(Schedule{Kind: KindAt, AtMs: &future}, now, nil)
	if err != nil {
		t.Fatalf("computeNextRun: %v", err)
	}
	if next == nil || *next != future {
		t.Errorf("next = %v, want %d", next, future)
	}
}

func TestComputeNextRunAtInPastYieldsNil(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour).UnixMilli()
	next, err := computeNextRun(Schedule{Kind: KindAt, AtMs: &past}, now, nil)
	if err != nil {
		t.Fatalf("computeNextRun: %v", err)
	}
	if next != nil {
		t.Errorf("next = %v, want nil for a past at-time", *next)
	}
}

func TestComputeNextRunEveryDriftCorrects(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	everyMs := int64(60_000)
	// prevNext was already far in the future relative to now (the recompute
	// ran before that run was due): the next fire should be prevNext+every,
	// not now+every.
	prevNext := now.Add(5 * time.Minute).UnixMilli()

	next, err := computeNextRun(Schedule{Kind: KindEvery, EveryMs: &everyMs}, now, &prevNext)
	if err != nil {
		t.Fatalf("computeNextRun: %v", err)
	}
	want := prevNext + everyMs
	if next == nil || *next != want {
		t.Errorf("next = %v, want %d", next, want)
	}
}

func TestComputeNextRunEveryWithoutPrevUsesNow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	everyMs := int64(30_000)
	next, err := computeNextRun(Schedule{Kind: KindEvery, EveryMs: &everyMs}, now, nil)
	if err != nil {
		t.Fatalf("computeNextRun: %v", err)
	}
	want := now.UnixMilli() + everyMs
	if next == nil || *next != want {
		t.Errorf("next = %v, want %d", next, want)
	}
}

func TestComputeNextRunCronAdvancesToNextTick(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err := computeNextRun(Schedule{Kind: KindCron, Expr: "0 13 * * *", TZ: "UTC"}, now, nil)
	if err != nil {
		t.Fatalf("computeNextRun: %v", err)
	}
	if next == nil {
		t.Fatal("expected a next run time")
	}
	got := time.UnixMilli(*next).UTC()
	if got.Hour() != 13 || got.Day() != now.Day() {
		t.Errorf("next = %v, want 13:00 on %d", got, now.Day())
	}
}

func TestAddAndListRoundTrip(t *testing.T) {
	s := openTestStore(t)
	everyMs := int64(60_000)
	job, err := s.Add("reminder", Schedule{Kind: KindEvery, EveryMs: &everyMs}, Payload{Message: "ping"}, false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if job.ID == "" || !job.Enabled {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.State.NextRunAtMs == nil {
		t.Error("expected next run to be computed on add")
	}

	jobs := s.List()
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Errorf("List returned %d jobs, want 1 matching %s", len(jobs), job.ID)
	}
}

func TestSetEnabledClearsNextRunOnDisable(t *testing.T) {
	s := openTestStore(t)
	everyMs := int64(60_000)
	job, _ := s.Add("reminder", Schedule{Kind: KindEvery, EveryMs: &everyMs}, Payload{Message: "ping"}, false)

	ok, err := s.SetEnabled(job.ID, false)
	if err != nil || !ok {
		t.Fatalf("SetEnabled(false): ok=%v err=%v", ok, err)
	}
	got, _ := s.Get(job.ID)
	if got.Enabled {
		t.Error("expected job to be disabled")
	}
	if got.State.NextRunAtMs != nil {
		t.Error("expected next run to be cleared on disable")
	}

	ok, err = s.SetEnabled(job.ID, true)
	if err != nil || !ok {
		t.Fatalf("SetEnabled(true): ok=%v err=%v", ok, err)
	}
	got, _ = s.Get(job.ID)
	if got.State.NextRunAtMs == nil {
		t.Error("expected next run to be recomputed on re-enable")
	}
}

func TestRemoveReportsWhetherJobExisted(t *testing.T) {
	s := openTestStore(t)
	everyMs := int64(60_000)
	job, _ := s.Add("reminder", Schedule{Kind: KindEvery, EveryMs: &everyMs}, Payload{Message: "ping"}, false)

	ok, err := s.Remove(job.ID)
	if err != nil || !ok {
		t.Fatalf("Remove existing: ok=%v err=%v", ok, err)
	}
	ok, err = s.Remove(job.ID)
	if err != nil || ok {
		t.Fatalf("Remove missing: ok=%v err=%v", ok, err)
	}
}
