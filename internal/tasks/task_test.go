package tasks

import (
	"path/filepath"
	"testing"
)

func openTestBoard(t *testing.T) *Board {
	t.Helper()
	return Load(filepath.Join(t.TempDir(), "tasks.json"))
}

func TestAddCreatesTodoTask(t *testing.T) {
	b := openTestBoard(t)
	task, err := b.Add("Ship feature", "details", PriorityHigh, nil, []string{"infra"}, "alice")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if task.Status != StatusTodo {
		t.Errorf("Status = %q, want todo", task.Status)
	}
	if task.ID == "" {
		t.Error("expected a non-empty id")
	}
}

func TestMoveToDoneStampsCompletedAt(t *testing.T) {
	b := openTestBoard(t)
	task, _ := b.Add("Ship feature", "", PriorityLow, nil, nil, "alice")

	ok, err := b.Move(task.ID, StatusDone)
	if err != nil || !ok {
		t.Fatalf("Move: ok=%v err=%v", ok, err)
	}

	got, _ := b.Get(task.ID)
	if got.Status != StatusDone {
		t.Errorf("Status = %q, want done", got.Status)
	}
	if got.CompletedAtMs == nil {
		t.Error("expected completedAtMs to be set")
	}
}

func TestMoveAwayFromDoneDoesNotClearCompletedAt(t *testing.T) {
	b := openTestBoard(t)
	task, _ := b.Add("Ship feature", "", PriorityLow, nil, nil, "alice")
	b.Move(task.ID, StatusDone)
	b.Move(task.ID, StatusInProgress)

	got, _ := b.Get(task.ID)
	if got.CompletedAtMs == nil {
		t.Error("expected completedAtMs to remain set once stamped")
	}
}

func TestParseStatusAcceptsHyphenAndUnderscoreVariants(t *testing.T) {
	cases := map[string]Status{
		"in-progress":  StatusInProgress,
		"in_progress":  StatusInProgress,
		"InProgress":   StatusInProgress,
		"DONE":         StatusDone,
		"backlog":      StatusBacklog,
	}
	for input, want := range cases {
		got, ok := ParseStatus(input)
		if !ok || got != want {
			t.Errorf("ParseStatus(%q) = (%q, %v), want (%q, true)", input, got, ok, want)
		}
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Error("ParseStatus(\"bogus\") should fail")
	}
}

func TestAddCommentTrimsOldestBeyondCap(t *testing.T) {
	b := openTestBoard(t)
	task, _ := b.Add("Long running", "", PriorityLow, nil, nil, "alice")

	for i := 0; i < maxCommentsPerTask+10; i++ {
		if _, err := b.AddComment(task.ID, "bob", "note"); err != nil {
			t.Fatalf("AddComment: %v", err)
		}
	}

	got, _ := b.Get(task.ID)
	if len(got.Comments) != maxCommentsPerTask {
		t.Errorf("len(Comments) = %d, want %d", len(got.Comments), maxCommentsPerTask)
	}
}

func TestListFiltersByStatusAndAssignee(t *testing.T) {
	b := openTestBoard(t)
	alice := "alice"
	bob := "bob"
	t1, _ := b.Add("A", "", PriorityLow, &alice, nil, "alice")
	b.Add("B", "", PriorityLow, &bob, nil, "bob")
	b.Move(t1.ID, StatusInProgress)

	status := StatusInProgress
	filtered := b.List(&status, nil)
	if len(filtered) != 1 || filtered[0].ID != t1.ID {
		t.Errorf("List(status=in_progress) returned %d tasks, want 1 matching %s", len(filtered), t1.ID)
	}

	byAssignee := b.List(nil, &alice)
	if len(byAssignee) != 1 || byAssignee[0].ID != t1.ID {
		t.Errorf("List(assignee=alice) returned %d tasks, want 1", len(byAssignee))
	}
}

func TestDeleteReportsWhetherTaskExisted(t *testing.T) {
	b := openTestBoard(t)
	task, _ := b.Add("A", "", PriorityLow, nil, nil, "alice")

	ok, err := b.Delete(task.ID)
	if err != nil || !ok {
		t.Fatalf("Delete existing: ok=%v err=%v", ok, err)
	}
	ok, err = b.Delete(task.ID)
	if err != nil || ok {
		t.Fatalf("Delete missing: ok=%v err=%v", ok, err)
	}
}
