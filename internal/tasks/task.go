// Package tasks implements the Kanban-style task board: a JSON file of
// tasks CRUD'd with a refresh-from-disk-before-mutate discipline so a
// cooperating external editor's changes are never clobbered.
package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a Kanban column.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// ParseStatus normalizes hyphens/case, matching the original's acceptance
// of "in-progress"/"InProgress"/"in_progress" as equivalent.
func ParseStatus(s string) (Status, bool) {
	switch normalizeStatus(s) {
	case "backlog":
		return StatusBacklog, true
	case "todo":
		return StatusTodo, true
	case "in_progress", "inprogress":
		return StatusInProgress, true
	case "done":
		return StatusDone, true
	default:
		return "", false
	}
}

func normalizeStatus(s string) string {
	out := make([]byte, 0, len(s))
	for _, c := range []byte(s) {
		if c == '-' {
			c = '_'
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// Priority is a task priority level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// maxCommentsPerTask bounds tasks.json growth; the board trims the oldest
// comments once a task crosses this count.
const maxCommentsPerTask = 200

// Comment is an append-only note on a task.
type Comment struct {
	Author      string `json:"author"`
	Content     string `json:"content"`
	TimestampMs int64  `json:"timestampMs"`
}

// Task is a single card on the board.
type Task struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Status        Status    `json:"status"`
	Priority      Priority  `json:"priority"`
	Assignee      *string   `json:"assignee,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAtMs   int64     `json:"createdAtMs"`
	UpdatedAtMs   int64     `json:"updatedAtMs"`
	CompletedAtMs *int64    `json:"completedAtMs,omitempty"`
	Comments      []Comment `json:"comments,omitempty"`
}

type boardFile struct {
	Version uint32 `json:"version"`
	Tasks   []Task `json:"tasks"`
}

// Board manages task persistence and CRUD, refreshing from disk before
// every mutating operation.
type Board struct {
	mu   sync.Mutex
	path string
	file boardFile
	now  func() time.Time
}

// Load reads path, treating a missing or malformed file as an empty board.
func Load(path string) *Board {
	b := &Board{path: path, file: boardFile{Version: 1}, now: time.Now}
	b.refreshLocked()
	return b
}

func (b *Board) refreshLocked() {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return
	}
	var f boardFile
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}
	b.file = f
}

func (b *Board) save() error {
	if dir := filepath.Dir(b.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create tasks dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(b.file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tasks tmp: %w", err)
	}
	return os.Rename(tmp, b.path)
}

func (b *Board) nowMs() int64 { return b.now().UnixMilli() }

// Add creates a new task in the todo column and persists immediately.
func (b *Board) Add(title, description string, priority Priority, assignee *string, tags []string, createdBy string) (Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	now := b.nowMs()
	t := Task{
		ID:          uuid.NewString()[:8],
		Title:       title,
		Description: description,
		Status:      StatusTodo,
		Priority:    priority,
		Assignee:    assignee,
		Tags:        tags,
		CreatedBy:   createdBy,
		CreatedAtMs: now,
		UpdatedAtMs: now,
	}
	b.file.Tasks = append(b.file.Tasks, t)
	if err := b.save(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Get returns the task with id, if any. Does not refresh from disk.
func (b *Board) Get(id string) (Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.file.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// List returns tasks matching the optional status/assignee filters after
// refreshing from disk.
func (b *Board) List(status *Status, assignee *string) []Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	out := make([]Task, 0, len(b.file.Tasks))
	for _, t := range b.file.Tasks {
		if status != nil && t.Status != *status {
			continue
		}
		if assignee != nil && (t.Assignee == nil || *t.Assignee != *assignee) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (b *Board) findLocked(id string) *Task {
	for i := range b.file.Tasks {
		if b.file.Tasks[i].ID == id {
			return &b.file.Tasks[i]
		}
	}
	return nil
}

// Update changes title/description/priority/tags when non-nil, leaving
// other fields untouched.
func (b *Board) Update(id string, title, description *string, priority *Priority, tags []string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	t := b.findLocked(id)
	if t == nil {
		return false, nil
	}
	if title != nil {
		t.Title = *title
	}
	if description != nil {
		t.Description = *description
	}
	if priority != nil {
		t.Priority = *priority
	}
	if tags != nil {
		t.Tags = tags
	}
	t.UpdatedAtMs = b.nowMs()
	return true, b.save()
}

// Move transitions a task to status, stamping completedAtMs when moved to
// done.
func (b *Board) Move(id string, status Status) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	t := b.findLocked(id)
	if t == nil {
		return false, nil
	}
	now := b.nowMs()
	t.Status = status
	t.UpdatedAtMs = now
	if status == StatusDone {
		t.CompletedAtMs = &now
	}
	return true, b.save()
}

// Assign sets or clears the assignee.
func (b *Board) Assign(id string, assignee *string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	t := b.findLocked(id)
	if t == nil {
		return false, nil
	}
	t.Assignee = assignee
	t.UpdatedAtMs = b.nowMs()
	return true, b.save()
}

// AddComment appends a comment, trimming the oldest entries once the task
// crosses maxCommentsPerTask.
func (b *Board) AddComment(id, author, content string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	t := b.findLocked(id)
	if t == nil {
		return false, nil
	}
	t.Comments = append(t.Comments, Comment{Author: author, Content: content, TimestampMs: b.nowMs()})
	if len(t.Comments) > maxCommentsPerTask {
		t.Comments = t.Comments[len(t.Comments)-maxCommentsPerTask:]
	}
	t.UpdatedAtMs = b.nowMs()
	return true, b.save()
}

// Delete removes a task, reporting whether it existed.
func (b *Board) Delete(id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	before := len(b.file.Tasks)
	filtered := make([]Task, 0, before)
	for _, t := range b.file.Tasks {
		if t.ID != id {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == before {
		return false, nil
	}
	b.file.Tasks = filtered
	return true, b.save()
}
