package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jaredwolff/patina-go/internal/persona"
	"github.com/jaredwolff/patina-go/internal/subagent"
	"github.com/jaredwolff/patina-go/internal/tasks"
)

// TaskTool implements the task built-in: CRUD against the task board,
// plus an auto-executing assign that spawns a persona-skinned subagent.
type TaskTool struct {
	board      *tasks.Board
	personas   *persona.Store
	supervisor *subagent.Supervisor
	router     *Router
}

func NewTaskTool(board *tasks.Board, personas *persona.Store, supervisor *subagent.Supervisor, router *Router) *TaskTool {
	return &TaskTool{board: board, personas: personas, supervisor: supervisor, router: router}
}

func (t *TaskTool) Name() string        { return "task" }
func (t *TaskTool) Description() string { return "Manage the shared task board" }
func (t *TaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action":       map[string]interface{}{"type": "string", "enum": []interface{}{"add", "list", "get", "update", "move", "assign", "comment", "delete"}},
			"task_id":      map[string]interface{}{"type": "string"},
			"title":        map[string]interface{}{"type": "string"},
			"description":  map[string]interface{}{"type": "string"},
			"priority":     map[string]interface{}{"type": "string", "enum": []interface{}{"low", "medium", "high", "urgent"}},
			"status":       map[string]interface{}{"type": "string"},
			"assignee":     map[string]interface{}{"type": "string"},
			"tags":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"auto_execute": map[string]interface{}{"type": "boolean"},
			"author":       map[string]interface{}{"type": "string"},
			"content":      map[string]interface{}{"type": "string"},
		},
		"required": []string{"action"},
	}
}

func (t *TaskTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	action, _ := params["action"].(string)
	switch action {
	case "add":
		return t.add(params)
	case "list":
		return t.list(params)
	case "get":
		return t.get(params)
	case "update":
		return t.update(params)
	case "move":
		return t.move(params)
	case "assign":
		return t.assign(params)
	case "comment":
		return t.comment(params)
	case "delete":
		return t.delete(params)
	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

func stringTags(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (t *TaskTool) add(params map[string]interface{}) (string, error) {
	title, _ := params["title"].(string)
	if title == "" {
		return "", fmt.Errorf("title is required")
	}
	description, _ := params["description"].(string)
	priority := tasks.PriorityMedium
	if p, ok := params["priority"].(string); ok && p != "" {
		priority = tasks.Priority(p)
	}
	var assignee *string
	if a, ok := params["assignee"].(string); ok && a != "" {
		assignee = &a
	}
	tagList := stringTags(params["tags"])

	routing := t.router.Get()
	createdBy := routing.Channel + ":" + routing.ChatID

	task, err := t.board.Add(title, description, priority, assignee, tagList, createdBy)
	if err != nil {
		return "", fmt.Errorf("add task: %w", err)
	}
	return fmt.Sprintf("Created task %s: %s", task.ID, task.Title), nil
}

func (t *TaskTool) list(params map[string]interface{}) (string, error) {
	var statusFilter *tasks.Status
	if s, ok := params["status"].(string); ok && s != "" {
		if parsed, ok := tasks.ParseStatus(s); ok {
			statusFilter = &parsed
		}
	}
	var assigneeFilter *string
	if a, ok := params["assignee"].(string); ok && a != "" {
		assigneeFilter = &a
	}

	list := t.board.List(statusFilter, assigneeFilter)
	out, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tasks: %w", err)
	}
	return string(out), nil
}

func (t *TaskTool) get(params map[string]interface{}) (string, error) {
	id, _ := params["task_id"].(string)
	task, ok := t.board.Get(id)
	if !ok {
		return fmt.Sprintf("No task with id %s", id), nil
	}
	out, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}
	return string(out), nil
}

func (t *TaskTool) update(params map[string]interface{}) (string, error) {
	id, _ := params["task_id"].(string)
	if id == "" {
		return "", fmt.Errorf("task_id is required")
	}
	var title, description *string
	if v, ok := params["title"].(string); ok {
		title = &v
	}
	if v, ok := params["description"].(string); ok {
		description = &v
	}
	var priority *tasks.Priority
	if v, ok := params["priority"].(string); ok && v != "" {
		p := tasks.Priority(v)
		priority = &p
	}
	var tagList []string
	if _, present := params["tags"]; present {
		tagList = stringTags(params["tags"])
	}

	ok, err := t.board.Update(id, title, description, priority, tagList)
	if err != nil {
		return "", fmt.Errorf("update task: %w", err)
	}
	if !ok {
		return fmt.Sprintf("No task with id %s", id), nil
	}
	return fmt.Sprintf("Updated task %s", id), nil
}

func (t *TaskTool) move(params map[string]interface{}) (string, error) {
	id, _ := params["task_id"].(string)
	statusStr, _ := params["status"].(string)
	status, ok := tasks.ParseStatus(statusStr)
	if !ok {
		return "", fmt.Errorf("invalid status %q", statusStr)
	}
	moved, err := t.board.Move(id, status)
	if err != nil {
		return "", fmt.Errorf("move task: %w", err)
	}
	if !moved {
		return fmt.Sprintf("No task with id %s", id), nil
	}
	return fmt.Sprintf("Moved task %s to %s", id, status), nil
}

func (t *TaskTool) assign(params map[string]interface{}) (string, error) {
	id, _ := params["task_id"].(string)
	if id == "" {
		return "", fmt.Errorf("task_id is required")
	}
	var assignee *string
	if a, ok := params["assignee"].(string); ok && a != "" {
		assignee = &a
	}
	autoExecute, _ := params["auto_execute"].(bool)

	ok, err := t.board.Assign(id, assignee)
	if err != nil {
		return "", fmt.Errorf("assign task: %w", err)
	}
	if !ok {
		return fmt.Sprintf("No task with id %s", id), nil
	}
	if !autoExecute || assignee == nil {
		return fmt.Sprintf("Assigned task %s to %s", id, strings.TrimSpace(derefOrEmpty(assignee))), nil
	}

	task, _ := t.board.Get(id)
	var preamble, tier string
	if p, ok := t.personas.Get(*assignee); ok {
		preamble = p.Preamble
		tier = p.ModelTier
	}

	if _, err := t.board.Move(id, tasks.StatusInProgress); err != nil {
		return "", fmt.Errorf("move task to in_progress: %w", err)
	}

	taskID := t.supervisor.Spawn(task.Description, task.Title, "task", id, subagent.RunOptions{
		Preamble:      preamble,
		ModelTier:     tier,
		ExtraMetadata: map[string]string{"task_id": id},
	})
	return fmt.Sprintf("Assigned task %s to %s, auto-executing as subagent %s", id, *assignee, taskID), nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (t *TaskTool) comment(params map[string]interface{}) (string, error) {
	id, _ := params["task_id"].(string)
	content, _ := params["content"].(string)
	if id == "" || content == "" {
		return "", fmt.Errorf("task_id and content are required")
	}
	author, _ := params["author"].(string)
	if author == "" {
		routing := t.router.Get()
		author = routing.Channel + ":" + routing.ChatID
	}
	ok, err := t.board.AddComment(id, author, content)
	if err != nil {
		return "", fmt.Errorf("add comment: %w", err)
	}
	if !ok {
		return fmt.Sprintf("No task with id %s", id), nil
	}
	return fmt.Sprintf("Added comment to task %s", id), nil
}

func (t *TaskTool) delete(params map[string]interface{}) (string, error) {
	id, _ := params["task_id"].(string)
	ok, err := t.board.Delete(id)
	if err != nil {
		return "", fmt.Errorf("delete task: %w", err)
	}
	if !ok {
		return fmt.Sprintf("No task with id %s", id), nil
	}
	return fmt.Sprintf("Deleted task %s", id), nil
}
