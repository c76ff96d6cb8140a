package tools

import (
	"context"
	"fmt"

	"github.com/jaredwolff/patina-go/internal/subagent"
)

// SpawnTool implements the spawn built-in: ask the subagent supervisor
// to run a background turn, returning its task id immediately.
type SpawnTool struct {
	supervisor *subagent.Supervisor
	router     *Router
}

func NewSpawnTool(supervisor *subagent.Supervisor, router *Router) *SpawnTool {
	return &SpawnTool{supervisor: supervisor, router: router}
}

func (t *SpawnTool) Name() string        { return "spawn" }
func (t *SpawnTool) Description() string { return "Spawn a background subagent to work on a task" }
func (t *SpawnTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task":  map[string]interface{}{"type": "string"},
			"label": map[string]interface{}{"type": "string"},
		},
		"required": []string{"task"},
	}
}

func (t *SpawnTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	task, _ := params["task"].(string)
	if task == "" {
		return "", fmt.Errorf("task is required")
	}
	label, _ := params["label"].(string)

	routing := t.router.Get()
	taskID := t.supervisor.Spawn(task, label, routing.Channel, routing.ChatID, subagent.RunOptions{})
	return fmt.Sprintf("Spawned subagent %s", taskID), nil
}
