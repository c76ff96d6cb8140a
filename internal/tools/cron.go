package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jaredwolff/patina-go/internal/cron"
)

// CronTool implements the cron built-in: add/list/remove jobs against
// the cron store, re-arming the scheduler after any mutation.
type CronTool struct {
	store     *cron.Store
	scheduler *cron.Scheduler
	router    *Router
}

func NewCronTool(store *cron.Store, scheduler *cron.Scheduler, router *Router) *CronTool {
	return &CronTool{store: store, scheduler: scheduler, router: router}
}

func (t *CronTool) Name() string        { return "cron" }
func (t *CronTool) Description() string { return "Add, list, or remove scheduled jobs" }
func (t *CronTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action":   map[string]interface{}{"type": "string", "enum": []interface{}{"add", "list", "remove"}},
			"name":     map[string]interface{}{"type": "string"},
			"kind":     map[string]interface{}{"type": "string", "enum": []interface{}{"at", "every", "cron"}},
			"at_ms":    map[string]interface{}{"type": "integer"},
			"every_ms": map[string]interface{}{"type": "integer"},
			"expr":     map[string]interface{}{"type": "string"},
			"tz":       map[string]interface{}{"type": "string"},
			"message":  map[string]interface{}{"type": "string"},
			"job_id":   map[string]interface{}{"type": "string"},
		},
		"required": []string{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	action, _ := params["action"].(string)
	switch action {
	case "add":
		return t.add(ctx, params)
	case "list":
		return t.list()
	case "remove":
		return t.remove(ctx, params)
	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

func (t *CronTool) add(ctx context.Context, params map[string]interface{}) (string, error) {
	name, _ := params["name"].(string)
	kindStr, _ := params["kind"].(string)
	message, _ := params["message"].(string)
	if name == "" || kindStr == "" || message == "" {
		return "", fmt.Errorf("name, kind and message are required")
	}

	sched := cron.Schedule{Kind: cron.ScheduleKind(kindStr)}
	if v, ok := numVal(params["at_ms"]); ok {
		iv := int64(v)
		sched.AtMs = &iv
	}
	if v, ok := numVal(params["every_ms"]); ok {
		iv := int64(v)
		sched.EveryMs = &iv
	}
	sched.Expr, _ = params["expr"].(string)
	sched.TZ, _ = params["tz"].(string)

	routing := t.router.Get()
	payload := cron.Payload{
		Kind:    "agent_turn",
		Message: message,
		Deliver: true,
		Channel: routing.Channel,
		To:      routing.ChatID,
	}

	job, err := t.store.Add(name, sched, payload, false)
	if err != nil {
		return "", fmt.Errorf("add job: %w", err)
	}
	t.scheduler.Rearm(ctx)
	return fmt.Sprintf("Created cron job %s (%s)", job.ID, job.Name), nil
}

func (t *CronTool) list() (string, error) {
	jobs := t.store.List()
	if len(jobs) == 0 {
		return "No cron jobs.", nil
	}
	out, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal jobs: %w", err)
	}
	return string(out), nil
}

func (t *CronTool) remove(ctx context.Context, params map[string]interface{}) (string, error) {
	jobID, _ := params["job_id"].(string)
	if strings.TrimSpace(jobID) == "" {
		return "", fmt.Errorf("job_id is required")
	}
	removed, err := t.store.Remove(jobID)
	if err != nil {
		return "", fmt.Errorf("remove job: %w", err)
	}
	if !removed {
		return fmt.Sprintf("No job with id %s", jobID), nil
	}
	t.scheduler.Rearm(ctx)
	return fmt.Sprintf("Removed cron job %s", jobID), nil
}
