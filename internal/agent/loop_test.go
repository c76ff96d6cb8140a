package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jaredwolff/patina-go/internal/contextbuilder"
	"github.com/jaredwolff/patina-go/internal/memory"
	"github.com/jaredwolff/patina-go/internal/providers"
	"github.com/jaredwolff/patina-go/internal/sessions"
	"github.com/jaredwolff/patina-go/internal/skills"
	"github.com/jaredwolff/patina-go/internal/tools"
)

// orderingTool records its own name into a shared, mutex-guarded log each
// time it runs, so tests can assert on execution order.
type orderingTool struct {
	name string
	mu   *sync.Mutex
	log  *[]string
	// onExecute, if set, runs before the tool appends itself to the log.
	onExecute func()
}

func (t *orderingTool) Name() string                       { return t.name }
func (t *orderingTool) Description() string                { return "records call order" }
func (t *orderingTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (t *orderingTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	if t.onExecute != nil {
		t.onExecute()
	}
	t.mu.Lock()
	*t.log = append(*t.log, t.name)
	t.mu.Unlock()
	return "ok: " + t.name, nil
}

// scriptedModel returns one canned ChatResponse per call, in order.
type scriptedModel struct {
	responses []*providers.ChatResponse
	calls     int
}

func (m *scriptedModel) Complete(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func toolCallPart(id, name string) providers.Part {
	return providers.Part{
		Kind:     providers.PartToolCall,
		ToolCall: providers.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(`{}`)},
	}
}

func textPart(s string) providers.Part {
	return providers.Part{Kind: providers.PartText, Text: s}
}

func newTestLoop(t *testing.T, model providers.CompletionModel, registry *tools.Registry) *Loop {
	t.Helper()
	workspace := t.TempDir()
	home := t.TempDir()
	t.Setenv("HOME", home)

	mem := memory.NewStore(workspace)
	sk := skills.NewLoader(workspace, "")
	builder := contextbuilder.New(workspace, mem, sk)
	sessMgr := sessions.NewManager(filepath.Join(workspace, "sessions"))

	pool, err := providers.NewPool(map[string]providers.TierEntry{
		"default": {Model: model, ModelName: "test-model", ProviderName: "test"},
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	return New(Config{
		Models:   pool,
		Sessions: sessMgr,
		Context:  builder,
		Tools:    registry,
	})
}

// Tool calls within one iteration execute sequentially, in the
// model's requested order, not concurrently.
func TestRunLoopExecutesToolCallsSequentiallyInOrder(t *testing.T) {
	var mu sync.Mutex
	var log []string

	registry := tools.NewRegistry()
	registry.Register(&orderingTool{name: "first", mu: &mu, log: &log})
	registry.Register(&orderingTool{name: "second", mu: &mu, log: &log})
	registry.Register(&orderingTool{name: "third", mu: &mu, log: &log})

	model := &scriptedModel{responses: []*providers.ChatResponse{
		{Parts: []providers.Part{
			toolCallPart("1", "third"),
			toolCallPart("2", "first"),
			toolCallPart("3", "second"),
		}},
		{Parts: []providers.Part{textPart("done")}},
	}}

	l := newTestLoop(t, model, registry)
	resp, _, err := l.ProcessMessage(context.Background(), "cli:test", "go", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if resp != "done" {
		t.Errorf("response = %q, want done", resp)
	}

	want := []string{"third", "first", "second"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q (tool calls must run in the model's requested order)", i, log[i], want[i])
		}
	}
}

// The interrupt flag is checked and consumed before each tool
// call, not once per iteration — a flag raised by an earlier tool call in
// the same batch must stop the remaining calls in that batch from running.
func TestRunLoopChecksInterruptBeforeEachToolCall(t *testing.T) {
	var mu sync.Mutex
	var log []string
	sessionKey := "cli:interrupt-test"

	raiseFlag := func() {
		path := interruptFlagPath(sessionKey)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir interrupt dir: %v", err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("write interrupt flag: %v", err)
		}
	}

	registry := tools.NewRegistry()
	registry.Register(&orderingTool{name: "first", mu: &mu, log: &log, onExecute: raiseFlag})
	registry.Register(&orderingTool{name: "second", mu: &mu, log: &log})

	model := &scriptedModel{responses: []*providers.ChatResponse{
		{Parts: []providers.Part{
			toolCallPart("1", "first"),
			toolCallPart("2", "second"),
		}},
	}}

	l := newTestLoop(t, model, registry)
	resp, _, err := l.ProcessMessage(context.Background(), sessionKey, "go", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if resp != "Interrupted." {
		t.Errorf("response = %q, want Interrupted.", resp)
	}
	if len(log) != 1 || log[0] != "first" {
		t.Errorf("log = %v, want [first] (interrupt raised during 'first' must prevent 'second' from running)", log)
	}
}
