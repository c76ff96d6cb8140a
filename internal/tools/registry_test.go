package tools

import (
	"context"
	"errors"
	"testing"
)

type fakeTool struct {
	name       string
	params     map[string]interface{}
	result     string
	err        error
	lastParams map[string]interface{}
}

func (f *fakeTool) Name() string                      { return f.name }
func (f *fakeTool) Description() string               { return "fake tool for tests" }
func (f *fakeTool) Parameters() map[string]interface{} { return f.params }
func (f *fakeTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	f.lastParams = params
	return f.result, f.err
}

func TestExecuteUnknownToolIsGoError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "does_not_exist", nil)
	var unknown *ErrUnknownTool
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestExecuteValidationFailureIsToolLevelSuccess(t *testing.T) {
	r := NewRegistry()
	tool := &fakeTool{
		name: "write_file",
		params: map[string]interface{}{
			"required": []string{"path"},
			"properties": map[string]interface{}{
				"path": map[string]interface{}{"type": "string"},
			},
		},
	}
	r.Register(tool)

	result, err := r.Execute(context.Background(), "write_file", map[string]interface{}{})
	if err != nil {
		t.Fatalf("validation failure should not be a Go error, got %v", err)
	}
	want := "Error: Invalid parameters for tool 'write_file': path: missing required field"
	if result != want {
		t.Errorf("result = %q, want %q", result, want)
	}
	if !IsErrorResult(result) {
		t.Errorf("IsErrorResult(%q) = false, want true", result)
	}
}

func TestExecuteToolErrorBecomesResultString(t *testing.T) {
	r := NewRegistry()
	tool := &fakeTool{
		name:   "exec",
		params: map[string]interface{}{},
		err:    errors.New("command timed out"),
	}
	r.Register(tool)

	result, err := r.Execute(context.Background(), "exec", map[string]interface{}{})
	if err != nil {
		t.Fatalf("tool errors should not propagate as Go errors, got %v", err)
	}
	want := "Error executing exec: command timed out"
	if result != want {
		t.Errorf("result = %q, want %q", result, want)
	}
	if !IsErrorResult(result) {
		t.Errorf("IsErrorResult(%q) = false, want true", result)
	}
}

func TestExecuteSuccessPassesParamsThrough(t *testing.T) {
	r := NewRegistry()
	tool := &fakeTool{
		name:   "read_file",
		params: map[string]interface{}{},
		result: "file contents",
	}
	r.Register(tool)

	result, err := r.Execute(context.Background(), "read_file", map[string]interface{}{"path": "/tmp/x"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "file contents" {
		t.Errorf("result = %q, want file contents", result)
	}
	if IsErrorResult(result) {
		t.Errorf("IsErrorResult(%q) = true, want false", result)
	}
	if tool.lastParams["path"] != "/tmp/x" {
		t.Errorf("tool did not receive params: %v", tool.lastParams)
	}
}

func TestRegisterReplacesSamePreservingOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "a", params: map[string]interface{}{}})
	r.Register(&fakeTool{name: "b", params: map[string]interface{}{}})
	r.Register(&fakeTool{name: "a", params: map[string]interface{}{}, result: "replaced"})

	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("Names() = %v, want [a b]", names)
	}
	tool, ok := r.Get("a")
	if !ok {
		t.Fatal("Get(a) not found")
	}
	fake := tool.(*fakeTool)
	if fake.result != "replaced" {
		t.Errorf("Register should replace the tool for an existing name")
	}
}

func TestDefinitionsFiltersByNameList(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "message", params: map[string]interface{}{}})
	r.Register(&fakeTool{name: "spawn", params: map[string]interface{}{}})
	r.Register(&fakeTool{name: "read_file", params: map[string]interface{}{}})

	defs := r.Definitions([]string{"read_file"})
	if len(defs) != 1 || defs[0].Name != "read_file" {
		t.Fatalf("Definitions(subset) = %v, want just read_file", defs)
	}

	all := r.Definitions(nil)
	if len(all) != 3 {
		t.Errorf("Definitions(nil) = %d defs, want 3 (all registered)", len(all))
	}
}
