package tools

import (
	"context"
	"fmt"
	"strings"
)

// ErrUnknownTool is returned by Execute when name is not registered.
type ErrUnknownTool struct{ Name string }

func (e *ErrUnknownTool) Error() string { return fmt.Sprintf("unknown tool %q", e.Name) }

// Registry holds the named tools available to the agent loop.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Definitions returns the wire-format tool definitions for every tool in
// names (or every registered tool if names is nil).
func (r *Registry) Definitions(names []string) []Definition {
	if names == nil {
		names = r.order
	}
	defs := make([]Definition, 0, len(names))
	for _, n := range names {
		t, ok := r.tools[n]
		if !ok {
			continue
		}
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Execute dispatches a single tool call:
//  1. unknown tool → Go error (ErrUnknownTool), the only case that is not
//     folded into the result string.
//  2. schema validation failure → a tool-level *success* string.
//  3. tool error → "Error executing <name>: <msg>" string.
//  4. otherwise, the tool's own result string.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", &ErrUnknownTool{Name: name}
	}

	if errs := ValidateParams(t.Parameters(), params); len(errs) > 0 {
		return fmt.Sprintf("Error: Invalid parameters for tool '%s': %s", name, strings.Join(errs, "; ")), nil
	}

	result, err := t.Execute(ctx, params)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %s", name, err.Error()), nil
	}
	return result, nil
}

// IsErrorResult reports whether a tool result string represents a failure,
// used by the agent loop's circuit breaker.
func IsErrorResult(s string) bool {
	return strings.HasPrefix(s, "Error executing ") || strings.HasPrefix(s, "Error: Invalid parameters for tool")
}
