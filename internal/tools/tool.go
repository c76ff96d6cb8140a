// Package tools implements the tool registry: named tools with
// JSON-schema parameters, validation, dispatch, and a uniform error
// envelope so that tool failures never propagate as Go errors to the
// agent loop — every failure becomes a result string the model can see.
package tools

import "context"

// Tool is the contract every built-in or dynamic tool implements.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a JSON-schema object (subset: type, properties,
	// required, enum, minimum/maximum, minLength/maxLength, nested object
	// properties, array items).
	Parameters() map[string]interface{}
	// Execute runs the tool. A returned error becomes the registry's
	// "Error executing <name>: <err>" envelope; it is never propagated
	// to the caller as a Go error.
	Execute(ctx context.Context, params map[string]interface{}) (string, error)
}

// Definition is the wire shape handed to a CompletionModel.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}
