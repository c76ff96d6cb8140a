// Package providers defines the CompletionModel contract and the two
// concrete backends (Anthropic, OpenAI-compatible) that implement it.
package providers

import (
	"context"
	"encoding/json"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ImagePart is a base64-encoded image attached to a user message.
type ImagePart struct {
	MimeType string
	Data     string // base64, no data: URL prefix
}

// Message is one turn of ordered chat history. A tool-result message sets
// ToolCallID; an assistant message that requested tools sets ToolCalls.
type Message struct {
	Role             Role
	Content          string
	ReasoningContent string
	Images           []ImagePart
	ToolCalls        []ToolCall
	ToolCallID       string
}

// ToolCall is a single function invocation requested by the model.
type ToolCall struct {
	ID       string
	CallID   string
	Name     string
	Arguments json.RawMessage
}

// ToolDefinition describes one callable tool's schema to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Usage reports token accounting for one completion call.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	TotalTokens       int
	CachedInputTokens int
}

// PartKind distinguishes the typed parts of a completion response.
type PartKind string

const (
	PartText      PartKind = "text"
	PartToolCall  PartKind = "tool_call"
	PartReasoning PartKind = "reasoning"
)

// Part is one typed chunk of a model's response.
type Part struct {
	Kind      PartKind
	Text      string
	ToolCall  ToolCall
	Reasoning string
}

// ChatRequest is the input to a CompletionModel call.
type ChatRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// ChatResponse is a model's response as a sequence of typed parts plus
// usage accounting.
type ChatResponse struct {
	Parts []Part
	Usage Usage
}

// CompletionModel abstracts one LLM backend's request/response shape
// behind the chat-history/tool-call contract the agent loop drives.
type CompletionModel interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
