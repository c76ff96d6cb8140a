// Package sessions implements the per-conversation message log:
// a newline-delimited JSON file per session key, rewritten in full on each
// save, with an in-memory cache in front of it.
package sessions

import "time"

// Message is one entry in a session's conversation log.
type Message struct {
	Role             string    `json:"role"` // "user", "assistant", "system"
	Content          string    `json:"content"`
	Timestamp        time.Time `json:"timestamp"`
	ToolsUsed        []string  `json:"tools_used,omitempty"`
	ReasoningContent string    `json:"reasoning_content,omitempty"`
}

// Session is one conversation thread, keyed channel:chat_id.
type Session struct {
	Key              string            `json:"key"`
	Messages         []Message         `json:"-"` // persisted separately, one record per line
	LastConsolidated int               `json:"last_consolidated"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

func newSession(key string) *Session {
	return &Session{Key: key, Metadata: make(map[string]string)}
}
