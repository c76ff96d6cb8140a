// Package bus implements the process-wide message mailbox: a bounded
// inbound queue fed by transports and background services, and a
// broadcast outbound channel fanned out to every connected transport.
package bus

import "time"

// InboundMessage is a transport → core envelope.
type InboundMessage struct {
	Channel   string            `json:"channel"` // "telegram", "slack", "web", "cli", "system", "task"
	SenderID  string            `json:"sender_id"`
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	Media     []string          `json:"media,omitempty"` // ordered local file paths
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"` // persona, task_id, message_id, message_thread_id, reply_to
}

// Well-known InboundMessage.Metadata keys.
const (
	MetaPersona            = "persona"
	MetaTaskID             = "task_id"
	MetaMessageID          = "message_id"
	MetaMessageThreadID    = "message_thread_id"
	MetaReplyTo            = "reply_to"
	MetaSubagentID         = "subagent_id"
	MetaStatus             = "status"
	MetaCronJobID          = "cron_job_id"
	MetaCronJobName        = "cron_job_name"
	StatusCompleted        = "completed"
	StatusError            = "error"
)

// OutboundMessage is a core → transport envelope.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	ReplyTo  string            `json:"reply_to,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SessionKey derives the canonical session key for an inbound message.
// System messages carry chat_id = "origin_channel:origin_chat_id" already,
// so the derivation is the same for every channel.
func SessionKey(channel, chatID string) string {
	return channel + ":" + chatID
}
