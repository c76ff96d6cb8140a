package tools

import (
	"context"
	"fmt"

	"github.com/jaredwolff/patina-go/internal/bus"
)

// MessageTool implements the message built-in: publish to the outbound
// bus using the current default routing context, or an explicit
// channel/chat_id override.
type MessageTool struct {
	b      *bus.Bus
	router *Router
}

func NewMessageTool(b *bus.Bus, router *Router) *MessageTool {
	return &MessageTool{b: b, router: router}
}

func (t *MessageTool) Name() string        { return "message" }
func (t *MessageTool) Description() string { return "Send a message to a channel, defaulting to the current conversation" }
func (t *MessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{"type": "string"},
			"channel": map[string]interface{}{"type": "string"},
			"chat_id": map[string]interface{}{"type": "string"},
		},
		"required": []string{"content"},
	}
}

func (t *MessageTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	content, _ := params["content"].(string)
	if content == "" {
		return "", fmt.Errorf("content is required")
	}

	routing := t.router.Get()
	channel, _ := params["channel"].(string)
	if channel == "" {
		channel = routing.Channel
	}
	chatID, _ := params["chat_id"].(string)
	if chatID == "" {
		chatID = routing.ChatID
	}
	if channel == "" || chatID == "" {
		return "", fmt.Errorf("no routing context available, specify channel and chat_id")
	}

	t.b.PublishOutbound(bus.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
	})
	return "Message sent.", nil
}
