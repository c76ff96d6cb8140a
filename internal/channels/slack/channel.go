// Package slack connects the message bus to Slack over Socket Mode,
// grounded in the slack-go/slack socketmode client idiom used for
// app-token-based event delivery (no public HTTP endpoint required).
package slack

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/jaredwolff/patina-go/internal/access"
	"github.com/jaredwolff/patina-go/internal/bus"
)

// Channel relays InboundMessage/OutboundMessage between the bus and a
// Slack workspace reached via Socket Mode.
type Channel struct {
	api     *slack.Client
	client  *socketmode.Client
	b       *bus.Bus
	cancel  context.CancelFunc
	allowed []string
}

// New creates a Slack channel from a bot token and an app-level token.
// allowedUsers is checked against each inbound sender the same way as
// every other channel (see internal/access); an empty list allows
// everyone.
func New(botToken, appToken string, b *bus.Bus, allowedUsers []string) *Channel {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	client := socketmode.New(api)
	return &Channel{api: api, client: client, b: b, allowed: allowedUsers}
}

// Name identifies this channel on the bus.
func (c *Channel) Name() string { return "slack" }

// Stop terminates the Socket Mode loop started by Start.
func (c *Channel) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Send delivers one outbound message directly, ignoring messages
// addressed to other channels.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) {
	c.deliver(msg)
}

// PromptRules tells the model about Slack's formatting limits.
func (c *Channel) PromptRules() string {
	return "No markdown tables. Never use markdown table syntax — Slack does not support table formatting. Use plain text lists instead."
}

// IsAllowed reports whether senderID may use this channel.
func (c *Channel) IsAllowed(senderID string) bool {
	return access.IsSenderAllowed(senderID, c.allowed)
}

// Start runs the Socket Mode event loop and the outbound-delivery loop
// until ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	out := c.b.Subscribe("slack")
	defer c.b.Unsubscribe("slack")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-out:
				if !ok {
					return
				}
				c.deliver(msg)
			}
		}
	}()

	go func() {
		for evt := range c.client.Events {
			c.handleEvent(ctx, evt)
		}
	}()

	slog.Info("slack channel started")
	return c.client.RunContext(ctx)
}

func (c *Channel) handleEvent(ctx context.Context, evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		c.client.Ack(*evt.Request)
	}

	inner, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || inner.BotID != "" || inner.Text == "" {
		return
	}
	if !c.IsAllowed(inner.User) {
		slog.Warn("slack: rejecting message from disallowed sender", "sender_id", inner.User)
		return
	}
	c.b.PublishInbound(ctx, bus.InboundMessage{
		Channel:  "slack",
		SenderID: inner.User,
		ChatID:   inner.Channel,
		Content:  inner.Text,
		Metadata: map[string]string{bus.MetaMessageID: inner.TimeStamp},
	})
}

func (c *Channel) deliver(msg bus.OutboundMessage) {
	if msg.Channel != "slack" {
		return
	}
	if _, _, err := c.api.PostMessage(msg.ChatID, slack.MsgOptionText(msg.Content, false)); err != nil {
		slog.Warn("slack: failed to send message", "chat_id", msg.ChatID, "error", err)
	}
}
