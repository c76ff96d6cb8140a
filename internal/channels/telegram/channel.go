// Package telegram connects the message bus to the Telegram Bot API via
// long polling: a DM-only, no-pairing text relay.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/jaredwolff/patina-go/internal/access"
	"github.com/jaredwolff/patina-go/internal/bus"
)

// Channel relays InboundMessage/OutboundMessage between the bus and a
// Telegram bot reached by long polling.
type Channel struct {
	bot     *telego.Bot
	b       *bus.Bus
	cancel  context.CancelFunc
	allowed []string
}

// New creates a Telegram channel from a bot token. The bus is not touched
// until Start is called. allowedUsers matches against "id|name" the same
// way as every other channel's allowlist (see internal/access); an empty
// list allows every sender.
func New(token string, b *bus.Bus, allowedUsers []string) (*Channel, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{bot: bot, b: b, allowed: allowedUsers}, nil
}

// Name identifies this channel on the bus.
func (c *Channel) Name() string { return "telegram" }

// Stop terminates the polling loop started by Start.
func (c *Channel) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Send delivers one outbound message directly, ignoring messages
// addressed to other channels.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) {
	c.deliver(ctx, msg)
}

// PromptRules returns the Telegram-specific system-prompt addendum.
func (c *Channel) PromptRules() string { return "" }

// IsAllowed reports whether senderID (and optionally its display name,
// joined as "id|name") may use this channel.
func (c *Channel) IsAllowed(senderID string) bool {
	return access.IsSenderAllowed(senderID, c.allowed)
}

// Start begins long polling and forwards outbound messages addressed to
// this channel back to their chat. It returns once ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("start telegram long polling: %w", err)
	}

	out := c.b.Subscribe("telegram")
	defer c.b.Unsubscribe("telegram")

	slog.Info("telegram channel started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			c.handleUpdate(ctx, update)
		case msg, ok := <-out:
			if !ok {
				return nil
			}
			c.deliver(ctx, msg)
		}
	}
}

func (c *Channel) handleUpdate(ctx context.Context, update telego.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)
	sender := senderID + "|" + msg.From.Username
	if !c.IsAllowed(sender) {
		slog.Warn("telegram: rejecting message from disallowed sender", "sender_id", senderID, "username", msg.From.Username)
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	c.b.PublishInbound(ctx, bus.InboundMessage{
		Channel:  "telegram",
		SenderID: senderID,
		ChatID:   chatID,
		Content:  msg.Text,
		Metadata: map[string]string{bus.MetaMessageID: strconv.Itoa(msg.MessageID)},
	})
}

func (c *Channel) deliver(ctx context.Context, msg bus.OutboundMessage) {
	if msg.Channel != "telegram" {
		return
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		slog.Warn("telegram: invalid chat id", "chat_id", msg.ChatID, "error", err)
		return
	}
	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Content)); err != nil {
		slog.Warn("telegram: failed to send message", "chat_id", msg.ChatID, "error", err)
	}
}
