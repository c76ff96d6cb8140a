package bus

import (
	"context"
	"log/slog"
	"sync"
)

// inboundCapacity is the bounded FIFO size for the inbound mailbox.
const inboundCapacity = 128

// outboundSubscriberCapacity bounds each outbound subscriber's buffer. A slow
// or disconnected subscriber drops messages rather than blocking publishers
// broadcast outbound has no natural back-pressure, so a slow subscriber
// only drops its own messages.
const outboundSubscriberCapacity = 64

// Bus is the process-wide mailbox. One Bus per process; every transport and
// background service (C11 cron, C12 heartbeat, C10 subagents) publishes to
// it, and the Gateway Dispatcher (C13) is its sole inbound consumer.
type Bus struct {
	inbound chan InboundMessage

	mu          sync.Mutex
	subscribers map[string]chan OutboundMessage
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		inbound:     make(chan InboundMessage, inboundCapacity),
		subscribers: make(map[string]chan OutboundMessage),
	}
}

// PublishInbound enqueues an inbound message. It blocks briefly under
// backpressure but never drops — ordering within one producer is FIFO.
func (b *Bus) PublishInbound(ctx context.Context, msg InboundMessage) {
	select {
	case b.inbound <- msg:
	case <-ctx.Done():
	}
}

// ConsumeInbound is the Gateway Dispatcher's sole read side. It returns
// (msg, true) on success or (zero, false) if ctx is cancelled.
func (b *Bus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// TryConsumeInbound performs a non-blocking read, used by the gateway's
// pre-turn coalescing drain.
func (b *Bus) TryConsumeInbound() (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	default:
		return InboundMessage{}, false
	}
}

// Subscribe registers a new outbound receiver (a transport). The returned
// channel is closed by Unsubscribe.
func (b *Bus) Subscribe(id string) <-chan OutboundMessage {
	ch := make(chan OutboundMessage, outboundSubscriberCapacity)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a transport's outbound receiver.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// PublishOutbound fans an outbound message out to every subscriber. A
// subscriber with a full buffer has the message dropped for it and a
// warning logged — never fatal, never blocking.
func (b *Bus) PublishOutbound(msg OutboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subscribers) == 0 {
		slog.Debug("bus: outbound has no subscribers", "channel", msg.Channel, "chat_id", msg.ChatID)
		return
	}
	for id, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			slog.Warn("bus: dropping outbound message for slow subscriber", "subscriber", id, "channel", msg.Channel)
		}
	}
}
