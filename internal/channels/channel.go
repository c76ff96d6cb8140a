// Package channels defines the transport contract the core consumes.
// Concrete transports (telegram, slack, webconsole) live in subpackages
// and publish/consume bus messages; the core never depends on any of
// them directly.
package channels

import (
	"context"

	"github.com/jaredwolff/patina-go/internal/bus"
)

// Channel is a chat transport. Implementations relay inbound messages
// onto the bus from Start until their context is cancelled or Stop is
// called, and deliver outbound messages addressed to their Name.
type Channel interface {
	// Name identifies the transport on the bus ("telegram", "slack", "web").
	Name() string

	// Start runs the transport's receive and deliver loops until ctx is
	// cancelled. It blocks.
	Start(ctx context.Context) error

	// Stop terminates the loops started by Start.
	Stop()

	// Send delivers one outbound message directly, bypassing the bus
	// subscription. Messages addressed to a different channel are ignored.
	Send(ctx context.Context, msg bus.OutboundMessage)

	// IsAllowed reports whether senderID (optionally "id|name") may use
	// this transport.
	IsAllowed(senderID string) bool

	// PromptRules returns a transport-specific system-prompt addendum, or
	// "" when the transport has no formatting constraints worth stating.
	PromptRules() string
}

// Transcriber converts an audio file to text. Voice-capable transports
// hand audio media to the gateway, which transcribes it before building
// the turn. Implementations (local ONNX model, cloud ASR) are external
// to the core.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}
