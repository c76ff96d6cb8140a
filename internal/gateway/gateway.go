// Package gateway implements the dispatcher that is the sole consumer of
// the inbound bus. It owns slash commands, same-session coalescing,
// persona resolution, and active-cancellation of in-flight turns when a
// new message for the same session arrives.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jaredwolff/patina-go/internal/agent"
	"github.com/jaredwolff/patina-go/internal/bus"
	"github.com/jaredwolff/patina-go/internal/channels"
	"github.com/jaredwolff/patina-go/internal/consolidate"
	"github.com/jaredwolff/patina-go/internal/memory"
	"github.com/jaredwolff/patina-go/internal/persona"
	"github.com/jaredwolff/patina-go/internal/sessions"
	"github.com/jaredwolff/patina-go/internal/tools"
	"github.com/jaredwolff/patina-go/internal/usage"
)

const helpText = `Patina is an AI assistant with access to your workspace.

Commands:
/new - start a fresh session (archives the current one to memory)
/help - show this message

Just send a message to chat.`

// Dispatcher is the Gateway Dispatcher (C13).
type Dispatcher struct {
	Bus          *bus.Bus
	Loop         *agent.Loop
	Sessions     *sessions.Manager
	Personas     *persona.Store
	Router       *tools.Router
	Memory       *memory.Store
	MemoryIndex  *memory.Index
	MemoryWindow int
	Usage        *usage.Tracker // nil disables consolidation usage recording
	// Transcriber, when non-nil, converts audio media to text before the
	// turn is built. Audio files that fail to transcribe stay in the
	// media list untouched.
	Transcriber channels.Transcriber

	pending              []bus.InboundMessage
	consolidationResults chan *consolidate.Result
}

// New constructs a Dispatcher. MemoryWindow<=0 uses the Loop's own window.
func New(b *bus.Bus, loop *agent.Loop, sess *sessions.Manager, personas *persona.Store, router *tools.Router, mem *memory.Store, idx *memory.Index, memoryWindow int, tracker *usage.Tracker) *Dispatcher {
	if memoryWindow <= 0 {
		memoryWindow = loop.MemoryWindow
	}
	return &Dispatcher{
		Bus: b, Loop: loop, Sessions: sess, Personas: personas, Router: router,
		Memory: mem, MemoryIndex: idx, MemoryWindow: memoryWindow, Usage: tracker,
		consolidationResults: make(chan *consolidate.Result, 16),
	}
}

// Run drives the dispatcher's main loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	applyCtx, cancelApply := context.WithCancel(ctx)
	defer cancelApply()
	go func() {
		for {
			select {
			case r := <-d.consolidationResults:
				consolidate.Apply(d.Sessions, d.MemoryIndex, r)
			case <-applyCtx.Done():
				return
			}
		}
	}()

	for {
		msg, ok := d.nextMessage(ctx)
		if !ok {
			slog.Info("gateway: shutting down")
			return
		}
		d.handleMessage(ctx, msg)
	}
}

func (d *Dispatcher) nextMessage(ctx context.Context) (bus.InboundMessage, bool) {
	if len(d.pending) > 0 {
		msg := d.pending[0]
		d.pending = d.pending[1:]
		return msg, true
	}
	return d.Bus.ConsumeInbound(ctx)
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg bus.InboundMessage) {
	if msg.Channel == "system" {
		originChannel, originChatID := splitSystemChatID(msg.ChatID)
		d.Router.Set(tools.RoutingContext{Channel: originChannel, ChatID: originChatID})
		sessionKey := bus.SessionKey(originChannel, originChatID)
		content := fmt.Sprintf("[System: %s] %s", msg.SenderID, msg.Content)
		d.runTurn(ctx, sessionKey, content, msg.Media, originChannel, originChatID, msg.Metadata)
		return
	}

	d.Router.Set(tools.RoutingContext{Channel: msg.Channel, ChatID: msg.ChatID})

	if cmd, ok := slashCommand(msg.Content); ok {
		d.handleSlashCommand(ctx, cmd, msg)
		return
	}

	sessionKey := bus.SessionKey(msg.Channel, msg.ChatID)
	parts := []string{msg.Content}
	media := append([]string(nil), msg.Media...)
	metadata := msg.Metadata
	d.coalesce(sessionKey, &parts, &media, &metadata)

	content, media := d.transcribeAudio(ctx, strings.Join(parts, "\n\n"), media)
	d.runTurn(ctx, sessionKey, content, media, msg.Channel, msg.ChatID, metadata)
}

// coalesce drains any queued or immediately-available messages for the
// same session into parts/media/metadata, leaving non-matching messages
// in d.pending.
func (d *Dispatcher) coalesce(sessionKey string, parts *[]string, media *[]string, metadata *map[string]string) {
	var keep []bus.InboundMessage
	for _, m := range d.pending {
		if matchesSession(m, sessionKey) {
			absorb(m, parts, media, metadata)
		} else {
			keep = append(keep, m)
		}
	}
	d.pending = keep

	for {
		m, ok := d.Bus.TryConsumeInbound()
		if !ok {
			break
		}
		if matchesSession(m, sessionKey) {
			absorb(m, parts, media, metadata)
		} else {
			d.pending = append(d.pending, m)
		}
	}
}

func matchesSession(m bus.InboundMessage, sessionKey string) bool {
	if m.Channel == "system" {
		return false
	}
	if _, ok := slashCommand(m.Content); ok {
		return false
	}
	return bus.SessionKey(m.Channel, m.ChatID) == sessionKey
}

func absorb(m bus.InboundMessage, parts *[]string, media *[]string, metadata *map[string]string) {
	*parts = append(*parts, m.Content)
	*media = append(*media, m.Media...)
	if m.Metadata != nil {
		*metadata = m.Metadata
	}
}

// audioExts are the voice-note formats transports hand us. Go's builtin
// MIME table carries no audio types, so matching is by extension.
var audioExts = map[string]bool{
	".mp3": true, ".m4a": true, ".ogg": true, ".oga": true,
	".opus": true, ".wav": true, ".flac": true,
}

// transcribeAudio replaces audio media with their transcripts, appended
// to content after the typed text. Non-audio media and files the
// transcriber rejects pass through unchanged.
func (d *Dispatcher) transcribeAudio(ctx context.Context, content string, media []string) (string, []string) {
	if d.Transcriber == nil || len(media) == 0 {
		return content, media
	}
	var rest []string
	for _, path := range media {
		if !audioExts[strings.ToLower(filepath.Ext(path))] {
			rest = append(rest, path)
			continue
		}
		text, err := d.Transcriber.TranscribeFile(ctx, path)
		if err != nil {
			slog.Warn("transcription failed", "path", path, "error", err)
			rest = append(rest, path)
			continue
		}
		if content != "" {
			content += "\n\n"
		}
		content += text
	}
	return content, rest
}

type turnResult struct {
	response           string
	needsConsolidation bool
	err                error
}

// runTurn resolves persona overrides and runs the turn with active
// cancellation: a new same-session message cancels the in-flight call and
// restarts it with the enlarged input; a different-session message queues.
func (d *Dispatcher) runTurn(ctx context.Context, sessionKey, content string, media []string, channel, chatID string, metadata map[string]string) {
	preamble, tier := d.resolvePersona(sessionKey, metadata)

	runCtx, cancel := context.WithCancel(ctx)
	resultCh := make(chan turnResult, 1)
	start := func(rc context.Context, text string, med []string) {
		go func() {
			resp, needs, err := d.Loop.ProcessMessageForPersona(rc, sessionKey, text, med, preamble, tier)
			resultCh <- turnResult{resp, needs, err}
		}()
	}
	start(runCtx, content, media)

	incoming := make(chan bus.InboundMessage)
	forwardCtx, stopForward := context.WithCancel(ctx)
	go func() {
		for {
			msg, ok := d.Bus.ConsumeInbound(forwardCtx)
			if !ok {
				return
			}
			select {
			case incoming <- msg:
			case <-forwardCtx.Done():
				return
			}
		}
	}()
	defer stopForward()

	for {
		select {
		case r := <-resultCh:
			cancel()
			d.finishTurn(sessionKey, channel, chatID, metadata, r)
			return
		case msg := <-incoming:
			if matchesSession(msg, sessionKey) {
				cancel()
				<-resultCh // drain the cancelled call before restarting
				extra, extraMedia := d.transcribeAudio(ctx, msg.Content, msg.Media)
				content += "\n\n" + extra
				media = append(media, extraMedia...)
				if msg.Metadata != nil {
					metadata = msg.Metadata
				}
				runCtx, cancel = context.WithCancel(ctx)
				resultCh = make(chan turnResult, 1)
				start(runCtx, content, media)
			} else {
				d.pending = append(d.pending, msg)
			}
		}
	}
}

func (d *Dispatcher) finishTurn(sessionKey, channel, chatID string, metadata map[string]string, r turnResult) {
	if r.err != nil {
		slog.Warn("agent turn failed", "session", sessionKey, "error", r.err)
		d.Bus.PublishOutbound(bus.OutboundMessage{
			Channel: channel, ChatID: chatID,
			Content: "Sorry, something went wrong processing that.",
		})
		return
	}
	if r.response != "" {
		d.Bus.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: r.response, Metadata: metadata})
	}
	if r.needsConsolidation {
		go d.runConsolidation(sessionKey)
	}
}

func (d *Dispatcher) runConsolidation(sessionKey string) {
	task, ok := consolidate.Prepare(d.Sessions, d.Memory, sessionKey, d.MemoryWindow, false)
	if !ok {
		return
	}
	entry := d.Loop.Models.Get("consolidation")
	result, ok := consolidate.Run(context.Background(), entry, d.Usage, d.Memory, task)
	if !ok {
		return
	}
	d.consolidationResults <- result
}

func (d *Dispatcher) resolvePersona(sessionKey string, metadata map[string]string) (preamble, tier string) {
	if p, ok := metadata[bus.MetaPersona]; ok && p != "" {
		if err := d.Sessions.SetMetadata(sessionKey, bus.MetaPersona, p); err != nil {
			slog.Warn("failed to persist persona on session", "session", sessionKey, "error", err)
		}
	}
	key, ok := d.Sessions.GetMetadata(sessionKey, bus.MetaPersona)
	if !ok || key == "" {
		return "", ""
	}
	p, found := d.Personas.Get(key)
	if !found {
		return "", ""
	}
	return p.Preamble, p.ModelTier
}

func (d *Dispatcher) handleSlashCommand(ctx context.Context, cmd string, msg bus.InboundMessage) {
	sessionKey := bus.SessionKey(msg.Channel, msg.ChatID)
	switch cmd {
	case "/new":
		entry := d.Loop.Models.Get("consolidation")
		consolidate.Now(ctx, d.Sessions, d.Memory, d.MemoryIndex, entry, d.Usage, sessionKey, d.MemoryWindow, true)
		if _, err := d.Sessions.GetOrCreate(sessionKey); err == nil {
			_ = d.Sessions.Clear(sessionKey)
			_ = d.Sessions.Save(sessionKey)
		}
		d.Sessions.Invalidate(sessionKey)
		d.Bus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel, ChatID: msg.ChatID,
			Content: "Started a new session. The previous conversation has been archived to memory.",
		})
	case "/help", "/start":
		d.Bus.PublishOutbound(bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: helpText})
	}
}

// slashCommand reports whether content's first word is a recognized
// slash command.
func slashCommand(content string) (string, bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return "", false
	}
	switch fields[0] {
	case "/new", "/help", "/start":
		return fields[0], true
	default:
		return "", false
	}
}

// splitSystemChatID splits a system message's "origin_channel:origin_chat_id"
// chat ID. A malformed value (no colon) is treated as an opaque chat ID on
// the "system" channel itself.
func splitSystemChatID(chatID string) (channel, id string) {
	if idx := strings.IndexByte(chatID, ':'); idx >= 0 {
		return chatID[:idx], chatID[idx+1:]
	}
	return "system", chatID
}
