// Package webconsole serves a minimal embedded HTTP+WebSocket chat
// console using coder/websocket's accept/read/write idiom.
package webconsole

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/jaredwolff/patina-go/internal/bus"
)

// wireMessage is the single JSON envelope exchanged in both directions
// over the socket.
type wireMessage struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// Channel serves the console over HTTP and relays messages to/from the bus.
type Channel struct {
	addr   string
	b      *bus.Bus
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// New creates a webconsole channel listening on addr (e.g. ":8787").
func New(addr string, b *bus.Bus) *Channel {
	return &Channel{addr: addr, b: b, conns: make(map[string]*websocket.Conn)}
}

// Name identifies this channel on the bus.
func (c *Channel) Name() string { return "web" }

// IsAllowed always permits senders: the console is a single-operator
// localhost surface with no notion of per-sender identity beyond
// "browser".
func (c *Channel) IsAllowed(senderID string) bool { return true }

// Stop terminates the HTTP server started by Start.
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

// PromptRules returns the web-console-specific system-prompt addendum.
func (c *Channel) PromptRules() string { return "" }

// Start runs the HTTP server and the outbound-delivery loop until ctx is
// cancelled.
func (c *Channel) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", c.handleWS)
	mux.HandleFunc("/", c.handleIndex)

	srv := &http.Server{Addr: c.addr, Handler: mux}

	out := c.b.Subscribe("web")
	defer c.b.Unsubscribe("web")
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-out:
				if !ok {
					return
				}
				c.deliver(ctx, msg)
			}
		}
	}()

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	slog.Info("webconsole channel started", "addr", c.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (c *Channel) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<!doctype html><html><body>
<pre id="log"></pre>
<input id="input" autofocus>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
const log = document.getElementById("log");
const input = document.getElementById("input");
ws.onmessage = e => { log.textContent += e.data + "\n"; };
input.addEventListener("keydown", e => {
  if (e.key === "Enter" && input.value) {
    ws.send(JSON.stringify({chat_id: "browser", content: input.value}));
    log.textContent += "> " + input.value + "\n";
    input.value = "";
  }
});
</script></body></html>`))
}

func (c *Channel) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("webconsole: accept failed", "error", err)
		return
	}
	ctx := r.Context()
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	c.mu.Lock()
	c.conns["browser"] = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.conns, "browser")
		c.mu.Unlock()
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var wm wireMessage
		if err := json.Unmarshal(data, &wm); err != nil {
			continue
		}
		c.b.PublishInbound(ctx, bus.InboundMessage{
			Channel:  "web",
			SenderID: "browser",
			ChatID:   wm.ChatID,
			Content:  wm.Content,
		})
	}
}

func (c *Channel) deliver(ctx context.Context, msg bus.OutboundMessage) {
	if msg.Channel != "web" {
		return
	}
	c.mu.Lock()
	conn, ok := c.conns[msg.ChatID]
	if !ok {
		conn, ok = c.conns["browser"]
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	data, err := json.Marshal(wireMessage{ChatID: msg.ChatID, Content: msg.Content})
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Warn("webconsole: failed to deliver message", "error", err)
	}
}
