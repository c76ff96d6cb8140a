// Package agent implements the core think-act-observe loop: one
// user turn runs until the model returns plain text, the interrupt flag is
// set, the tool-failure circuit breaker trips, or max_iterations is hit.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jaredwolff/patina-go/internal/contextbuilder"
	"github.com/jaredwolff/patina-go/internal/memory"
	"github.com/jaredwolff/patina-go/internal/providers"
	"github.com/jaredwolff/patina-go/internal/sessions"
	"github.com/jaredwolff/patina-go/internal/tools"
	"github.com/jaredwolff/patina-go/internal/usage"
)

// maxConsecutiveErrors bails the loop out once this many iterations in a
// row produce only failing tool calls (e.g. the model keeps generating
// malformed parameters).
const maxConsecutiveErrors = 3

// Loop is one agent instance's processing loop, bound to a model pool,
// session store, context builder, and tool registry.
type Loop struct {
	Models      *providers.Pool
	Sessions    *sessions.Manager
	Context     *contextbuilder.Builder
	Tools       *tools.Registry
	MemoryIndex *memory.Index  // nil disables post-turn reindexing (e.g. restricted subagents)
	Usage       *usage.Tracker // nil disables usage tracking for this loop instance

	MaxIterations int
	Temperature   float64
	MaxTokens     int
	MemoryWindow  int
	// AgentTag identifies this loop instance in usage records (the
	// "agent" column): "default", "coding", "subagent:<id>", etc. Falls
	// back to the per-call tier when empty.
	AgentTag string
}

// Config bundles Loop construction parameters with their defaults.
type Config struct {
	Models      *providers.Pool
	Sessions    *sessions.Manager
	Context     *contextbuilder.Builder
	Tools       *tools.Registry
	MemoryIndex *memory.Index
	Usage       *usage.Tracker

	MaxIterations int
	Temperature   float64
	MaxTokens     int
	MemoryWindow  int
	AgentTag      string
}

// New builds a Loop, filling in defaults for zero-valued Config fields.
func New(cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.MemoryWindow <= 0 {
		cfg.MemoryWindow = 40
	}
	return &Loop{
		Models:        cfg.Models,
		Sessions:      cfg.Sessions,
		Context:       cfg.Context,
		Tools:         cfg.Tools,
		MemoryIndex:   cfg.MemoryIndex,
		Usage:         cfg.Usage,
		MaxIterations: cfg.MaxIterations,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		MemoryWindow:  cfg.MemoryWindow,
		AgentTag:      cfg.AgentTag,
	}
}

// splitSessionKey splits a "channel:chat_id" session key. Keys without a
// colon yield an empty channel, which suppresses the Current Session
// block in the built prompt.
func splitSessionKey(sessionKey string) (channel, chatID string) {
	if idx := strings.IndexByte(sessionKey, ':'); idx > 0 {
		return sessionKey[:idx], sessionKey[idx+1:]
	}
	return "", sessionKey
}

func interruptFlagPath(sessionKey string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, sessionKey)
	return filepath.Join(home, ".patina", "interrupts", safe+".flag")
}

// consumeInterrupt checks for and clears a session's interrupt flag file.
// Checked at iteration and tool-call boundaries, never mid-LLM-call.
func consumeInterrupt(sessionKey string) bool {
	flag := interruptFlagPath(sessionKey)
	if _, err := os.Stat(flag); err != nil {
		return false
	}
	if err := os.Remove(flag); err != nil {
		slog.Warn("failed to clear interrupt flag", "path", flag, "error", err)
	}
	return true
}

// ProcessMessage runs one user turn to completion, persists both sides of
// the exchange to the session, and reports whether the session has grown
// past the memory window and is now due for consolidation.
func (l *Loop) ProcessMessage(ctx context.Context, sessionKey, userMessage string, media []string) (response string, needsConsolidation bool, err error) {
	return l.ProcessMessageForPersona(ctx, sessionKey, userMessage, media, "", "")
}

// ProcessMessageForPersona is ProcessMessage with an optional per-turn
// system-prompt override and model tier, resolved from session metadata
// by the gateway dispatcher during persona resolution.
func (l *Loop) ProcessMessageForPersona(ctx context.Context, sessionKey, userMessage string, media []string, preambleOverride, tier string) (response string, needsConsolidation bool, err error) {
	if consumeInterrupt(sessionKey) {
		return "Interrupted before processing.", false, nil
	}
	if tier == "" {
		tier = "default"
	}

	session, err := l.Sessions.GetOrCreate(sessionKey)
	if err != nil {
		return "", false, fmt.Errorf("load session %q: %w", sessionKey, err)
	}
	history := sessions.GetHistory(session, l.MemoryWindow)

	builder := l.Context
	if preambleOverride != "" {
		builder = builder.WithPreambleOverride(preambleOverride)
	}
	channel, chatID := splitSessionKey(sessionKey)
	messages, err := builder.BuildMessages(history, userMessage, channel, chatID, media)
	if err != nil {
		return "", false, fmt.Errorf("build messages: %w", err)
	}

	systemPrompt := messages[0].Content
	chatHistory := messages[1 : len(messages)-1]
	prompt := messages[len(messages)-1]
	toolDefs := toProviderToolDefs(l.Tools.Definitions(nil))

	text, toolsUsed, reasoning, err := l.runLoop(ctx, sessionKey, tier, systemPrompt, chatHistory, prompt, toolDefs)
	if err != nil {
		return "", false, err
	}

	now := time.Now()
	if err := l.Sessions.AddMessage(sessionKey, sessions.Message{Role: "user", Content: userMessage, Timestamp: now}); err != nil {
		return "", false, err
	}
	if err := l.Sessions.AddMessage(sessionKey, sessions.Message{
		Role: "assistant", Content: text, Timestamp: now, ToolsUsed: toolsUsed, ReasoningContent: reasoning,
	}); err != nil {
		return "", false, err
	}
	if err := l.Sessions.Save(sessionKey); err != nil {
		return "", false, fmt.Errorf("save session %q: %w", sessionKey, err)
	}

	// Hash-based reindex, so turns that don't touch memory files are cheap.
	if l.MemoryIndex != nil {
		if err := l.MemoryIndex.Reindex(); err != nil {
			slog.Warn("memory reindex after message failed", "error", err)
		}
	}

	needsConsolidation = len(session.Messages) > l.MemoryWindow
	return text, needsConsolidation, nil
}

// RunTurn adapts ProcessMessage to the subagent.Runner contract (no media,
// no consolidation signal — a subagent's caller handles both out of band).
func (l *Loop) RunTurn(ctx context.Context, sessionKey, userMessage string) (string, error) {
	response, _, err := l.ProcessMessage(ctx, sessionKey, userMessage, nil)
	return response, err
}

// runLoop drives the LLM <-> tool exchange for one turn. Returns the final
// response text, the ordered list of tool names invoked, and any
// accumulated reasoning content.
func (l *Loop) runLoop(ctx context.Context, sessionKey, tier, systemPrompt string, chatHistory []providers.Message, prompt providers.Message, toolDefs []providers.ToolDefinition) (string, []string, string, error) {
	entry := l.Models.Get(tier)
	var toolsUsed []string
	currentPrompt := prompt
	var reasoning strings.Builder
	consecutiveErrors := 0

	for iteration := 0; iteration < l.MaxIterations; iteration++ {
		if consumeInterrupt(sessionKey) {
			return "Interrupted.", toolsUsed, reasoning.String(), nil
		}

		temp, maxTokens := l.Models.ResolveParams(tier, l.Temperature, l.MaxTokens)

		allMessages := make([]providers.Message, 0, len(chatHistory)+1)
		allMessages = append(allMessages, chatHistory...)
		allMessages = append(allMessages, currentPrompt)

		req := providers.ChatRequest{
			System:      systemPrompt,
			Messages:    allMessages,
			Tools:       toolDefs,
			Temperature: temp,
			MaxTokens:   maxTokens,
		}

		llmStart := time.Now()
		resp, err := entry.Model.Complete(ctx, req)
		if err != nil {
			return "", toolsUsed, reasoning.String(), fmt.Errorf("LLM completion error (iteration %d): %w", iteration+1, err)
		}
		l.recordUsage(sessionKey, tier, entry, resp.Usage)

		var textContent strings.Builder
		var toolCalls []providers.ToolCall
		for _, part := range resp.Parts {
			switch part.Kind {
			case providers.PartText:
				textContent.WriteString(part.Text)
			case providers.PartToolCall:
				toolCalls = append(toolCalls, part.ToolCall)
			case providers.PartReasoning:
				if reasoning.Len() > 0 {
					reasoning.WriteByte('\n')
				}
				reasoning.WriteString(part.Reasoning)
				slog.Info("model reasoning", "content", part.Reasoning)
			}
		}

		if len(toolCalls) == 0 {
			text := textContent.String()
			if text == "" {
				text = "I've completed processing but have no response to give."
			}
			slog.Debug("llm response: text", "iteration", iteration+1, "max_iterations", l.MaxIterations,
				"chars", len(text), "elapsed", time.Since(llmStart))
			return text, toolsUsed, reasoning.String(), nil
		}

		slog.Debug("llm response: tool calls", "iteration", iteration+1, "max_iterations", l.MaxIterations,
			"count", len(toolCalls), "elapsed", time.Since(llmStart))

		chatHistory = append(chatHistory, currentPrompt)
		chatHistory = append(chatHistory, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   textContent.String(),
			ToolCalls: toolCalls,
		})

		var toolResultMsgs []providers.Message
		iterationHasSuccess := false
		lastError := ""
		interrupted := false
		for _, tc := range toolCalls {
			if consumeInterrupt(sessionKey) {
				interrupted = true
				break
			}
			toolsUsed = append(toolsUsed, tc.Name)

			var params map[string]interface{}
			if len(tc.Arguments) > 0 {
				_ = json.Unmarshal(tc.Arguments, &params)
			}
			slog.Info("tool call", "iteration", iteration+1, "tool", tc.Name, "args", truncateAtRune(string(tc.Arguments), 200))
			result, err := l.Tools.Execute(ctx, tc.Name, params)
			if err != nil {
				result = fmt.Sprintf("Error executing %s: %s", tc.Name, err.Error())
			}
			slog.Debug("tool result", "tool", tc.Name, "result", truncateAtRune(result, 200))

			if tools.IsErrorResult(result) {
				lastError = result
			} else {
				iterationHasSuccess = true
			}
			toolResultMsgs = append(toolResultMsgs, providers.Message{
				Role:       providers.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
		if interrupted {
			return "Interrupted.", toolsUsed, reasoning.String(), nil
		}

		if iterationHasSuccess {
			consecutiveErrors = 0
		} else {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				slog.Warn("circuit breaker: consecutive iterations with all tool calls failing", "count", consecutiveErrors)
				return fmt.Sprintf("I'm having trouble using a tool correctly and had to stop retrying. Last error: %s. Could you try rephrasing your request?", lastError),
					toolsUsed, reasoning.String(), nil
			}
		}

		chatHistory = append(chatHistory, toolResultMsgs...)
		currentPrompt = providers.Message{
			Role:    providers.RoleUser,
			Content: "If more tool calls are needed, make them. Otherwise, respond with the result.",
		}
	}

	slog.Warn("agent loop reached max iterations without final response", "max_iterations", l.MaxIterations)
	return "I've been working on this but reached the maximum number of iterations. Here's what I've done so far.", toolsUsed, reasoning.String(), nil
}

// recordUsage writes one usage event per model call. A nil
// Usage tracker (or a tracker write failure, handled inside Record) never
// interrupts the turn.
func (l *Loop) recordUsage(sessionKey, tier string, entry providers.TierEntry, u providers.Usage) {
	if l.Usage == nil {
		return
	}
	agent := l.AgentTag
	if agent == "" {
		agent = tier
	}
	l.Usage.Record(usage.Record{
		SessionKey:        sessionKey,
		Model:             entry.ModelName,
		Provider:          entry.ProviderName,
		Agent:             agent,
		InputTokens:       u.InputTokens,
		OutputTokens:      u.OutputTokens,
		TotalTokens:       u.TotalTokens,
		CachedInputTokens: u.CachedInputTokens,
		CallType:          "agent_turn",
	})
}

func toProviderToolDefs(defs []tools.Definition) []providers.ToolDefinition {
	out := make([]providers.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, providers.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return out
}

// truncateAtRune shortens s to at most max bytes without splitting a UTF-8
// rune, appending "..." when truncated.
func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	end := max
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end] + "..."
}
