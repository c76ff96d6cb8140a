// Package consolidate implements memory consolidation: folding
// older session messages into long-term memory via a dedicated LLM call,
// so a session's working context doesn't grow without bound.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaredwolff/patina-go/internal/memory"
	"github.com/jaredwolff/patina-go/internal/providers"
	"github.com/jaredwolff/patina-go/internal/sessions"
	"github.com/jaredwolff/patina-go/internal/usage"
)

// Task is a snapshot of what needs consolidating, captured up front so the
// LLM call and memory writes don't need to hold a lock on live session
// state.
type Task struct {
	SessionKey    string
	End           int // session.LastConsolidated advances to this index on success
	Conversation  string
	CurrentMemory string
}

// Result reports a completed consolidation so the caller can advance the
// session's watermark.
type Result struct {
	SessionKey string
	End        int
}

const consolidationPromptTemplate = `You are a memory consolidation agent. Process this conversation and return a JSON object with exactly two keys:

1. "history_entry": A paragraph (2-5 sentences) summarizing the key events/decisions/topics. Start with a timestamp like [YYYY-MM-DD HH:MM]. Include enough detail to be useful when found by grep search later.

2. "memory_update": The updated long-term memory content. Add any new facts: user location, preferences, personal info, habits, project context, technical decisions, tools/services used. If nothing new, return the existing content unchanged.

## Current Long-term Memory
%s

## Conversation to Process
%s

Respond with ONLY valid JSON, no markdown fences.`

// Prepare builds a Task for sessionKey, or returns ok=false if there's
// nothing new to consolidate. archiveAll forces keep_count to zero,
// folding the entire session (used by the /new command).
func Prepare(mgr *sessions.Manager, mem *memory.Store, sessionKey string, memoryWindow int, archiveAll bool) (*Task, bool) {
	session, err := mgr.GetOrCreate(sessionKey)
	if err != nil {
		return nil, false
	}

	keepCount := memoryWindow / 2
	if archiveAll {
		keepCount = 0
	}

	total := len(session.Messages)
	if total <= keepCount {
		return nil, false
	}
	end := total - keepCount
	if end <= session.LastConsolidated {
		return nil, false
	}

	toProcess := session.Messages[session.LastConsolidated:end]
	if len(toProcess) == 0 {
		return nil, false
	}

	var conversation strings.Builder
	for _, msg := range toProcess {
		toolsInfo := ""
		if len(msg.ToolsUsed) > 0 {
			toolsInfo = fmt.Sprintf(" [tools: %s]", strings.Join(msg.ToolsUsed, ", "))
		}
		fmt.Fprintf(&conversation, "[%s] %s%s: %s\n",
			msg.Timestamp.Format("2006-01-02 15:04"), strings.ToUpper(msg.Role), toolsInfo, msg.Content)
	}

	currentMemory, _ := mem.ReadLongTerm()

	return &Task{
		SessionKey:    sessionKey,
		End:           end,
		Conversation:  conversation.String(),
		CurrentMemory: currentMemory,
	}, true
}

// Run executes the consolidation LLM call and writes memory.md/history.md
// directly. Returns ok=false (never an error) on any failure — a missed
// consolidation is not fatal, the next turn will retry with a larger
// window. tracker may be nil to disable usage recording for this call.
func Run(ctx context.Context, entry providers.TierEntry, tracker *usage.Tracker, mem *memory.Store, task *Task) (*Result, bool) {
	prompt := fmt.Sprintf(consolidationPromptTemplate, task.CurrentMemory, task.Conversation)

	resp, err := entry.Model.Complete(ctx, providers.ChatRequest{
		Messages:    []providers.Message{{Role: providers.RoleUser, Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   2048,
	})
	if err != nil {
		slog.Warn("memory consolidation LLM call failed", "error", err)
		return nil, false
	}
	if tracker != nil {
		tracker.Record(usage.Record{
			SessionKey: task.SessionKey, Model: entry.ModelName, Provider: entry.ProviderName,
			Agent: "consolidation", InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens,
			TotalTokens: resp.Usage.TotalTokens, CachedInputTokens: resp.Usage.CachedInputTokens, CallType: "consolidation",
		})
	}

	var text strings.Builder
	for _, part := range resp.Parts {
		if part.Kind == providers.PartText {
			text.WriteString(part.Text)
		}
	}
	responseText := text.String()
	slog.Debug("memory consolidation LLM response", "text", responseText)

	jsonStr := stripMarkdownFences(responseText)

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		preview := responseText
		if len(preview) > 500 {
			preview = preview[:500]
		}
		slog.Warn("memory consolidation: failed to parse JSON response", "error", err, "preview", preview)
		return nil, false
	}

	if entry, ok := parsed["history_entry"].(string); ok && entry != "" {
		if err := mem.AppendHistory(entry); err != nil {
			slog.Warn("failed to append history", "error", err)
		} else {
			slog.Info("memory consolidation: appended history entry")
		}
	}
	if update, ok := parsed["memory_update"].(string); ok {
		if err := mem.WriteLongTerm(update); err != nil {
			slog.Warn("failed to update memory", "error", err)
		} else {
			slog.Info("memory consolidation: updated long-term memory")
		}
	}

	return &Result{SessionKey: task.SessionKey, End: task.End}, true
}

// Apply advances the session's last_consolidated watermark and reindexes
// memory so newly written content is searchable immediately.
func Apply(mgr *sessions.Manager, idx *memory.Index, result *Result) {
	if err := mgr.SetLastConsolidated(result.SessionKey, result.End); err != nil {
		slog.Warn("session no longer exists after consolidation", "session", result.SessionKey, "error", err)
		return
	}
	if err := mgr.Save(result.SessionKey); err != nil {
		slog.Warn("failed to persist session after consolidation", "session", result.SessionKey, "error", err)
	}
	if idx != nil {
		if err := idx.Reindex(); err != nil {
			slog.Warn("memory reindex after consolidation failed", "error", err)
		}
	}
}

// Now runs Prepare, Run, and Apply synchronously — used by the /new
// command and CLI interactive mode, where blocking is acceptable.
func Now(ctx context.Context, mgr *sessions.Manager, mem *memory.Store, idx *memory.Index, entry providers.TierEntry, tracker *usage.Tracker, sessionKey string, memoryWindow int, archiveAll bool) {
	task, ok := Prepare(mgr, mem, sessionKey, memoryWindow, archiveAll)
	if !ok {
		return
	}
	result, ok := Run(ctx, entry, tracker, mem, task)
	if !ok {
		return
	}
	Apply(mgr, idx, result)
}

// stripMarkdownFences extracts the raw content of a ```json or ``` fenced
// response, or returns the trimmed text unchanged if unfenced.
func stripMarkdownFences(text string) string {
	trimmed := strings.TrimSpace(text)
	rest, ok := strings.CutPrefix(trimmed, "```json")
	if !ok {
		rest, ok = strings.CutPrefix(trimmed, "```")
	}
	if !ok {
		return trimmed
	}
	rest = strings.TrimSuffix(rest, "```")
	return strings.TrimSpace(rest)
}
