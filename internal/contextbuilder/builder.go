// Package contextbuilder assembles the system prompt and ordered message
// list handed to a CompletionModel.
package contextbuilder

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jaredwolff/patina-go/internal/memory"
	"github.com/jaredwolff/patina-go/internal/providers"
	"github.com/jaredwolff/patina-go/internal/sessions"
	"github.com/jaredwolff/patina-go/internal/skills"
)

var bootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

// Builder assembles the system prompt and message list for one turn.
type Builder struct {
	workspace        string
	memory           *memory.Store
	skills           *skills.Loader
	preambleOverride string
	channelRules     map[string]string
}

// New returns a Builder that assembles the default identity + bootstrap +
// memory + skills prompt.
func New(workspace string, mem *memory.Store, sk *skills.Loader) *Builder {
	return &Builder{workspace: workspace, memory: mem, skills: sk}
}

// WithPreamble returns a Builder whose system prompt is entirely replaced
// by preamble — used for persona-skinned and subagent turns.
func WithPreamble(workspace string, mem *memory.Store, preamble string) *Builder {
	return &Builder{workspace: workspace, memory: mem, skills: skills.NewLoader(workspace, ""), preambleOverride: preamble}
}

// WithPreambleOverride returns a shallow copy of b whose system prompt is
// entirely replaced by preamble, reusing b's memory and skills loader —
// used for per-turn persona overrides where the rest of the Builder's
// wiring should stay put.
func (b *Builder) WithPreambleOverride(preamble string) *Builder {
	return &Builder{workspace: b.workspace, memory: b.memory, skills: b.skills, preambleOverride: preamble, channelRules: b.channelRules}
}

// SetChannelRules installs per-channel system-prompt addenda, keyed by
// channel name. Rules for the turn's channel are appended alongside the
// Current Session block in BuildMessages.
func (b *Builder) SetChannelRules(rules map[string]string) {
	b.channelRules = rules
}

// BuildSystemPrompt assembles identity, bootstrap files, memory, and
// skills, separated by "\n\n---\n\n", or returns the preamble override
// verbatim if one was supplied.
func (b *Builder) BuildSystemPrompt() (string, error) {
	if b.preambleOverride != "" {
		return b.preambleOverride, nil
	}

	var parts []string
	parts = append(parts, b.identity())

	if bootstrap := b.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}

	longTerm, err := b.memory.ReadLongTerm()
	if err != nil {
		return "", fmt.Errorf("read long-term memory: %w", err)
	}
	if longTerm != "" {
		parts = append(parts, "# Memory\n\n"+longTerm)
	}

	alwaysSkills := b.skills.AlwaysSkills()
	if len(alwaysSkills) > 0 {
		if content := b.skills.LoadSkillsForContext(alwaysSkills); content != "" {
			parts = append(parts, "# Active Skills\n\n"+content)
		}
	}

	if summary := b.skills.BuildSkillsSummary(); summary != "" {
		parts = append(parts, "# Skills\n\n"+
			"The following skills extend your capabilities. To use a skill, "+
			"read its SKILL.md file using the read_file tool.\n"+
			"Skills with available=\"false\" need dependencies installed first.\n\n"+
			summary)
	}

	return strings.Join(parts, "\n\n---\n\n"), nil
}

func (b *Builder) identity() string {
	now := time.Now()
	workspacePath := b.workspace
	if abs, err := filepath.Abs(b.workspace); err == nil {
		workspacePath = abs
	}

	return fmt.Sprintf(`# Patina

You are Patina, a helpful AI assistant. You have access to tools that allow you to:
- Read, write, and edit files
- Execute shell commands
- Search the web and fetch web pages
- Send messages to users on chat channels

## Current Time
%s (%s)

## Runtime
%s %s, Go

## Workspace
Your workspace is at: %s
- Long-term memory: %s/memory/MEMORY.md
- History log: %s/memory/HISTORY.md (grep-searchable)
- Custom skills: %s/skills/{skill-name}/SKILL.md

IMPORTANT: When responding to direct questions or conversations, reply directly with your text response.
Only use the 'message' tool when you need to send a message to a specific chat channel.
For normal conversation, just respond with text - do not call the message tool.

Always be helpful, accurate, and concise. When using tools, think step by step.
When remembering something important, write to %s/memory/MEMORY.md
To recall past events, grep %s/memory/HISTORY.md`,
		now.Format("2006-01-02 15:04 (Monday)"), now.Format("MST"),
		runtime.GOOS, runtime.GOARCH,
		workspacePath, workspacePath, workspacePath, workspacePath, workspacePath, workspacePath)
}

func (b *Builder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(b.workspace, name))
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages assembles [system, ...history, current user turn]. When
// channel and chatID are both non-empty, a "Current Session" block is
// appended to the system prompt. Media paths that resolve to image files
// become image attachments on the current user turn; the providers send
// them after the text part.
func (b *Builder) BuildMessages(history []sessions.Message, currentText, channel, chatID string, media []string) ([]providers.Message, error) {
	systemPrompt, err := b.BuildSystemPrompt()
	if err != nil {
		return nil, err
	}
	if channel != "" && chatID != "" {
		systemPrompt += fmt.Sprintf("\n\n## Current Session\nChannel: %s\nChat ID: %s", channel, chatID)
	}
	if channel != "" {
		if rules := b.channelRules[channel]; rules != "" {
			systemPrompt += fmt.Sprintf("\n\n## Channel Rules (%s)\n%s", channel, rules)
		}
	}

	out := make([]providers.Message, 0, len(history)+2)
	out = append(out, providers.Message{Role: providers.RoleSystem, Content: systemPrompt})

	for _, m := range history {
		role := providers.Role(m.Role)
		out = append(out, providers.Message{
			Role:             role,
			Content:          m.Content,
			ReasoningContent: m.ReasoningContent,
		})
	}

	out = append(out, providers.Message{
		Role:    providers.RoleUser,
		Content: currentText,
		Images:  loadImageParts(media),
	})
	return out, nil
}

func loadImageParts(media []string) []providers.ImagePart {
	var parts []providers.ImagePart
	for _, path := range media {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		parts = append(parts, providers.ImagePart{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return parts
}
