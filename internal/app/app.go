// Package app wires the core components into one running instance: it
// is the construction order every CLI subcommand shares.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaredwolff/patina-go/internal/agent"
	"github.com/jaredwolff/patina-go/internal/bus"
	"github.com/jaredwolff/patina-go/internal/channels"
	"github.com/jaredwolff/patina-go/internal/channels/slack"
	"github.com/jaredwolff/patina-go/internal/channels/telegram"
	"github.com/jaredwolff/patina-go/internal/channels/webconsole"
	"github.com/jaredwolff/patina-go/internal/config"
	"github.com/jaredwolff/patina-go/internal/contextbuilder"
	"github.com/jaredwolff/patina-go/internal/cron"
	"github.com/jaredwolff/patina-go/internal/filewatch"
	"github.com/jaredwolff/patina-go/internal/gateway"
	"github.com/jaredwolff/patina-go/internal/heartbeat"
	"github.com/jaredwolff/patina-go/internal/memory"
	"github.com/jaredwolff/patina-go/internal/persona"
	"github.com/jaredwolff/patina-go/internal/providers"
	"github.com/jaredwolff/patina-go/internal/sessions"
	"github.com/jaredwolff/patina-go/internal/skills"
	"github.com/jaredwolff/patina-go/internal/subagent"
	"github.com/jaredwolff/patina-go/internal/tasks"
	"github.com/jaredwolff/patina-go/internal/tools"
	"github.com/jaredwolff/patina-go/internal/usage"
)

// App bundles every constructed component so CLI subcommands can reach
// past the Dispatcher when they need to (cron list, status, etc.)
// without re-wiring anything.
type App struct {
	Config      *config.Config
	Bus         *bus.Bus
	Sessions    *sessions.Manager
	Memory      *memory.Store
	MemoryIndex *memory.Index
	Usage       *usage.Tracker
	Personas    *persona.Store
	Tasks       *tasks.Board
	CronStore   *cron.Store
	Cron        *cron.Scheduler
	Heartbeat   *heartbeat.Service
	Models      *providers.Pool
	Skills      *skills.Loader
	Router      *tools.Router
	Tools       *tools.Registry
	Subagents   *subagent.Supervisor
	Loop        *agent.Loop
	Gateway     *gateway.Dispatcher
	FileWatch   *filewatch.Watcher

	// Transports are nil unless enabled in config; Run starts whichever
	// are non-nil alongside the gateway. Channels holds the same
	// instances behind the transport contract.
	Telegram   *telegram.Channel
	Slack      *slack.Channel
	Webconsole *webconsole.Channel
	Channels   []channels.Channel
}

// Build constructs every component in dependency order. Callers are
// responsible for calling Close when done.
func Build(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	a.Bus = bus.New()
	a.Sessions = sessions.NewManager(cfg.SessionsDir())
	a.Memory = memory.NewStore(cfg.MemoryWorkspaceDir())

	idx, err := memory.Open(cfg.Workspace, cfg.MemoryIndexPath())
	if err != nil {
		return nil, fmt.Errorf("open memory index: %w", err)
	}
	a.MemoryIndex = idx

	tracker, err := usage.Open(cfg.UsageDBPath())
	if err != nil {
		return nil, fmt.Errorf("open usage tracker: %w", err)
	}
	a.Usage = tracker

	a.Personas = persona.Load(cfg.PersonasPath())
	a.Tasks = tasks.Load(cfg.TasksPath())
	a.CronStore = cron.Load(cfg.CronStorePath())
	a.Cron = cron.NewScheduler(a.CronStore, a.Bus)
	a.Heartbeat = heartbeat.New(cfg.Workspace, a.Bus, cfg.HeartbeatIntervalSecs)

	pool, err := buildModelPool(cfg)
	if err != nil {
		return nil, err
	}
	a.Models = pool

	a.Skills = skills.NewLoader(cfg.Workspace, "")
	a.Router = tools.NewRouter()

	// Constructed with a nil factory: the factory closure needs the
	// restricted tool registry, which in turn needs this same Supervisor
	// for its spawn/task tools. SetFactory below closes the
	// loop once both sides exist.
	a.Subagents = subagent.NewSupervisor(a.Bus, nil)
	a.Tools = buildToolRegistry(cfg, a)

	builder := contextbuilder.New(cfg.Workspace, a.Memory, a.Skills)
	a.Loop = agent.New(agent.Config{
		Models:       a.Models,
		Sessions:     a.Sessions,
		Context:      builder,
		Tools:        a.Tools,
		MemoryIndex:  a.MemoryIndex,
		Usage:        a.Usage,
		MemoryWindow: cfg.MemoryWindow,
		AgentTag:     "default",
	})

	// Wire the subagent LoopFactory now that a.Loop exists: each spawn gets
	// a restricted registry (no message/spawn/cron/task) and a lower
	// iteration cap.
	restrictedTools := restrictedRegistry(a.Tools)
	a.Subagents.SetFactory(func(taskID string, opts subagent.RunOptions) subagent.Runner {
		preamble := opts.Preamble
		if preamble == "" {
			preamble = subagentDefaultPreamble
		}
		loop := agent.New(agent.Config{
			Models:        a.Models,
			Sessions:      a.Sessions,
			Context:       contextbuilder.WithPreamble(cfg.Workspace, a.Memory, preamble),
			Tools:         restrictedTools,
			MemoryIndex:   nil, // restricted subagents don't trigger reindex
			Usage:         a.Usage,
			MaxIterations: 15,
			MemoryWindow:  cfg.MemoryWindow,
			AgentTag:      "subagent:" + taskID,
		})
		return &subagentRunner{loop: loop, tier: opts.ModelTier}
	})

	a.Gateway = gateway.New(a.Bus, a.Loop, a.Sessions, a.Personas, a.Router, a.Memory, a.MemoryIndex, cfg.MemoryWindow, a.Usage)

	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		tg, err := telegram.New(cfg.Telegram.BotToken, a.Bus, cfg.Telegram.AllowedUsers)
		if err != nil {
			return nil, fmt.Errorf("build telegram channel: %w", err)
		}
		a.Telegram = tg
	}
	if cfg.Slack.Enabled && cfg.Slack.BotToken != "" && cfg.Slack.AppToken != "" {
		a.Slack = slack.New(cfg.Slack.BotToken, cfg.Slack.AppToken, a.Bus, cfg.Slack.AllowedUsers)
	}
	if cfg.Web.Enabled {
		addr := cfg.Web.Addr
		if addr == "" {
			addr = ":8787"
		}
		a.Webconsole = webconsole.New(addr, a.Bus)
	}

	if a.Telegram != nil {
		a.Channels = append(a.Channels, a.Telegram)
	}
	if a.Slack != nil {
		a.Channels = append(a.Channels, a.Slack)
	}
	if a.Webconsole != nil {
		a.Channels = append(a.Channels, a.Webconsole)
	}

	// Per-channel prompt addenda (Slack's no-tables rule, etc.) land in
	// the system prompt of turns on that channel.
	rules := make(map[string]string)
	for _, ch := range a.Channels {
		if r := ch.PromptRules(); r != "" {
			rules[ch.Name()] = r
		}
	}
	builder.SetChannelRules(rules)

	a.FileWatch = filewatch.New(
		[]string{cfg.PersonasPath(), cfg.TasksPath(), cfg.CronStorePath()},
		func(path string) {
			slog.Debug("external edit detected", "path", path)
		},
	)

	return a, nil
}

var (
	_ channels.Channel = (*telegram.Channel)(nil)
	_ channels.Channel = (*slack.Channel)(nil)
	_ channels.Channel = (*webconsole.Channel)(nil)
)

const subagentDefaultPreamble = `You are a focused background worker handling one task. Stay on task, use the tools available to you, and summarise your result when done.`

// subagentRunner adapts *agent.Loop to the subagent.Runner contract,
// resolving the persona-supplied tier (falling back to "default").
type subagentRunner struct {
	loop *agent.Loop
	tier string
}

func (r *subagentRunner) RunTurn(ctx context.Context, sessionKey, userMessage string) (string, error) {
	tier := r.tier
	if tier == "" {
		tier = "default"
	}
	resp, _, err := r.loop.ProcessMessageForPersona(ctx, sessionKey, userMessage, nil, "", tier)
	return resp, err
}

func buildModelPool(cfg *config.Config) (*providers.Pool, error) {
	tiers := make(map[string]providers.TierEntry, len(cfg.Tiers))
	for name, t := range cfg.Tiers {
		model, err := buildModel(cfg, t)
		if err != nil {
			return nil, fmt.Errorf("tier %q: %w", name, err)
		}
		tiers[name] = providers.TierEntry{Model: model, ModelName: t.Model, ProviderName: t.Provider}
	}
	// NewPool's ModelOverrides already seeds the kimi-k2.5 override
	// additional patterns can be registered via
	// pool.Overrides().Set from onboarding-supplied config if needed.
	return providers.NewPool(tiers)
}

func buildModel(cfg *config.Config, t config.TierConfig) (providers.CompletionModel, error) {
	switch t.Provider {
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but PATINA_ANTHROPIC_API_KEY is not set")
		}
		return providers.NewAnthropicModel(cfg.Anthropic.APIKey, t.Model), nil
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai provider selected but PATINA_OPENAI_API_KEY is not set")
		}
		return providers.NewOpenAIModel(cfg.OpenAI.APIKey, cfg.OpenAI.APIBase, t.Model), nil
	case "groq":
		if cfg.Groq.APIKey == "" {
			return nil, fmt.Errorf("groq provider selected but PATINA_GROQ_API_KEY is not set")
		}
		base := cfg.Groq.APIBase
		if base == "" {
			base = "https://api.groq.com/openai/v1"
		}
		return providers.NewOpenAIModel(cfg.Groq.APIKey, base, t.Model), nil
	case "ollama":
		base := cfg.Ollama.APIBase
		if base == "" {
			base = "http://localhost:11434/v1"
		}
		return providers.NewOpenAIModel("ollama", base, t.Model), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini provider selected but PATINA_GEMINI_API_KEY is not set")
		}
		base := cfg.Gemini.APIBase
		if base == "" {
			base = "https://generativelanguage.googleapis.com/v1beta/openai"
		}
		return providers.NewOpenAIModel(cfg.Gemini.APIKey, base, t.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", t.Provider)
	}
}

func buildToolRegistry(cfg *config.Config, a *App) *tools.Registry {
	r := tools.NewRegistry()
	r.Register(tools.NewReadFileTool(cfg.Workspace, true))
	r.Register(tools.NewWriteFileTool(cfg.Workspace, true))
	r.Register(tools.NewEditFileTool(cfg.Workspace, true))
	r.Register(tools.NewListDirTool(cfg.Workspace, true))
	r.Register(tools.NewExecTool(cfg.Workspace, cfg.SandboxExec))
	r.Register(tools.NewWebSearchTool(cfg.WebSearch.APIKey))
	r.Register(tools.NewWebFetchTool())
	r.Register(tools.NewMemorySearchTool(a.MemoryIndex))
	r.Register(tools.NewMessageTool(a.Bus, a.Router))
	r.Register(tools.NewSpawnTool(a.Subagents, a.Router))
	r.Register(tools.NewCronTool(a.CronStore, a.Cron, a.Router))
	r.Register(tools.NewTaskTool(a.Tasks, a.Personas, a.Subagents, a.Router))
	return r
}

// restrictedToolNames are the Context-aware tools excluded from subagent
// registries: message/spawn/cron/task.
var restrictedToolNames = map[string]bool{
	"message": true, "spawn": true, "cron": true, "task": true,
}

func restrictedRegistry(full *tools.Registry) *tools.Registry {
	r := tools.NewRegistry()
	for _, name := range full.Names() {
		if restrictedToolNames[name] {
			continue
		}
		if t, ok := full.Get(name); ok {
			r.Register(t)
		}
	}
	return r
}

// Run starts the background services (heartbeat, cron, any enabled
// transports) and drives the gateway dispatcher until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	a.Cron.Start(ctx)
	a.Heartbeat.Start(ctx)

	for _, ch := range a.Channels {
		go func(ch channels.Channel) {
			if err := ch.Start(ctx); err != nil {
				slog.Error("channel stopped", "channel", ch.Name(), "error", err)
			}
		}(ch)
	}

	a.Gateway.Run(ctx)
	for _, ch := range a.Channels {
		ch.Stop()
	}
	a.Cron.Stop()
	a.Heartbeat.Stop()
}

// Close releases the app's open database handles and file watchers.
func (a *App) Close() {
	a.FileWatch.Close()
	if err := a.MemoryIndex.Close(); err != nil {
		slog.Warn("failed to close memory index", "error", err)
	}
	if err := a.Usage.Close(); err != nil {
		slog.Warn("failed to close usage tracker", "error", err)
	}
}
