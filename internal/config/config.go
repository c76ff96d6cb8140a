// Package config loads the process-level settings the CLI needs to build
// the gateway: API keys, paths, and model-tier bindings. Settings layer
// an onboarding JSON file under env var overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"
)

// ProviderConfig is one LLM backend's credentials.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty" env:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" env:"API_BASE"`
	Model   string `json:"model,omitempty" env:"MODEL"`
}

// TierConfig binds a model-pool tier to a provider + model name.
type TierConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Config is the root of ~/.patina/config.json, overlaid with
// PATINA_*-prefixed environment variables via struct tags.
type Config struct {
	Workspace string `json:"workspace,omitempty" env:"WORKSPACE"`
	DataDir   string `json:"dataDir,omitempty" env:"DATA_DIR"`

	Anthropic ProviderConfig `json:"anthropic,omitempty" envPrefix:"ANTHROPIC_"`
	OpenAI    ProviderConfig `json:"openai,omitempty" envPrefix:"OPENAI_"`
	Groq      ProviderConfig `json:"groq,omitempty" envPrefix:"GROQ_"`
	Ollama    ProviderConfig `json:"ollama,omitempty" envPrefix:"OLLAMA_"`
	Gemini    ProviderConfig `json:"gemini,omitempty" envPrefix:"GEMINI_"`

	// Tiers maps tier name ("default", "coding", "consolidation", ...) to
	// a provider+model pair. "default" must be present at startup.
	Tiers map[string]TierConfig `json:"tiers,omitempty"`

	Telegram TelegramConfig `json:"telegram,omitempty" envPrefix:"TELEGRAM_"`
	Slack    SlackConfig    `json:"slack,omitempty" envPrefix:"SLACK_"`
	Web      WebConfig      `json:"web,omitempty" envPrefix:"WEB_"`
	WebSearch ProviderConfig `json:"webSearch,omitempty" envPrefix:"WEB_SEARCH_"`

	HeartbeatIntervalSecs int  `json:"heartbeatIntervalSecs,omitempty" env:"HEARTBEAT_INTERVAL_SECS"`
	MemoryWindow          int  `json:"memoryWindow,omitempty" env:"MEMORY_WINDOW"`
	SandboxExec           bool `json:"sandboxExec,omitempty" env:"SANDBOX_EXEC"`
}

// TelegramConfig enables the Telegram transport (out of core scope —
// contract only).
type TelegramConfig struct {
	Enabled  bool     `json:"enabled,omitempty" env:"ENABLED"`
	BotToken string   `json:"botToken,omitempty" env:"BOT_TOKEN"`
	// AllowedUsers entries match against "id|name" (bare id, bare name, or
	// the full pair); an empty list allows every sender. See internal/access.
	AllowedUsers []string `json:"allowedUsers,omitempty" env:"ALLOWED_USERS" envSeparator:","`
}

// SlackConfig enables the Slack transport (out of core scope).
type SlackConfig struct {
	Enabled      bool     `json:"enabled,omitempty" env:"ENABLED"`
	AppToken     string   `json:"appToken,omitempty" env:"APP_TOKEN"`
	BotToken     string   `json:"botToken,omitempty" env:"BOT_TOKEN"`
	AllowedUsers []string `json:"allowedUsers,omitempty" env:"ALLOWED_USERS" envSeparator:","`
}

// WebConfig enables the embedded HTTP/WebSocket console transport.
type WebConfig struct {
	Enabled bool   `json:"enabled,omitempty" env:"ENABLED"`
	Addr    string `json:"addr,omitempty" env:"ADDR"`
}

// defaultTiers is used when a freshly-onboarded config has no explicit
// Tiers map: everything routes to a single "default" tier.
func defaultTiers() map[string]TierConfig {
	return map[string]TierConfig{
		"default": {Provider: "anthropic", Model: "claude-sonnet-4-5-20250929"},
	}
}

// Default returns an empty Config with conservative path defaults
// (~/.patina/...), used by `onboard` to seed a fresh install.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	root := filepath.Join(home, ".patina")
	return &Config{
		Workspace:             filepath.Join(root, "workspace"),
		DataDir:               root,
		Tiers:                 defaultTiers(),
		HeartbeatIntervalSecs: 1800,
		MemoryWindow:          40,
	}, nil
}

// Load reads the JSON config file at path (missing file yields Default()),
// then overlays PATINA_*-prefixed environment variables on top via
// struct tags — the CLI constructs the core's inputs from config and
// env, keeping that layering an external concern of the binary.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if data, readErr := os.ReadFile(path); readErr == nil {
		// json5 tolerates the comments and trailing commas an operator
		// hand-editing config.json is likely to leave behind.
		if jsonErr := json5.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, jsonErr)
		}
	} else if !os.IsNotExist(readErr) {
		return nil, fmt.Errorf("read config %q: %w", path, readErr)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "PATINA_"}); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = defaultTiers()
	}
	return cfg, nil
}

// Save writes cfg as indented JSON to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// SessionsDir, MemoryIndexPath, UsageDBPath, CronStorePath, PersonasPath,
// TasksPath, InterruptsDir mirror the on-disk persistence layout.
func (c *Config) SessionsDir() string      { return filepath.Join(c.DataDir, "sessions") }
func (c *Config) MemoryIndexPath() string  { return filepath.Join(c.DataDir, "memory.sqlite") }
func (c *Config) UsageDBPath() string      { return filepath.Join(c.DataDir, "usage.sqlite") }
func (c *Config) CronStorePath() string    { return filepath.Join(c.DataDir, "cron", "jobs.json") }
func (c *Config) PersonasPath() string     { return filepath.Join(c.DataDir, "personas.json") }
func (c *Config) TasksPath() string        { return filepath.Join(c.DataDir, "tasks.json") }
func (c *Config) InterruptsDir() string    { return filepath.Join(c.DataDir, "interrupts") }
func (c *Config) MemoryWorkspaceDir() string { return filepath.Join(c.Workspace, "memory") }
