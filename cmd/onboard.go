package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jaredwolff/patina-go/internal/config"
)

func onboardCmd() *cobra.Command {
	var nonInteractive bool

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Initialize ~/.patina config and workspace",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard(nonInteractive)
		},
	}
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "seed config from environment variables only")
	return cmd
}

var onboardProviders = []string{"anthropic", "openai", "groq", "ollama", "gemini"}

func runOnboard(nonInteractive bool) {
	cfg, err := config.Default()
	if err != nil {
		fatalf("failed to resolve defaults: %v", err)
	}

	path := resolveConfigPath()
	if existing, loadErr := config.Load(path); loadErr == nil && len(existing.Tiers) > 0 {
		cfg = existing
	}

	if nonInteractive || !isTerminal() {
		seedFromEnv(cfg)
	} else if err := runOnboardForm(cfg); err != nil {
		fatalf("onboard cancelled: %v", err)
	}

	if err := os.MkdirAll(cfg.Workspace, 0o755); err != nil {
		fatalf("failed to create workspace: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fatalf("failed to create data dir: %v", err)
	}
	seedWorkspaceTemplates(cfg.Workspace)

	if err := config.Save(path, cfg); err != nil {
		fatalf("failed to save config: %v", err)
	}
	fmt.Printf("wrote config to %s\n", path)
}

// seedFromEnv leaves provider credentials for config.Load's env-var
// overlay to pick up; it only needs to guarantee a default tier exists.
func seedFromEnv(cfg *config.Config) {
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = map[string]config.TierConfig{
			"default": {Provider: "anthropic", Model: "claude-sonnet-4-5-20250929"},
		}
	}
}

func runOnboardForm(cfg *config.Config) error {
	provider := "anthropic"
	model := cfg.Tiers["default"].Model
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	apiKey := ""
	workspace := cfg.Workspace

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default model provider").
				Options(huh.NewOptions(onboardProviders...)...).
				Value(&provider),
			huh.NewInput().
				Title("Default model name").
				Value(&model),
			huh.NewInput().
				Title("API key (blank to read from environment)").
				Password(true).
				Value(&apiKey),
			huh.NewInput().
				Title("Workspace directory").
				Value(&workspace),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Workspace = workspace
	cfg.Tiers = map[string]config.TierConfig{
		"default": {Provider: provider, Model: model},
	}
	if apiKey != "" {
		switch provider {
		case "anthropic":
			cfg.Anthropic.APIKey = apiKey
		case "openai":
			cfg.OpenAI.APIKey = apiKey
		case "groq":
			cfg.Groq.APIKey = apiKey
		case "gemini":
			cfg.Gemini.APIKey = apiKey
		}
	}
	return nil
}

func isTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// seedWorkspaceTemplates writes the memory/heartbeat scaffolding a fresh
// workspace needs, leaving existing files untouched.
func seedWorkspaceTemplates(workspace string) {
	if err := os.MkdirAll(workspace+"/memory", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to create memory dir: %v\n", err)
	}
	writeIfMissing(workspace+"/memory/MEMORY.md", "# Memory\n\n")
	writeIfMissing(workspace+"/HEARTBEAT.md", "# Heartbeat checklist\n\n- [ ] Review open tasks\n")
}

func writeIfMissing(path, content string) {
	if _, err := os.Stat(path); err == nil {
		return
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write %s: %v\n", path, err)
	}
}
