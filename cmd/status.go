package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jaredwolff/patina-go/internal/app"
	"github.com/jaredwolff/patina-go/internal/config"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print config, workspace, provider, and tool summary",
		Run: func(cmd *cobra.Command, args []string) {
			runStatus()
		},
	}
}

func runStatus() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fatalf("failed to load config: %v", err)
	}

	a, err := app.Build(cfg)
	if err != nil {
		fatalf("failed to build agent: %v", err)
	}
	defer a.Close()

	fmt.Printf("workspace:   %s\n", cfg.Workspace)
	fmt.Printf("data dir:    %s\n", cfg.DataDir)
	fmt.Println()

	fmt.Println("tiers:")
	names := make([]string, 0, len(cfg.Tiers))
	for name := range cfg.Tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := cfg.Tiers[name]
		fmt.Printf("  %-14s %s / %s\n", name, t.Provider, t.Model)
	}
	fmt.Println()

	fmt.Println("tools:")
	toolNames := a.Tools.Names()
	sort.Strings(toolNames)
	for _, name := range toolNames {
		fmt.Printf("  %s\n", name)
	}
	fmt.Println()

	jobs := a.CronStore.List()
	fmt.Printf("cron jobs:   %d\n", len(jobs))

	personas := a.Personas.List()
	fmt.Printf("personas:    %d\n", len(personas))

	tasks := a.Tasks.List(nil, nil)
	fmt.Printf("board tasks: %d\n", len(tasks))

	fmt.Println()
	fmt.Println("channels:")
	fmt.Printf("  telegram: enabled=%v\n", cfg.Telegram.Enabled)
	fmt.Printf("  slack:    enabled=%v\n", cfg.Slack.Enabled)
	fmt.Printf("  web:      enabled=%v addr=%s\n", cfg.Web.Enabled, cfg.Web.Addr)
}
