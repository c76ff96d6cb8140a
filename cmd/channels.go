package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaredwolff/patina-go/internal/config"
)

func channelsCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "channels",
		Short: "Inspect configured transports",
	}
	root.AddCommand(channelsStatusCmd())
	return root
}

func channelsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print which transports are enabled",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fatalf("failed to load config: %v", err)
			}
			fmt.Printf("telegram: enabled=%v\n", cfg.Telegram.Enabled)
			fmt.Printf("slack:    enabled=%v\n", cfg.Slack.Enabled)
			fmt.Printf("web:      enabled=%v addr=%s\n", cfg.Web.Enabled, cfg.Web.Addr)
		},
	}
}
