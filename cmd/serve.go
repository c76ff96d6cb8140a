package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jaredwolff/patina-go/internal/app"
	"github.com/jaredwolff/patina-go/internal/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway with all enabled channels and background services",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fatalf("failed to load config: %v", err)
	}

	a, err := app.Build(cfg)
	if err != nil {
		fatalf("failed to build gateway: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("patina gateway starting", "workspace", cfg.Workspace)
	a.Run(ctx)
	slog.Info("patina gateway stopped")
}
