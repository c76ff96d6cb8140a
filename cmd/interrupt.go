package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaredwolff/patina-go/internal/config"
)

func interruptCmd() *cobra.Command {
	var sessionKey string

	cmd := &cobra.Command{
		Use:   "interrupt",
		Short: "Request that a running session stop at its next safe checkpoint",
		Run: func(cmd *cobra.Command, args []string) {
			if sessionKey == "" {
				fatalf("--session is required")
			}
			runInterrupt(sessionKey)
		},
	}
	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "session key to interrupt")
	cmd.MarkFlagRequired("session")
	return cmd
}

func runInterrupt(sessionKey string) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fatalf("failed to load config: %v", err)
	}

	dir := cfg.InterruptsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fatalf("failed to create interrupts dir: %v", err)
	}

	flag := filepath.Join(dir, sanitizeSessionKey(sessionKey)+".flag")
	if err := os.WriteFile(flag, []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		fatalf("failed to write interrupt flag: %v", err)
	}
	fmt.Printf("interrupt requested for session %q\n", sessionKey)
}

// sanitizeSessionKey mirrors the agent loop's interrupt flag file naming
// (replace / \ : space with _) so a flag dropped here is found there.
func sanitizeSessionKey(key string) string {
	r := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		" ", "_",
	)
	return r.Replace(key)
}
