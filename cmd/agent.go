package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jaredwolff/patina-go/internal/app"
	"github.com/jaredwolff/patina-go/internal/config"
	"github.com/jaredwolff/patina-go/internal/consolidate"
	"github.com/jaredwolff/patina-go/internal/tools"
)

func agentCmd() *cobra.Command {
	var message, sessionKey string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Send a single message or start an interactive REPL",
		Run: func(cmd *cobra.Command, args []string) {
			runAgent(message, sessionKey)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive mode)")
	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "session key (default: a fresh cli:<uuid> session)")
	return cmd
}

func runAgent(message, sessionKey string) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fatalf("failed to load config: %v", err)
	}

	a, err := app.Build(cfg)
	if err != nil {
		fatalf("failed to build agent: %v", err)
	}
	defer a.Close()

	chatID := sessionKey
	if sessionKey == "" {
		chatID = uuid.NewString()[:8]
		sessionKey = "cli:" + chatID
	}
	a.Router.Set(tools.RoutingContext{Channel: "cli", ChatID: chatID})

	if message != "" {
		runOneShot(a, sessionKey, message)
		return
	}
	runREPL(a, sessionKey)
}

func runOneShot(a *app.App, sessionKey, message string) {
	resp, _, err := a.Loop.ProcessMessage(context.Background(), sessionKey, message, nil)
	if err != nil {
		fatalf("agent error: %v", err)
	}
	fmt.Println(resp)
}

func runREPL(a *app.App, sessionKey string) {
	rl, err := readline.New("> ")
	if err != nil {
		fatalf("failed to start readline: %v", err)
	}
	defer rl.Close()

	fmt.Println("Patina interactive session. Type /new to reset, Ctrl-D to quit.")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}
		if line == "" {
			continue
		}
		if line == "/new" {
			entry := a.Loop.Models.Get("consolidation")
			consolidate.Now(context.Background(), a.Sessions, a.Memory, a.MemoryIndex, entry, a.Usage, sessionKey, a.Loop.MemoryWindow, true)
			if _, err := a.Sessions.GetOrCreate(sessionKey); err == nil {
				_ = a.Sessions.Clear(sessionKey)
				_ = a.Sessions.Save(sessionKey)
			}
			a.Sessions.Invalidate(sessionKey)
			fmt.Println("New session started.")
			continue
		}
		resp, _, err := a.Loop.ProcessMessage(context.Background(), sessionKey, line, nil)
		if err != nil {
			fmt.Printf("Sorry, something went wrong: %v\n", err)
			continue
		}
		fmt.Println(resp)
	}
}
