package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaredwolff/patina-go/internal/app"
	"github.com/jaredwolff/patina-go/internal/config"
	"github.com/jaredwolff/patina-go/internal/cron"
)

func cronCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cron",
		Short: "Inspect and manage scheduled jobs",
	}
	root.AddCommand(cronListCmd())
	root.AddCommand(cronAddCmd())
	root.AddCommand(cronRemoveCmd())
	root.AddCommand(cronEnableCmd())
	root.AddCommand(cronRunCmd())
	return root
}

func withCronStore(fn func(cfg *config.Config, a *app.App)) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	a, err := app.Build(cfg)
	if err != nil {
		fatalf("failed to build agent: %v", err)
	}
	defer a.Close()
	fn(cfg, a)
}

func cronListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Run: func(cmd *cobra.Command, args []string) {
			withCronStore(func(cfg *config.Config, a *app.App) {
				jobs := a.CronStore.List()
				sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAtMs < jobs[j].CreatedAtMs })
				for _, j := range jobs {
					if !all && !j.Enabled {
						continue
					}
					next := "—"
					if j.State.NextRunAtMs != nil {
						next = time.UnixMilli(*j.State.NextRunAtMs).Local().Format(time.RFC3339)
					}
					fmt.Printf("%s  %-20s enabled=%-5v next=%s  %s\n", j.ID, j.Name, j.Enabled, next, describeSchedule(j.Schedule))
				}
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include disabled jobs")
	return cmd
}

func describeSchedule(s cron.Schedule) string {
	switch s.Kind {
	case cron.KindAt:
		if s.AtMs != nil {
			return "at " + time.UnixMilli(*s.AtMs).Local().Format(time.RFC3339)
		}
		return "at ?"
	case cron.KindEvery:
		if s.EveryMs != nil {
			return fmt.Sprintf("every %s", time.Duration(*s.EveryMs)*time.Millisecond)
		}
		return "every ?"
	case cron.KindCron:
		return fmt.Sprintf("cron %q", s.Expr)
	default:
		return string(s.Kind)
	}
}

func cronAddCmd() *cobra.Command {
	var name, message, every, cronExpr, at, channel, to string
	var deliver bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a new job",
		Run: func(cmd *cobra.Command, args []string) {
			if name == "" || message == "" {
				fatalf("--name and --message are required")
			}
			sched, err := parseSchedule(every, cronExpr, at)
			if err != nil {
				fatalf("%v", err)
			}
			withCronStore(func(cfg *config.Config, a *app.App) {
				job, err := a.CronStore.Add(name, sched, cron.Payload{
					Message: message,
					Deliver: deliver,
					Channel: channel,
					To:      to,
				}, false)
				if err != nil {
					fatalf("failed to add job: %v", err)
				}
				fmt.Printf("scheduled job %s (%s)\n", job.ID, job.Name)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&message, "message", "", "agent turn message")
	cmd.Flags().StringVar(&every, "every", "", "repeat interval, e.g. 30m, 1h")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "5-field cron expression")
	cmd.Flags().StringVar(&at, "at", "", "one-shot fire time, RFC3339")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "deliver the result to a channel")
	cmd.Flags().StringVar(&channel, "channel", "", "delivery channel")
	cmd.Flags().StringVar(&to, "to", "", "delivery destination")
	return cmd
}

func parseSchedule(every, cronExpr, at string) (cron.Schedule, error) {
	set := 0
	for _, v := range []string{every, cronExpr, at} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return cron.Schedule{}, fmt.Errorf("exactly one of --every, --cron, --at is required")
	}
	switch {
	case every != "":
		d, err := time.ParseDuration(every)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("invalid --every duration: %w", err)
		}
		ms := d.Milliseconds()
		return cron.Schedule{Kind: cron.KindEvery, EveryMs: &ms}, nil
	case cronExpr != "":
		return cron.Schedule{Kind: cron.KindCron, Expr: cronExpr}, nil
	default:
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return cron.Schedule{}, fmt.Errorf("invalid --at time, want RFC3339: %w", err)
		}
		ms := t.UnixMilli()
		return cron.Schedule{Kind: cron.KindAt, AtMs: &ms}, nil
	}
}

func cronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withCronStore(func(cfg *config.Config, a *app.App) {
				ok, err := a.CronStore.Remove(args[0])
				if err != nil {
					fatalf("failed to remove job: %v", err)
				}
				if !ok {
					fatalf("no such job: %s", args[0])
				}
				fmt.Printf("removed job %s\n", args[0])
			})
		},
	}
}

func cronEnableCmd() *cobra.Command {
	var disable bool
	cmd := &cobra.Command{
		Use:   "enable ID",
		Short: "Enable (or --disable) a scheduled job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withCronStore(func(cfg *config.Config, a *app.App) {
				ok, err := a.CronStore.SetEnabled(args[0], !disable)
				if err != nil {
					fatalf("failed to update job: %v", err)
				}
				if !ok {
					fatalf("no such job: %s", args[0])
				}
				verb := "enabled"
				if disable {
					verb = "disabled"
				}
				fmt.Printf("%s job %s\n", verb, args[0])
			})
		},
	}
	cmd.Flags().BoolVar(&disable, "disable", false, "disable instead of enable")
	return cmd
}

func cronRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run ID",
		Short: "Fire a job immediately, ignoring its schedule",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withCronStore(func(cfg *config.Config, a *app.App) {
				ok, err := a.Cron.RunNow(context.Background(), args[0])
				if err != nil {
					fatalf("failed to run job: %v", err)
				}
				if !ok {
					fatalf("no such job: %s", args[0])
				}
				fmt.Printf("ran job %s\n", args[0])
			})
		},
	}
}
