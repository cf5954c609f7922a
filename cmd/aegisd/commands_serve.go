package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/localmind/aegis/internal/cron"
	"github.com/localmind/aegis/internal/scheduler"
	"github.com/localmind/aegis/pkg/models"
)

// buildServeCmd builds the "serve" command: runs the priority-lane
// scheduler and the cron engine together, submitting each cron fire as a
// Normal-priority scheduler task, until interrupted. This is the daemon
// entry point; "run" above is the one-shot equivalent for a single agent
// turn.
func buildServeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and cron engine until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched := scheduler.New(scheduler.WithLogger(a.logger))
			sched.Start(ctx)
			defer sched.Shutdown()

			engine, err := buildCronEngine(a)
			if err != nil {
				return err
			}
			events := make(chan cron.Event, 16)
			engine.Start(events)
			defer engine.Stop()

			for {
				select {
				case ev := <-events:
					command := ev.Command
					if _, err := sched.Submit(ev.JobName, models.PriorityNormal, func(ctx context.Context) error {
						a.logger.Info("cron: executing job", "job_id", ev.JobID, "command", command)
						return nil
					}); err != nil {
						a.logger.Warn("cron: failed to submit scheduler task", "job_id", ev.JobID, "error", err)
					}
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	return cmd
}
