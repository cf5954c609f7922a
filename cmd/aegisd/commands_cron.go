package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/localmind/aegis/internal/cron"
)

// buildCronCmd builds the "cron" command group: listing the
// configuration-defined jobs and running the firing loop in the
// foreground (spec §4.4).
func buildCronCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Inspect and run cron-triggered jobs",
	}
	cmd.AddCommand(buildCronListCmd(configPath), buildCronRunCmd(configPath))
	return cmd
}

func buildCronListCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured cron jobs and their next fire time",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			engine, err := buildCronEngine(a)
			if err != nil {
				return err
			}
			for _, job := range engine.ListJobs() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %q next=%s enabled=%t\n", job.ID, job.Name, job.NextRun, job.Enabled)
			}
			return nil
		},
	}
	return cmd
}

func buildCronRunCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cron firing loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			engine, err := buildCronEngine(a)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			events := make(chan cron.Event, 16)
			engine.Start(events)
			defer engine.Stop()

			for {
				select {
				case ev := <-events:
					a.logger.Info("cron: job fired", "job_id", ev.JobID, "job_name", ev.JobName, "command", ev.Command)
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
	return cmd
}

func buildCronEngine(a *app) (*cron.Engine, error) {
	engine := cron.NewEngine()
	for _, j := range a.cfg.Cron.Jobs {
		if err := engine.AddJob(j.ID, j.Name, j.Expression, j.Command); err != nil {
			return nil, fmt.Errorf("add cron job %q: %w", j.ID, err)
		}
		if !j.Enabled {
			_ = engine.DisableJob(j.ID)
		}
	}
	return engine, nil
}
