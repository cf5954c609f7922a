package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/localmind/aegis/pkg/models"
)

// buildWorkflowCmd builds the "workflow" command group, running an
// ordered sequence of adapter calls through the workflow engine (spec §4,
// component L) against the process's tool adapter registry.
func buildWorkflowCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Run a workflow's steps against the tool adapter registry",
	}
	cmd.AddCommand(buildWorkflowRunCmd(configPath))
	return cmd
}

func buildWorkflowRunCmd(configPath *string) *cobra.Command {
	var (
		name          string
		steps         []string
		continueOnErr bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a workflow's steps in order",
		Long: `Each --step is "adapter:tool" with no parameters. Steps run in the
order given; with --continue-on-error a failing step does not halt the
remaining steps (spec §3 Workflow.steps, §4 component L).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			wfSteps, err := parseWorkflowSteps(steps)
			if err != nil {
				return err
			}
			if len(wfSteps) == 0 {
				return fmt.Errorf("at least one --step is required")
			}

			wf := &models.Workflow{
				ID:            uuid.NewString(),
				Name:          name,
				Steps:         wfSteps,
				Enabled:       true,
				ContinueOnErr: continueOnErr,
			}

			results, err := a.workflows.Run(cmd.Context(), wf)
			if err != nil {
				return err
			}
			for i, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "step %d (%s:%s) error=%t: %s\n", i, r.Step.Adapter, r.Step.Tool, r.IsError, r.Output)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "workflow %q status: %s\n", wf.Name, wf.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "unnamed", "Workflow name")
	cmd.Flags().StringArrayVar(&steps, "step", nil, `A step as "adapter:tool", repeatable`)
	cmd.Flags().BoolVar(&continueOnErr, "continue-on-error", false, "Keep running steps after one fails")
	return cmd
}

func parseWorkflowSteps(raw []string) ([]models.WorkflowStep, error) {
	out := make([]models.WorkflowStep, 0, len(raw))
	for _, s := range raw {
		adapter, tool, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("invalid --step %q, expected \"adapter:tool\"", s)
		}
		out = append(out, models.WorkflowStep{Adapter: adapter, Tool: tool, Params: json.RawMessage("{}")})
	}
	return out, nil
}
