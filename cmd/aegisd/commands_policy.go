package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localmind/aegis/pkg/models"
)

// buildPolicyCmd builds the "policy" command group for managing and
// evaluating (provider, action, resource) rules (spec §4.5).
func buildPolicyCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage and evaluate access policies",
	}
	cmd.AddCommand(
		buildPolicyAddCmd(configPath),
		buildPolicyListCmd(configPath),
		buildPolicyEvalCmd(configPath),
	)
	return cmd
}

func buildPolicyAddCmd(configPath *string) *cobra.Command {
	var provider, action, resource, decision string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a policy rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			d, ok := models.ParsePolicyDecision(decision)
			if !ok {
				return fmt.Errorf("invalid decision %q (want allow, confirm, or deny)", decision)
			}
			id, err := a.policy.AddPolicy(models.Policy{
				Provider: provider,
				Action:   action,
				Resource: resource,
				Decision: d,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added policy #%d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", models.Wildcard, "Provider to match")
	cmd.Flags().StringVar(&action, "action", models.Wildcard, "Action to match")
	cmd.Flags().StringVar(&resource, "resource", models.Wildcard, "Resource to match")
	cmd.Flags().StringVar(&decision, "decision", "confirm", "Decision: allow, confirm, or deny")
	return cmd
}

func buildPolicyListCmd(configPath *string) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List policy rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			policies, err := a.policy.ListPolicies(provider)
			if err != nil {
				return err
			}
			for _, p := range policies {
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s %s %s -> %s\n", p.ID, p.Provider, p.Action, p.Resource, p.Decision)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider")
	return cmd
}

func buildPolicyEvalCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval PROVIDER ACTION RESOURCE",
		Short: "Evaluate a (provider, action, resource) triple",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			decision, err := a.policy.Evaluate(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), decision)
			return nil
		},
	}
	return cmd
}
