package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/localmind/aegis/internal/agentrt"
	"github.com/localmind/aegis/internal/intent"
	"github.com/localmind/aegis/pkg/models"
)

// defaultIntentRules is a small built-in router table for the optional
// fast-path intent parser (spec §4.8). Real deployments supply their own
// rule set; this is enough to exercise the router tier ahead of the LLM
// fallback tier.
var defaultIntentRules = []intent.Rule{
	{Prefix: "remind me", Action: "set_reminder", Confidence: 0.9},
	{Prefix: "schedule", Action: "schedule_job", Confidence: 0.9},
	{Prefix: "list files", Action: "list_files", Confidence: 0.9},
}

// buildRunCmd builds the "run" command: a single ReAct turn sequence
// against the configured default provider, printing the final text. The
// user and assistant turns are persisted to the session store (spec §2
// component O) so a --session can be resumed across invocations.
func buildRunCmd(configPath *string) *cobra.Command {
	var (
		prompt    string
		system    string
		maxTurns  int
		sessionID string
		useIntent bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent runtime once against a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.llm == nil {
				return fmt.Errorf("no default LLM provider configured (set llm.default_provider in %s)", *configPath)
			}
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}

			ctx := cmd.Context()

			if useIntent {
				parser := intent.New(defaultIntentRules, 0.7)
				parser.Client, parser.Model = a.llm, a.cfg.LLM.Providers[a.cfg.LLM.DefaultProvider].DefaultModel
				if result, ok := parser.Parse(ctx, prompt); ok {
					a.logger.Info("intent: fast-path match", "action", result.Action, "source", result.Source, "confidence", result.Confidence)
				} else {
					a.logger.Debug("intent: no fast-path match, routing through ReAct loop")
				}
			}

			if sessionID == "" {
				sessionID = uuid.NewString()
				now := time.Now()
				if err := a.sessions.CreateSession(ctx, &models.Session{
					ID: sessionID, CreatedAt: now, UpdatedAt: now,
				}); err != nil {
					return fmt.Errorf("create session: %w", err)
				}
			}

			userMsg := models.Message{
				ID:        uuid.NewString(),
				SessionID: sessionID,
				Role:      models.RoleUser,
				Content:   prompt,
				CreatedAt: time.Now(),
			}
			if err := a.sessions.AppendMessage(ctx, "main", &userMsg); err != nil {
				return fmt.Errorf("persist user message: %w", err)
			}
			history, err := a.sessions.History(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("load session history: %w", err)
			}

			rc := &agentrt.RunContext{
				Client:   a.llm,
				Adapters: a.adapters,
				Config: agentrt.Config{
					MaxTurns:     maxTurns,
					Model:        a.cfg.LLM.Providers[a.cfg.LLM.DefaultProvider].DefaultModel,
					SystemPrompt: system,
				},
				Messages: history,
			}

			result, err := agentrt.Run(ctx, rc)
			if err != nil {
				return err
			}

			assistantMsg := models.Message{
				ID:        uuid.NewString(),
				SessionID: sessionID,
				Role:      models.RoleAssistant,
				Content:   result.Text,
				CreatedAt: time.Now(),
			}
			if err := a.sessions.AppendMessage(ctx, "main", &assistantMsg); err != nil {
				return fmt.Errorf("persist assistant message: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s (turns used: %d)\n", sessionID, result.TurnsUsed)
			return nil
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "User prompt to run")
	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 10, "Maximum ReAct turns before aborting")
	cmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing session id; a new session is created if omitted")
	cmd.Flags().BoolVar(&useIntent, "use-intent", false, "Try the fast-path intent router before the ReAct loop (spec §4.8)")
	return cmd
}
