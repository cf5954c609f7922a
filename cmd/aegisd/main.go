// Command aegisd is the CLI entry point for the local AI operating system
// core: it wires the credential vault, policy engine, LLM transport, tool
// adapter registry, agent runtime, task scheduler, and cron engine behind
// a thin cobra command tree. Structure follows the teacher's cmd/nexus
// main.go (buildRootCmd composing buildXCmd() subtrees, slog configured
// up front, SilenceUsage on the root command).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd assembles the root command with every subcommand attached.
// Split from main() so tests can exercise it without invoking os.Exit.
func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "aegisd",
		Short: "aegisd - local AI operating system core",
		Long: `aegisd runs the agent runtime, LLM transport, scheduler, cron engine,
and credential vault that make up the core of a local-first AI operating
system. It has no channel adapters of its own; it is the engine other
programs embed or drive over its command surface.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildRunCmd(&configPath),
		buildServeCmd(&configPath),
		buildVaultCmd(&configPath),
		buildPolicyCmd(&configPath),
		buildCronCmd(&configPath),
		buildAuthCmd(&configPath),
		buildWorkflowCmd(&configPath),
		buildTasksCmd(&configPath),
	)
	return rootCmd
}
