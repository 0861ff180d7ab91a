package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stackforge",
		Short: "StackForge - Remote Deployment Orchestration Engine",
		Long: `StackForge provisions and configures remote compute instances over SSH
from a declarative capability document.

Features:
  - Declarative capability sets mapped to OS-specific packages
  - Idempotent installation with probe-before-install
  - Per-concern configurators for web, database, runtime, cache, containers
  - Append-only remote audit log of every mutating command
  - Post-deployment verification with internal and external checks
  - Local deployment history in SQLite`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "stackforge.yaml", "deployment document path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newProbeCommand())
	rootCmd.AddCommand(newVerifyCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newAuditCommand())

	return rootCmd
}
