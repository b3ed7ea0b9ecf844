package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/milkstrawai/branch-db/internal/logger"
	"github.com/spf13/cobra"
)

var (
	// Version info (set by ldflags)
	version = "dev"

	// Flags
	configPath     string
	debug          bool
	noPrefix       bool
	noColor        bool
	envName        string
	databaseFilter string
	passwordPrompt bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "branch-db",
		Short: "Per-branch PostgreSQL databases for development and test",
		Long: `branch-db gives every git branch its own development and test databases.

A branch database is named after the base database plus the sanitized branch
name (myapp_development + feature/auth = myapp_development_feature_auth). It
is cloned on demand from the parent branch database, or from the main branch
database when the parent has none.

Commands:
  branch-db name [base]         Print the database name for the current branch
  branch-db parent              Print the resolved parent branch
  branch-db prepare             Clone or bootstrap databases that have no schema
  branch-db clone               Recreate branch databases from their source
  branch-db list                List branch databases
  branch-db purge               Drop every branch database except protected ones
  branch-db prune               Drop branch databases whose branch is gone
  branch-db watch               Prepare databases whenever the branch changes`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ./branch-db.yaml or ~/.config/branch-db/branch-db.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noPrefix, "no-prefix", false, "omit the [branch_db] prefix from console output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&envName, "env", envDevelopment, "environment: development or test")
	rootCmd.PersistentFlags().StringVarP(&databaseFilter, "database", "d", "", "restrict to one logical database from the config")
	rootCmd.PersistentFlags().BoolVar(&passwordPrompt, "password-prompt", false, "prompt for passwords that are not otherwise configured")

	// Add subcommands
	rootCmd.AddCommand(
		newNameCmd(),
		newParentCmd(),
		newPrepareCmd(),
		newCloneCmd(),
		newListCmd(),
		newPurgeCmd(),
		newPruneCmd(),
		newWatchCmd(),
		newConfigCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
