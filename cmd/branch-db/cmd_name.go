package main

import (
	"fmt"

	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/milkstrawai/branch-db/internal/git"
	"github.com/milkstrawai/branch-db/internal/naming"
	"github.com/spf13/cobra"
)

// newNameCmd creates the name subcommand
func newNameCmd() *cobra.Command {
	var mainName bool
	var suffixOnly bool

	cmd := &cobra.Command{
		Use:   "name [base]",
		Short: "Print the database name for the current branch",
		Long: `Print the branch-scoped database name. With a base argument the name is
derived from it; otherwise one line is printed per configured database.

Intended for application config templating, for example:
  export DATABASE_NAME=$(branch-db name myapp_development)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				// Only the naming settings are needed.
				cfg, err := loadSettings()
				if err != nil {
					return err
				}
				gateway := git.NewGateway(git.ExecRunner{}, cfg.Settings.MainBranch)
				namer := naming.NewNamer(cfg.Settings, gateway)

				switch {
				case suffixOnly:
					fmt.Fprintln(out, namer.BranchSuffix(ctx))
				case mainName:
					fmt.Fprintln(out, namer.MainDatabaseName(args[0]))
				default:
					fmt.Fprintln(out, namer.DatabaseName(ctx, args[0]))
				}
				return nil
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			if suffixOnly {
				fmt.Fprintln(out, a.namer.BranchSuffix(ctx))
				return nil
			}

			names, err := a.databaseNames()
			if err != nil {
				return err
			}
			for _, name := range names {
				base := a.baseName(name, envName)
				if mainName {
					fmt.Fprintln(out, a.namer.MainDatabaseName(base))
				} else {
					fmt.Fprintln(out, a.namer.DatabaseName(ctx, base))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&mainName, "main", false, "print the main branch database name instead")
	cmd.Flags().BoolVar(&suffixOnly, "suffix", false, "print only the branch suffix")
	return cmd
}

// newParentCmd creates the parent subcommand
func newParentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parent",
		Short: "Print the branch the current branch was created from",
		Long: `Print the parent branch used to pick the clone source. The ` + git.ParentEnvVar + `
environment variable overrides detection; otherwise the checkout history is
searched, falling back to the main branch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			gateway := git.NewGateway(git.ExecRunner{}, cfg.Settings.MainBranch)
			fmt.Fprintln(cmd.OutOrStdout(), gateway.ParentBranch(cmd.Context()))
			return nil
		},
	}
}

// loadSettings loads configuration without initializing the log file, for
// commands whose stdout is consumed by other programs.
func loadSettings() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}
