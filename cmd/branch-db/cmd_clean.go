package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/milkstrawai/branch-db/internal/branchdb"
	"github.com/milkstrawai/branch-db/internal/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// listing is the structured form of `branch-db list`.
type listing struct {
	Name      string   `json:"name" yaml:"name"`
	Current   string   `json:"current" yaml:"current"`
	Protected []string `json:"protected" yaml:"protected"`
	Databases []string `json:"databases" yaml:"databases"`
}

// newListCmd creates the list subcommand
func newListCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List branch databases",
		Long: `List the development and test branch databases derived from each configured
base name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}

			switch output {
			case "text":
				return forEachCleaner(cmd, a, func(c *branchdb.Cleaner) error {
					_, err := c.ListBranchDatabases(cmd.Context())
					return err
				})
			case "json", "yaml":
			default:
				return fmt.Errorf("--output must be text, json or yaml, got %s", output)
			}

			// Structured output replaces the console lines.
			deps := a.deps()
			deps.Console = logger.NewConsole(io.Discard, false)
			profiles, err := a.profiles(cmd.Context(), envDevelopment)
			if err != nil {
				return err
			}

			listings := make([]listing, 0, len(profiles))
			for _, p := range profiles {
				c := branchdb.NewCleaner(p, deps, a.gateway, cmd.InOrStdin())
				dbs, err := c.ListBranchDatabases(cmd.Context())
				if err != nil {
					return err
				}
				if dbs == nil {
					dbs = []string{}
				}
				listings = append(listings, listing{
					Name:      p.Name,
					Current:   p.Database,
					Protected: c.ProtectedDatabases(cmd.Context()),
					Databases: dbs,
				})
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(listings)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(listings); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

// newPurgeCmd creates the purge subcommand
func newPurgeCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop every branch database except the protected ones",
		Long: `Drop all branch databases except the current branch databases and the main
branch databases. Databases with active connections are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			return forEachCleaner(cmd, a, func(c *branchdb.Cleaner) error {
				return c.Purge(cmd.Context(), !yes)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// newPruneCmd creates the prune subcommand
func newPruneCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop branch databases whose git branch no longer exists",
		Long: `Drop branch databases that no local git branch maps to. The current branch
databases and the main branch databases are always kept, as are databases
with active connections.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			return forEachCleaner(cmd, a, func(c *branchdb.Cleaner) error {
				return c.Prune(cmd.Context(), !yes)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// forEachCleaner runs fn with a Cleaner for every selected database. Cleaners
// always start from the development name; test databases are derived from it.
func forEachCleaner(cmd *cobra.Command, a *app, fn func(*branchdb.Cleaner) error) error {
	profiles, err := a.profiles(cmd.Context(), envDevelopment)
	if err != nil {
		return err
	}
	// One reader for every prompt, so buffered answers are not lost.
	input := bufio.NewReader(cmd.InOrStdin())
	for _, p := range profiles {
		if err := fn(branchdb.NewCleaner(p, a.deps(), a.gateway, input)); err != nil {
			return err
		}
	}
	return nil
}
