package main

import (
	"github.com/milkstrawai/branch-db/internal/branchdb"
	"github.com/spf13/cobra"
)

// newPrepareCmd creates the prepare subcommand
func newPrepareCmd() *cobra.Command {
	var createOnly bool

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Clone or bootstrap branch databases that have no schema",
		Long: `Check every configured database for the current branch. A database that
exists and contains the marker table is left alone. Otherwise it is cloned
from the parent branch database (or the main branch database), or handed to
the schema bootstrap when there is nothing to clone from.

With --create-only the databases are only created when missing, which is
what test databases need before the test suite loads its schema.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			profiles, err := a.profiles(cmd.Context(), envName)
			if err != nil {
				return err
			}

			preparer := a.preparer()
			for _, p := range profiles {
				if createOnly {
					err = preparer.EnsureExists(cmd.Context(), p)
				} else {
					err = preparer.Prepare(cmd.Context(), p)
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&createOnly, "create-only", false, "only create missing databases")
	return cmd
}

// newCloneCmd creates the clone subcommand
func newCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone",
		Short: "Recreate branch databases from their source",
		Long: `Drop and recreate the branch database for every configured database, then
copy the parent branch database into it (or the main branch database when the
parent has none). Existing data in the branch database is lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			profiles, err := a.profiles(cmd.Context(), envName)
			if err != nil {
				return err
			}

			for _, p := range profiles {
				if err := branchdb.NewCloner(p, a.deps()).Clone(cmd.Context()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
