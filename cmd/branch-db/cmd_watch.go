package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/milkstrawai/branch-db/internal/db"
	"github.com/milkstrawai/branch-db/internal/git"
	"github.com/milkstrawai/branch-db/internal/logger"
	"github.com/spf13/cobra"
)

// newWatchCmd creates the watch subcommand
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Prepare branch databases whenever the checked out branch changes",
		Long: `Watch the repository for branch switches. After each switch the parent
branch is detected again and every configured database is prepared for the
new branch. Connection failures are reported and watching continues.

Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			gitDir := a.gateway.GitDir(ctx)
			if gitDir == "" {
				return fmt.Errorf("not inside a git repository")
			}

			sw := &branchSwitcher{app: a, current: a.gateway.CurrentBranch(ctx)}
			watcher, err := git.NewHeadWatcher(gitDir, func() { sw.onHeadChange(ctx) })
			if err != nil {
				return fmt.Errorf("watching %s: %w", gitDir, err)
			}
			defer watcher.Stop()

			a.console.Log("Watching branch %s for changes...", sw.current)
			watcher.Start(ctx)
			return nil
		},
	}
}

// branchSwitcher prepares databases when HEAD moves to another branch.
type branchSwitcher struct {
	app     *app
	current string
}

func (s *branchSwitcher) onHeadChange(ctx context.Context) {
	branch := s.app.gateway.CurrentBranch(ctx)
	if branch == "" || branch == s.current {
		return
	}

	logger.Info("Branch changed", "from", s.current, "to", branch)
	s.current = branch
	s.app.gateway.InvalidateParentCache()
	s.prepareAll(ctx)
}

func (s *branchSwitcher) prepareAll(ctx context.Context) {
	profiles, err := s.app.profiles(ctx, envName)
	if err != nil {
		s.app.console.Failure("%v", err)
		return
	}

	preparer := s.app.preparer()
	for _, p := range profiles {
		err := preparer.Prepare(ctx, p)
		if err == nil {
			continue
		}

		var unavailable *db.ConnectionUnavailableError
		if errors.As(err, &unavailable) {
			logger.Error("Could not connect to Postgres", "database", p.Database, "error", err)
			s.app.console.Failure("Could not connect to Postgres: %v", unavailable.Err)
			return
		}
		logger.Error("Prepare failed", "database", p.Database, "error", err)
		s.app.console.Failure("%v", err)
	}
}
