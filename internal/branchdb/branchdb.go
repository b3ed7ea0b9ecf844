// Package branchdb implements the branch database workflows: cloning a
// branch database from its parent or main database, preparing databases on
// demand, and cleaning up databases whose branches are gone.
package branchdb

import (
	"context"

	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/milkstrawai/branch-db/internal/db"
	"github.com/milkstrawai/branch-db/internal/logger"
	"github.com/milkstrawai/branch-db/internal/naming"
)

// Tools is the part of pgtools.Tools the workflows depend on.
type Tools interface {
	RequireTools(names ...string) error
	ListDatabaseNames(ctx context.Context, p config.ConnectionProfile) ([]string, error)
	DatabaseExists(ctx context.Context, p config.ConnectionProfile, name string) (bool, error)
	ActiveConnectionCount(ctx context.Context, p config.ConnectionProfile, name string) (int, error)
	DropDatabase(ctx context.Context, p config.ConnectionProfile, name string) bool
	DumpAndRestore(ctx context.Context, src config.ConnectionProfile, srcName string, dst config.ConnectionProfile, dstName string) error
}

// Admin is the part of db.Admin the workflows depend on.
type Admin interface {
	CreateDatabase(ctx context.Context, p config.ConnectionProfile) (db.CreateOutcome, error)
	DropDatabase(ctx context.Context, p config.ConnectionProfile) error
	Probe(ctx context.Context, p config.ConnectionProfile, markerTable string) (db.ProbeResult, error)
}

// BranchLister lists local branches.
type BranchLister interface {
	Branches(ctx context.Context) []string
}

// Deps are the collaborators shared by every workflow.
type Deps struct {
	Namer   *naming.Namer
	Tools   Tools
	Admin   Admin
	Console *logger.Console
	// LockDir holds the per-database clone locks. Empty means os.TempDir().
	LockDir string
}
