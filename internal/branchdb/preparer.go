package branchdb

import (
	"context"

	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/milkstrawai/branch-db/internal/db"
	"github.com/milkstrawai/branch-db/internal/logger"
)

// DefaultMarkerTable marks a database whose schema has been loaded.
const DefaultMarkerTable = "schema_migrations"

// Preparer makes sure a branch database exists with a schema, cloning it
// when possible and deferring to the bootstrapper otherwise.
type Preparer struct {
	deps        Deps
	markerTable string
	bootstrap   Bootstrapper
}

// NewPreparer creates a Preparer. An empty markerTable means
// DefaultMarkerTable.
func NewPreparer(deps Deps, markerTable string, bootstrap Bootstrapper) *Preparer {
	if markerTable == "" {
		markerTable = DefaultMarkerTable
	}
	return &Preparer{deps: deps, markerTable: markerTable, bootstrap: bootstrap}
}

// Prepare probes profile.Database and clones or bootstraps it when it has no
// schema. A server that cannot be reached is returned as
// *db.ConnectionUnavailableError.
func (p *Preparer) Prepare(ctx context.Context, profile config.ConnectionProfile) error {
	p.deps.Console.Log("📦 Checking database%s...", preparerLabel(profile))

	result, err := p.deps.Admin.Probe(ctx, profile, p.markerTable)
	if err != nil {
		return err
	}
	logger.Debug("Probed database", "database", profile.Database, "result", result)

	if !result.NeedsSchema() {
		p.deps.Console.Success("Database '%s' ready.", profile.Database)
		return nil
	}

	cloner := NewCloner(profile, p.deps)
	source, err := cloner.SourceDatabase(ctx)
	if err != nil {
		return err
	}

	if source == cloner.TargetDatabase() {
		p.deps.Console.Indented("On main branch. Deferring to schema bootstrap...")
		return p.bootstrap.Bootstrap(ctx, profile, result)
	}

	exists, err := cloner.SourceExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		p.deps.Console.Indented("Source database not found. Deferring to schema bootstrap...")
		return p.bootstrap.Bootstrap(ctx, profile, result)
	}

	return cloner.Clone(ctx)
}

// EnsureExists creates profile.Database when it is missing and leaves an
// existing database untouched.
func (p *Preparer) EnsureExists(ctx context.Context, profile config.ConnectionProfile) error {
	outcome, err := p.deps.Admin.CreateDatabase(ctx, profile)
	if err != nil {
		return err
	}

	if outcome == db.Created {
		p.deps.Console.Success("Created database '%s'", profile.Database)
	} else {
		p.deps.Console.Log("Database '%s' already exists.", profile.Database)
	}
	return nil
}

func preparerLabel(profile config.ConnectionProfile) string {
	if name := profile.Label(); name != "" {
		return " (" + name + ")"
	}
	return ""
}
