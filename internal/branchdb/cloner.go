package branchdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/milkstrawai/branch-db/internal/db"
	"github.com/milkstrawai/branch-db/internal/logger"
)

// lockRetryDelay is how often a blocked clone retries the target lock.
const lockRetryDelay = 250 * time.Millisecond

// Cloner copies the parent (or main) branch database into the branch
// database named by its profile.
type Cloner struct {
	deps    Deps
	profile config.ConnectionProfile

	source string
}

// NewCloner creates a Cloner targeting profile.Database.
func NewCloner(profile config.ConnectionProfile, deps Deps) *Cloner {
	return &Cloner{deps: deps, profile: profile}
}

// TargetDatabase is the database the clone writes to.
func (c *Cloner) TargetDatabase() string {
	return c.profile.Database
}

// BaseName is the target with the current branch suffix removed.
func (c *Cloner) BaseName(ctx context.Context) string {
	return c.deps.Namer.BaseName(ctx, c.TargetDatabase())
}

// SourceDatabase resolves the database to copy from. The parent branch
// database wins when it exists; otherwise the main branch database is used.
// The result is cached for the life of the Cloner.
func (c *Cloner) SourceDatabase(ctx context.Context) (string, error) {
	if c.source != "" {
		return c.source, nil
	}

	base := c.BaseName(ctx)
	parentDB := c.deps.Namer.ParentDatabaseName(ctx, base)
	mainDB := c.deps.Namer.MainDatabaseName(base)

	if parentDB == mainDB {
		c.source = mainDB
		return c.source, nil
	}

	if err := c.deps.Tools.RequireTools("psql", "pg_dump"); err != nil {
		return "", err
	}
	exists, err := c.deps.Tools.DatabaseExists(ctx, c.profile, parentDB)
	if err != nil {
		return "", err
	}

	if exists {
		c.source = parentDB
	} else {
		logger.Debug("Parent database not found, using main", "parent", parentDB, "main", mainDB)
		c.source = mainDB
	}
	return c.source, nil
}

// SourceExists reports whether the resolved source database is present.
func (c *Cloner) SourceExists(ctx context.Context) (bool, error) {
	if err := c.deps.Tools.RequireTools("psql", "pg_dump"); err != nil {
		return false, err
	}
	source, err := c.SourceDatabase(ctx)
	if err != nil {
		return false, err
	}
	return c.deps.Tools.DatabaseExists(ctx, c.profile, source)
}

// Clone recreates the target database and transfers the source into it. Any
// existing target is dropped first, but only once the client tools are known
// to be present. A failed transfer is returned as
// *pgtools.CloneFailedError and leaves the partial target in place.
func (c *Cloner) Clone(ctx context.Context) error {
	source, err := c.SourceDatabase(ctx)
	if err != nil {
		return err
	}
	if err := c.deps.Tools.RequireTools("psql", "pg_dump"); err != nil {
		return err
	}
	target := c.TargetDatabase()

	c.deps.Console.Log("📦 Cloning %s → %s...", source, target)
	logger.Info("Cloning database", "source", source, "target", target)

	fl, err := c.lock(ctx, target)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	if err := c.createOrRecreate(ctx); err != nil {
		return err
	}

	c.deps.Console.Indented("Transferring data...")
	if err := c.deps.Tools.DumpAndRestore(ctx, c.profile, source, c.profile, target); err != nil {
		return err
	}

	c.deps.Console.Success("Database cloned successfully!")
	return nil
}

func (c *Cloner) createOrRecreate(ctx context.Context) error {
	target := c.TargetDatabase()

	outcome, err := c.deps.Admin.CreateDatabase(ctx, c.profile)
	if err != nil {
		return err
	}
	if outcome == db.Created {
		c.deps.Console.Indented("Created database '%s'", target)
		return nil
	}

	c.deps.Console.Indented("Database '%s' already exists. Recreating...", target)
	if err := c.deps.Admin.DropDatabase(ctx, c.profile); err != nil {
		return err
	}
	outcome, err = c.deps.Admin.CreateDatabase(ctx, c.profile)
	if err != nil {
		return err
	}
	if outcome != db.Created {
		return fmt.Errorf("database %s reappeared while recreating it", target)
	}
	return nil
}

// lock takes the host-local advisory lock for target. Caller must Unlock.
func (c *Cloner) lock(ctx context.Context, target string) (*flock.Flock, error) {
	lockDir := c.deps.LockDir
	if lockDir == "" {
		lockDir = os.TempDir()
	}
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	fl := flock.New(filepath.Join(lockDir, fmt.Sprintf("branch-db-%s.lock", target)))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquiring clone lock for %s: %w", target, err)
	}
	if !locked {
		return nil, fmt.Errorf("acquiring clone lock for %s: %w", target, ctx.Err())
	}
	return fl, nil
}
