package branchdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/milkstrawai/branch-db/internal/db"
	"github.com/milkstrawai/branch-db/internal/logger"
	"github.com/pressly/goose/v3"
)

// Bootstrapper loads a schema into a database that could not be cloned.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, profile config.ConnectionProfile, result db.ProbeResult) error
}

// NoticeBootstrapper leaves schema setup to the application and tells the
// operator so.
type NoticeBootstrapper struct {
	Console *logger.Console
}

// Bootstrap prints the next step for the operator.
func (b NoticeBootstrapper) Bootstrap(_ context.Context, profile config.ConnectionProfile, result db.ProbeResult) error {
	logger.Info("Schema bootstrap deferred", "database", profile.Database, "probe", result)
	if result == db.ProbeAbsentDatabase {
		b.Console.Indented("Create '%s' and load its schema with your migration tool.", profile.Database)
		return nil
	}
	b.Console.Indented("Load the schema of '%s' with your migration tool.", profile.Database)
	return nil
}

// MigrationBootstrapper creates the database if needed and applies goose
// migrations from Dir. The marker table doubles as goose's version table, so
// a bootstrapped database probes as ready afterwards.
type MigrationBootstrapper struct {
	Admin       Admin
	Console     *logger.Console
	Dir         string
	MarkerTable string
}

// Bootstrap runs every pending migration against profile.Database.
func (b MigrationBootstrapper) Bootstrap(ctx context.Context, profile config.ConnectionProfile, result db.ProbeResult) error {
	if result == db.ProbeAbsentDatabase {
		outcome, err := b.Admin.CreateDatabase(ctx, profile)
		if err != nil {
			return err
		}
		if outcome == db.Created {
			b.Console.Indented("Created database '%s'", profile.Database)
		}
	}

	markerTable := b.MarkerTable
	if markerTable == "" {
		markerTable = DefaultMarkerTable
	}

	sqlDB, err := sql.Open("pgx", db.ConnString(profile))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", profile.Database, err)
	}
	defer sqlDB.Close()

	goose.SetLogger(newGooseLogger(profile.Database))
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	goose.SetTableName(markerTable)

	b.Console.Indented("Applying migrations from %s...", b.Dir)
	if err := goose.UpContext(ctx, sqlDB, b.Dir); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", profile.Database, err)
	}

	b.Console.Success("Database '%s' bootstrapped.", profile.Database)
	return nil
}

// gooseLogger adapts the goose logger interface to the log file.
type gooseLogger struct {
	log *slog.Logger
}

func newGooseLogger(database string) gooseLogger {
	return gooseLogger{log: logger.With("component", "goose", "database", database)}
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf does not exit; goose returns the error to the caller as well.
func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
