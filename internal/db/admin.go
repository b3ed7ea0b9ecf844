package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/milkstrawai/branch-db/internal/logger"
)

// CreateOutcome is the result of CreateDatabase.
type CreateOutcome int

const (
	// Created means a new database was created.
	Created CreateOutcome = iota
	// AlreadyExists means the name was taken and nothing changed.
	AlreadyExists
)

func (o CreateOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// ProbeResult is the readiness state of a database.
type ProbeResult int

const (
	// ProbeReady means the database exists and contains the marker table.
	ProbeReady ProbeResult = iota
	// ProbeAbsentDatabase means the server reports no such database.
	ProbeAbsentDatabase
	// ProbeMissingMarker means the database exists but has no schema yet.
	ProbeMissingMarker
)

func (r ProbeResult) String() string {
	switch r {
	case ProbeReady:
		return "ready"
	case ProbeAbsentDatabase:
		return "absent_database"
	case ProbeMissingMarker:
		return "missing_marker"
	default:
		return "unknown"
	}
}

// NeedsSchema reports whether the database must be cloned or bootstrapped.
func (r ProbeResult) NeedsSchema() bool {
	return r != ProbeReady
}

// Admin performs server-level operations over the PostgreSQL protocol.
type Admin struct{}

// NewAdmin creates an Admin.
func NewAdmin() *Admin {
	return &Admin{}
}

// CreateDatabase creates profile.Database.
func (a *Admin) CreateDatabase(ctx context.Context, p config.ConnectionProfile) (CreateOutcome, error) {
	conn, err := Connect(ctx, p.WithDatabase(MaintenanceDatabase))
	if err != nil {
		return Created, unavailable(p, err)
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{p.Database}.Sanitize())
	if IsDuplicateDatabase(err) {
		logger.Debug("Database already exists", "database", p.Database)
		return AlreadyExists, nil
	}
	if err != nil {
		return Created, fmt.Errorf("failed to create database %s: %w", p.Database, err)
	}

	logger.Info("Created database", "database", p.Database)
	return Created, nil
}

// DropDatabase drops profile.Database if it exists.
func (a *Admin) DropDatabase(ctx context.Context, p config.ConnectionProfile) error {
	conn, err := Connect(ctx, p.WithDatabase(MaintenanceDatabase))
	if err != nil {
		return unavailable(p, err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{p.Database}.Sanitize()); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", p.Database, err)
	}

	logger.Info("Dropped database", "database", p.Database)
	return nil
}

// Probe connects to profile.Database and checks for the marker table. Only a
// missing database maps to ProbeAbsentDatabase; any other connection failure
// is returned as *ConnectionUnavailableError.
func (a *Admin) Probe(ctx context.Context, p config.ConnectionProfile, markerTable string) (ProbeResult, error) {
	conn, err := Connect(ctx, p)
	if err != nil {
		if IsDatabaseAbsent(err) {
			logger.Debug("Database does not exist", "database", p.Database)
			return ProbeAbsentDatabase, nil
		}
		logger.Error("Failed to connect for readiness probe", "database", p.Database, "error", err)
		return ProbeReady, unavailable(p, err)
	}
	defer conn.Close(ctx)

	var exists bool
	if err := conn.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", markerTable).Scan(&exists); err != nil {
		return ProbeReady, fmt.Errorf("failed to check for table %s in %s: %w", markerTable, p.Database, err)
	}

	if !exists {
		return ProbeMissingMarker, nil
	}
	return ProbeReady, nil
}
