package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/milkstrawai/branch-db/internal/logger"
)

// PostgreSQL error codes
const (
	// invalidCatalogNameCode is raised when connecting to a database that does not exist
	invalidCatalogNameCode = "3D000"

	// duplicateDatabaseCode is raised by CREATE DATABASE for an existing name
	duplicateDatabaseCode = "42P04"
)

// MaintenanceDatabase is used for CREATE/DROP DATABASE.
const MaintenanceDatabase = "postgres"

// ConnectionUnavailableError reports a server that could not be reached for a
// reason other than the target database being absent.
type ConnectionUnavailableError struct {
	Host     string
	Port     int
	Database string
	Err      error
}

func (e *ConnectionUnavailableError) Error() string {
	return fmt.Sprintf("could not connect to PostgreSQL on %s:%d (database %s): %v", e.Host, e.Port, e.Database, e.Err)
}

func (e *ConnectionUnavailableError) Unwrap() error {
	return e.Err
}

// ConnString builds a keyword/value DSN for profile. Host may be a Unix
// socket directory.
func ConnString(p config.ConnectionProfile) string {
	pairs := [][2]string{
		{"host", p.Host},
		{"port", portString(p.Port)},
		{"dbname", p.Database},
		{"user", p.Username},
		{"password", p.Password},
		{"sslmode", p.SSLMode},
		{"application_name", "branch-db"},
	}

	var b strings.Builder
	for _, kv := range pairs {
		if kv[1] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(kv[0])
		b.WriteString("=")
		b.WriteString(quoteValue(kv[1]))
	}
	return b.String()
}

func portString(port int) string {
	if port == 0 {
		return ""
	}
	return strconv.Itoa(port)
}

// quoteValue single-quotes v, escaping backslashes and quotes.
func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Connect opens a single connection for profile.
func Connect(ctx context.Context, p config.ConnectionProfile) (*pgx.Conn, error) {
	logger.Debug("Connecting to database",
		"host", p.Host,
		"port", p.Port,
		"database", p.Database,
		"user", p.Username,
	)

	connConfig, err := pgx.ParseConfig(ConnString(p))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// IsDatabaseAbsent reports whether err means the requested database does not exist.
func IsDatabaseAbsent(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidCatalogNameCode
}

// IsDuplicateDatabase reports whether err is CREATE DATABASE on an existing name.
func IsDuplicateDatabase(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == duplicateDatabaseCode
}

func unavailable(p config.ConnectionProfile, err error) error {
	return &ConnectionUnavailableError{Host: p.Host, Port: p.Port, Database: p.Database, Err: err}
}
