// Package pgtools drives the PostgreSQL client tools (psql, pg_dump, dropdb).
//
// Tools are always invoked with an explicit argument vector; no shell is
// involved, so database names and credentials never need shell escaping.
// ConnectionFlags renders the connection part of that vector for failure
// logs.
package pgtools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/milkstrawai/branch-db/internal/logger"
)

// DefaultTools is the baseline checked when RequireTools gets no names.
var DefaultTools = []string{"psql", "pg_dump", "dropdb"}

// MaintenanceDatabase is the database psql connects to for server-wide queries.
const MaintenanceDatabase = "postgres"

// stderrLimit bounds how much tool stderr is kept for error messages.
const stderrLimit = 4096

// Tools wraps the external PostgreSQL client binaries.
type Tools struct {
	lookPath func(string) (string, error)
}

// New returns a Tools that resolves binaries on PATH.
func New() *Tools {
	return &Tools{lookPath: exec.LookPath}
}

// RequireTools fails with *ToolMissingError for the first tool that is not on
// PATH. With no names it checks DefaultTools.
func (t *Tools) RequireTools(names ...string) error {
	if len(names) == 0 {
		names = DefaultTools
	}
	for _, name := range names {
		if _, err := t.lookPath(name); err != nil {
			logger.Error("PostgreSQL tool not found", "tool", name)
			return &ToolMissingError{Tool: name}
		}
	}
	return nil
}

// ConnectionArgs returns the host, port and user flags for profile. Empty
// values are left to libpq defaults.
func ConnectionArgs(p config.ConnectionProfile) []string {
	var args []string
	if p.Host != "" {
		args = append(args, "-h", p.Host)
	}
	if p.Port != 0 {
		args = append(args, "-p", strconv.Itoa(p.Port))
	}
	if p.Username != "" {
		args = append(args, "-U", p.Username)
	}
	return args
}

// ConnectionFlags renders ConnectionArgs as a shell-safe string.
func ConnectionFlags(p config.ConnectionProfile) string {
	return shellquote.Join(ConnectionArgs(p)...)
}

// Environment returns the credential environment for profile.
func Environment(p config.ConnectionProfile) map[string]string {
	return map[string]string{"PGPASSWORD": p.Password}
}

// ListDatabasesArgs is the psql invocation that lists every database.
func ListDatabasesArgs(p config.ConnectionProfile) []string {
	return append(ConnectionArgs(p), "-lqt")
}

// ListDatabaseNames returns the names of all databases on the server.
func (t *Tools) ListDatabaseNames(ctx context.Context, p config.ConnectionProfile) ([]string, error) {
	out, err := t.output(ctx, p, "psql", ListDatabasesArgs(p)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases on %s:%d: %w", p.Host, p.Port, err)
	}
	return parseDatabaseList(out), nil
}

// parseDatabaseList extracts the name column from `psql -lqt` output.
func parseDatabaseList(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		name, _, _ := strings.Cut(line, "|")
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// DatabaseExists reports whether name appears verbatim in the server's list.
func (t *Tools) DatabaseExists(ctx context.Context, p config.ConnectionProfile, name string) (bool, error) {
	names, err := t.ListDatabaseNames(ctx, p)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ActiveConnectionQuery counts the sessions bound to name.
func ActiveConnectionQuery(name string) string {
	return "SELECT count(*) FROM pg_stat_activity WHERE datname = '" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ActiveConnectionCount returns the number of sessions connected to name.
func (t *Tools) ActiveConnectionCount(ctx context.Context, p config.ConnectionProfile, name string) (int, error) {
	args := append(ConnectionArgs(p), "-d", MaintenanceDatabase, "-tAc", ActiveConnectionQuery(name))
	out, err := t.output(ctx, p, "psql", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count connections to %s: %w", name, err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return 0, nil
	}
	count, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("unexpected connection count %q for %s", out, name)
	}
	return count, nil
}

// DropDatabase drops name with dropdb and reports whether it succeeded.
func (t *Tools) DropDatabase(ctx context.Context, p config.ConnectionProfile, name string) bool {
	cmd := t.command(ctx, p, "dropdb", append(ConnectionArgs(p), name)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logger.Warn("dropdb failed", "database", name, "error", err, "stderr", strings.TrimSpace(stderr.String()))
		return false
	}
	logger.Info("Dropped database", "database", name)
	return true
}

// DumpAndRestore pipes a schema and data dump of srcName into dstName. The
// transfer fails if either side of the pipe fails; tool output is captured
// rather than shown.
func (t *Tools) DumpAndRestore(ctx context.Context, src config.ConnectionProfile, srcName string, dst config.ConnectionProfile, dstName string) error {
	dump := t.command(ctx, src, "pg_dump", append(ConnectionArgs(src), "--no-owner", "--no-acl", srcName)...)
	restore := t.command(ctx, dst, "psql", append(ConnectionArgs(dst), dstName)...)

	fail := func(stage, stderr string, err error) error {
		logger.Error("Clone transfer failed",
			"source", srcName,
			"target", dstName,
			"stage", stage,
			"source_connection", ConnectionFlags(src),
			"target_connection", ConnectionFlags(dst),
			"error", err,
			"stderr", stderr,
		)
		return &CloneFailedError{Source: srcName, Target: dstName, Stage: stage, Stderr: stderr, Err: err}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return fail("start", "", err)
	}

	dumpErr := &tailBuffer{max: stderrLimit}
	restoreErr := &tailBuffer{max: stderrLimit}
	dump.Stdout = pw
	dump.Stderr = dumpErr
	restore.Stdin = pr
	restore.Stderr = restoreErr

	logger.Debug("Starting transfer",
		"dump", shellquote.Join(dump.Args...),
		"restore", shellquote.Join(restore.Args...),
	)

	if err := restore.Start(); err != nil {
		pr.Close()
		pw.Close()
		return fail("start", "", err)
	}
	if err := dump.Start(); err != nil {
		pr.Close()
		pw.Close()
		_ = restore.Wait()
		return fail("start", "", err)
	}

	// The children hold their own copies of the pipe ends.
	pr.Close()
	pw.Close()

	dumpWaitErr := dump.Wait()
	restoreWaitErr := restore.Wait()

	switch {
	case restoreWaitErr != nil:
		return fail("psql", restoreErr.String(), restoreWaitErr)
	case dumpWaitErr != nil:
		return fail("pg_dump", dumpErr.String(), dumpWaitErr)
	}

	logger.Info("Transfer complete", "source", srcName, "target", dstName)
	return nil
}

func (t *Tools) command(ctx context.Context, p config.ConnectionProfile, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	for k, v := range Environment(p) {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return cmd
}

func (t *Tools) output(ctx context.Context, p config.ConnectionProfile, name string, args ...string) (string, error) {
	cmd := t.command(ctx, p, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w (stderr: %s)", name, err, msg)
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return stdout.String(), nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(string(b.buf))
}
