package pgtools

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/milkstrawai/branch-db/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakePsql = `#!/bin/sh
echo "psql $*" >> "$FAKE_LOG"
for arg in "$@"; do
  case "$arg" in
    -lqt) printf '%s\n' "$FAKE_PG_LIST"; exit "${FAKE_LIST_EXIT:-0}" ;;
    -tAc) printf '%s\n' "$FAKE_PG_COUNT"; exit 0 ;;
  esac
done
cat > "$FAKE_RESTORE_OUT"
exit "${FAKE_RESTORE_EXIT:-0}"
`

const fakePgDump = `#!/bin/sh
echo "pg_dump $*" >> "$FAKE_LOG"
for last in "$@"; do :; done
echo "-- dump of $last"
echo "-- password $PGPASSWORD"
if [ -n "$FAKE_DUMP_EXIT" ]; then
  echo "pg_dump: error: connection failed" >&2
  exit "$FAKE_DUMP_EXIT"
fi
`

const fakeDropdb = `#!/bin/sh
echo "dropdb $*" >> "$FAKE_LOG"
exit "${FAKE_DROP_EXIT:-0}"
`

type fakeTools struct {
	dir     string
	log     string
	restore string
}

// installFakeTools puts shell stand-ins for the PostgreSQL client tools first
// on PATH.
func installFakeTools(t *testing.T) fakeTools {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}

	dir := t.TempDir()
	for name, body := range map[string]string{"psql": fakePsql, "pg_dump": fakePgDump, "dropdb": fakeDropdb} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0755))
	}

	f := fakeTools{
		dir:     dir,
		log:     filepath.Join(dir, "calls.log"),
		restore: filepath.Join(dir, "restore.sql"),
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv("FAKE_LOG", f.log)
	t.Setenv("FAKE_RESTORE_OUT", f.restore)
	return f
}

func (f fakeTools) calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.log)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func testProfile() config.ConnectionProfile {
	return config.ConnectionProfile{
		Name:     "primary",
		Database: "myapp_development_feature_auth",
		Host:     "localhost",
		Port:     5432,
		Username: "postgres",
		Password: "secret",
	}
}

func TestRequireTools(t *testing.T) {
	available := map[string]bool{"psql": true, "pg_dump": true}
	tools := &Tools{lookPath: func(name string) (string, error) {
		if available[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}}

	assert.NoError(t, tools.RequireTools("psql", "pg_dump"))

	err := tools.RequireTools()
	var missing *ToolMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "dropdb", missing.Tool)
	assert.Contains(t, err.Error(), "'dropdb' not found in PATH")

	available["psql"] = false
	err = tools.RequireTools("psql", "dropdb")
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "psql", missing.Tool, "first missing tool is reported")
}

func TestConnectionFlags(t *testing.T) {
	p := testProfile()
	assert.Equal(t, []string{"-h", "localhost", "-p", "5432", "-U", "postgres"}, ConnectionArgs(p))
	assert.Equal(t, "-h localhost -p 5432 -U postgres", ConnectionFlags(p))

	p.Host = "db host; rm -rf /"
	p.Username = "o'brien"
	split, err := shellquote.Split(ConnectionFlags(p))
	require.NoError(t, err)
	assert.Equal(t, ConnectionArgs(p), split, "every value survives a shell round trip")

	assert.Empty(t, ConnectionArgs(config.ConnectionProfile{}))
}

func TestEnvironment(t *testing.T) {
	assert.Equal(t, map[string]string{"PGPASSWORD": "secret"}, Environment(testProfile()))
	assert.Equal(t, map[string]string{"PGPASSWORD": ""}, Environment(config.ConnectionProfile{}))
}

func TestParseDatabaseList(t *testing.T) {
	out := ` myapp_development_main | postgres | UTF8 | libc | en_US.UTF-8 | en_US.UTF-8 |  |  |
 myapp_development_feature | postgres | UTF8 | libc | en_US.UTF-8 | en_US.UTF-8 |  |  |
 template0              | postgres | UTF8 | libc | en_US.UTF-8 | en_US.UTF-8 |  |  | =c/postgres          +
                        |          |      |      |             |             |  |  | postgres=CTc/postgres

`
	assert.Equal(t, []string{"myapp_development_main", "myapp_development_feature", "template0"}, parseDatabaseList(out))
}

func TestListDatabaseNames(t *testing.T) {
	f := installFakeTools(t)
	t.Setenv("FAKE_PG_LIST", " postgres | x\n myapp_development_main | x\n")

	names, err := New().ListDatabaseNames(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres", "myapp_development_main"}, names)
	assert.Equal(t, []string{"psql -h localhost -p 5432 -U postgres -lqt"}, f.calls(t))
}

func TestListDatabaseNames_Failure(t *testing.T) {
	installFakeTools(t)
	t.Setenv("FAKE_LIST_EXIT", "2")

	_, err := New().ListDatabaseNames(context.Background(), testProfile())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list databases")
}

func TestDatabaseExists(t *testing.T) {
	installFakeTools(t)
	t.Setenv("FAKE_PG_LIST", " myapp_development_main | x\n myapp_development_main_old | x\n")
	tools := New()
	ctx := context.Background()

	exists, err := tools.DatabaseExists(ctx, testProfile(), "myapp_development_main")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = tools.DatabaseExists(ctx, testProfile(), "myapp_development")
	require.NoError(t, err)
	assert.False(t, exists, "prefix of an existing name is not a match")
}

func TestActiveConnectionCount(t *testing.T) {
	f := installFakeTools(t)
	tools := New()
	ctx := context.Background()

	t.Setenv("FAKE_PG_COUNT", "2")
	count, err := tools.ActiveConnectionCount(ctx, testProfile(), "myapp_development_old")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	t.Setenv("FAKE_PG_COUNT", "")
	count, err = tools.ActiveConnectionCount(ctx, testProfile(), "myapp_development_old")
	require.NoError(t, err)
	assert.Zero(t, count)

	t.Setenv("FAKE_PG_COUNT", "ERROR")
	_, err = tools.ActiveConnectionCount(ctx, testProfile(), "myapp_development_old")
	assert.Error(t, err)

	calls := f.calls(t)
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[0], "-d postgres -tAc SELECT count(*) FROM pg_stat_activity WHERE datname = 'myapp_development_old'")
}

func TestActiveConnectionQuery_EscapesQuotes(t *testing.T) {
	assert.Equal(t,
		"SELECT count(*) FROM pg_stat_activity WHERE datname = 'it''s'",
		ActiveConnectionQuery("it's"))
}

func TestDropDatabase(t *testing.T) {
	f := installFakeTools(t)
	tools := New()
	ctx := context.Background()

	assert.True(t, tools.DropDatabase(ctx, testProfile(), "myapp_development_old"))
	assert.Equal(t, []string{"dropdb -h localhost -p 5432 -U postgres myapp_development_old"}, f.calls(t))

	t.Setenv("FAKE_DROP_EXIT", "1")
	assert.False(t, tools.DropDatabase(ctx, testProfile(), "myapp_development_old"))
}

func TestDumpAndRestore(t *testing.T) {
	f := installFakeTools(t)

	err := New().DumpAndRestore(context.Background(),
		testProfile(), "myapp_development_main",
		testProfile(), "myapp_development_feature_auth")
	require.NoError(t, err)

	restored, err := os.ReadFile(f.restore)
	require.NoError(t, err)
	assert.Contains(t, string(restored), "-- dump of myapp_development_main")
	assert.Contains(t, string(restored), "-- password secret", "credential travels through the environment")

	calls := f.calls(t)
	assert.Contains(t, calls, "pg_dump -h localhost -p 5432 -U postgres --no-owner --no-acl myapp_development_main")
	assert.Contains(t, calls, "psql -h localhost -p 5432 -U postgres myapp_development_feature_auth")
}

func TestDumpAndRestore_DumpFails(t *testing.T) {
	installFakeTools(t)
	t.Setenv("FAKE_DUMP_EXIT", "1")

	logPath := filepath.Join(t.TempDir(), "branch-db.log")
	prev := slog.Default()
	logger.InitLogger(logger.LevelInfo, logPath)
	t.Cleanup(func() {
		logger.Close()
		logger.Log = nil
		slog.SetDefault(prev)
	})

	err := New().DumpAndRestore(context.Background(),
		testProfile(), "myapp_development_main",
		testProfile(), "myapp_development_feature_auth")

	var cloneErr *CloneFailedError
	require.ErrorAs(t, err, &cloneErr)
	assert.Equal(t, "pg_dump", cloneErr.Stage, "first stage failure fails the pipeline")
	assert.Equal(t, "myapp_development_main", cloneErr.Source)
	assert.Equal(t, "myapp_development_feature_auth", cloneErr.Target)
	assert.Contains(t, cloneErr.Stderr, "connection failed")
	assert.Contains(t, err.Error(), "Clone failed! Check PostgreSQL connection.")

	logger.Close()
	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logged), `"source_connection":"-h localhost -p 5432 -U postgres"`)
	assert.NotContains(t, string(logged), "secret")
}

func TestDumpAndRestore_RestoreFails(t *testing.T) {
	installFakeTools(t)
	t.Setenv("FAKE_RESTORE_EXIT", "3")

	err := New().DumpAndRestore(context.Background(),
		testProfile(), "myapp_development_main",
		testProfile(), "myapp_development_feature_auth")

	var cloneErr *CloneFailedError
	require.ErrorAs(t, err, &cloneErr)
	assert.Equal(t, "psql", cloneErr.Stage)
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 5}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "cdefg", b.String())
}
