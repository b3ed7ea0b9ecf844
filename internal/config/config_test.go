package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "branch-db.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, "main", s.MainBranch)
	assert.Equal(t, 33, s.MaxBranchLength)
	assert.Equal(t, "_development", s.DevelopmentSuffix)
	assert.Equal(t, "_test", s.TestSuffix)
	assert.NoError(t, s.Validate())
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
branch_db:
  main_branch: master
  max_branch_length: 20
databases:
  primary:
    database: myapp_development
    host: db.local
    port: 5433
    username: app
  cache:
    database: myapp_cache_development
log:
  level: debug
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "master", cfg.Settings.MainBranch)
	assert.Equal(t, 20, cfg.Settings.MaxBranchLength)
	assert.Equal(t, "_development", cfg.Settings.DevelopmentSuffix, "unset keys keep defaults")
	assert.Equal(t, "schema_migrations", cfg.MarkerTable)
	assert.Equal(t, []string{"primary", "cache"}, cfg.DatabaseNames())

	primary := cfg.Databases["primary"]
	assert.Equal(t, "myapp_development", primary.Database)
	assert.Equal(t, 5433, primary.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFromPath_EnvOverride(t *testing.T) {
	path := writeConfig(t, "branch_db:\n  main_branch: main\n")
	t.Setenv("BRANCH_DB_BRANCH_DB_MAIN_BRANCH", "trunk")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "trunk", cfg.Settings.MainBranch)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "negative max length",
			body: "branch_db:\n  max_branch_length: -1\n",
			want: "max_branch_length must be >= 0",
		},
		{
			name: "database without name",
			body: "databases:\n  primary:\n    host: localhost\n",
			want: "databases.primary.database cannot be empty",
		},
		{
			name: "port out of range",
			body: "databases:\n  primary:\n    database: app\n    port: 70000\n",
			want: "port must be between 1 and 65535",
		},
		{
			name: "unknown sslmode",
			body: "databases:\n  primary:\n    database: app\n    sslmode: sometimes\n",
			want: "sslmode must be one of",
		},
		{
			name: "unknown log level",
			body: "log:\n  level: loud\n",
			want: "log.level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromPath(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDatabaseConfig_Profile(t *testing.T) {
	t.Setenv("USER", "alice")

	p := DatabaseConfig{Database: "myapp_development", Password: "secret"}.Profile("primary", "myapp_development_feature")
	assert.Equal(t, "localhost", p.Host)
	assert.Equal(t, 5432, p.Port)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "prefer", p.SSLMode)
	assert.Equal(t, "secret", p.Password)
	assert.Equal(t, "myapp_development_feature", p.Database)
	assert.Empty(t, p.Label())

	other := p.WithDatabase("other")
	assert.Equal(t, "other", other.Database)
	assert.Equal(t, "myapp_development_feature", p.Database, "WithDatabase must not mutate the receiver")

	p.Name = "cache"
	assert.Equal(t, "cache", p.Label())
}
