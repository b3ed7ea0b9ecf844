package main

import (
	"context"
	"fmt"
	"os"

	"github.com/milkstrawai/branch-db/internal/branchdb"
	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/milkstrawai/branch-db/internal/db"
	"github.com/milkstrawai/branch-db/internal/git"
	"github.com/milkstrawai/branch-db/internal/logger"
	"github.com/milkstrawai/branch-db/internal/naming"
	"github.com/milkstrawai/branch-db/internal/pgtools"
	"github.com/spf13/cobra"
)

const (
	envDevelopment = "development"
	envTest        = "test"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg       *config.Config
	gateway   *git.Gateway
	namer     *naming.Namer
	tools     *pgtools.Tools
	admin     *db.Admin
	console   *logger.Console
	passwords db.PasswordSource

	// resolved passwords by logical name, so watch prompts once
	resolved map[string]string
}

// loadApp loads configuration, initializes logging and wires the gateways.
func loadApp(cmd *cobra.Command) (*app, error) {
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logLevel := logger.ParseLevel(cfg.Log.Level)
	if debug || cfg.Debug {
		logLevel = logger.LevelDebug
	}
	logger.InitLogger(logLevel, cfg.Log.File)
	if debug {
		fmt.Fprintf(os.Stderr, "Debug mode: Logs written to %s\n", logger.LogPath)
	}
	logger.Debug("branch-db starting", "version", version, "command", cmd.CommandPath(), "config", configPath)

	if envName != envDevelopment && envName != envTest {
		return nil, fmt.Errorf("--env must be %s or %s, got %s", envDevelopment, envTest, envName)
	}

	gateway := git.NewGateway(git.ExecRunner{}, cfg.Settings.MainBranch)

	return &app{
		cfg:      cfg,
		gateway:  gateway,
		namer:    naming.NewNamer(cfg.Settings, gateway),
		tools:    pgtools.New(),
		admin:    db.NewAdmin(),
		console:  logger.NewConsole(cmd.OutOrStdout(), !noPrefix),
		resolved: map[string]string{},
		passwords: db.PasswordSource{
			Prompt: passwordPrompt,
			Stderr: cmd.ErrOrStderr(),
		},
	}, nil
}

func (a *app) deps() branchdb.Deps {
	return branchdb.Deps{
		Namer:   a.namer,
		Tools:   a.tools,
		Admin:   a.admin,
		Console: a.console,
		LockDir: a.cfg.LockDir,
	}
}

func (a *app) bootstrapper() branchdb.Bootstrapper {
	if a.cfg.MigrationsDir != "" {
		return branchdb.MigrationBootstrapper{
			Admin:       a.admin,
			Console:     a.console,
			Dir:         a.cfg.MigrationsDir,
			MarkerTable: a.cfg.MarkerTable,
		}
	}
	return branchdb.NoticeBootstrapper{Console: a.console}
}

func (a *app) preparer() *branchdb.Preparer {
	return branchdb.NewPreparer(a.deps(), a.cfg.MarkerTable, a.bootstrapper())
}

// databaseNames returns the logical databases selected by --database.
func (a *app) databaseNames() ([]string, error) {
	return selectDatabases(a.cfg, databaseFilter)
}

func selectDatabases(cfg *config.Config, filter string) ([]string, error) {
	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("no databases configured; add a databases section to branch-db.yaml")
	}
	if filter == "" {
		return cfg.DatabaseNames(), nil
	}
	if _, ok := cfg.Databases[filter]; !ok {
		return nil, fmt.Errorf("database %q is not configured (have %v)", filter, cfg.DatabaseNames())
	}
	return []string{filter}, nil
}

// baseName is the configured base for name in env.
func (a *app) baseName(name, env string) string {
	base := a.cfg.Databases[name].Database
	if env == envTest {
		base = a.namer.TestName(base)
	}
	return base
}

// profile builds the branch-scoped connection profile for name in env.
func (a *app) profile(ctx context.Context, name, env string) (config.ConnectionProfile, error) {
	dbCfg := a.cfg.Databases[name]
	p := dbCfg.Profile(name, a.namer.DatabaseName(ctx, a.baseName(name, env)))

	password, ok := a.resolved[name]
	if !ok {
		var err error
		password, err = a.passwords.Resolve(name, dbCfg)
		if err != nil {
			return config.ConnectionProfile{}, err
		}
		a.resolved[name] = password
	}
	p.Password = password

	logger.Debug("Built connection profile", "name", name, "profile", p.String())
	return p, nil
}

// profiles builds a profile for every selected database.
func (a *app) profiles(ctx context.Context, env string) ([]config.ConnectionProfile, error) {
	names, err := a.databaseNames()
	if err != nil {
		return nil, err
	}

	profiles := make([]config.ConnectionProfile, 0, len(names))
	for _, name := range names {
		p, err := a.profile(ctx, name, env)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}
