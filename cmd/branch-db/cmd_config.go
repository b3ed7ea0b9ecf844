package main

import (
	"github.com/milkstrawai/branch-db/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCmd creates the config subcommand
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(configView(cfg)); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}

// configView renders cfg with the config file's key names. Passwords are
// replaced by a marker.
func configView(cfg *config.Config) map[string]any {
	databases := make(map[string]any, len(cfg.Databases))
	for name, d := range cfg.Databases {
		entry := map[string]any{"database": d.Database}
		if d.Host != "" {
			entry["host"] = d.Host
		}
		if d.Port != 0 {
			entry["port"] = d.Port
		}
		if d.Username != "" {
			entry["username"] = d.Username
		}
		if d.Password != "" {
			entry["password"] = "[redacted]"
		}
		if d.PasswordCommand != "" {
			entry["password_command"] = d.PasswordCommand
		}
		if d.SSLMode != "" {
			entry["sslmode"] = d.SSLMode
		}
		databases[name] = entry
	}

	return map[string]any{
		"branch_db": map[string]any{
			"main_branch":        cfg.Settings.MainBranch,
			"max_branch_length":  cfg.Settings.MaxBranchLength,
			"development_suffix": cfg.Settings.DevelopmentSuffix,
			"test_suffix":        cfg.Settings.TestSuffix,
		},
		"databases":      databases,
		"marker_table":   cfg.MarkerTable,
		"migrations_dir": cfg.MigrationsDir,
		"lock_dir":       cfg.LockDir,
		"log": map[string]any{
			"level": cfg.Log.Level,
			"file":  cfg.Log.File,
		},
	}
}
