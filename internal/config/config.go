package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the root configuration structure
type Config struct {
	Settings      Settings                  `mapstructure:"branch_db"`
	Databases     map[string]DatabaseConfig `mapstructure:"databases"`
	MarkerTable   string                    `mapstructure:"marker_table"`
	MigrationsDir string                    `mapstructure:"migrations_dir"`
	LockDir       string                    `mapstructure:"lock_dir"`
	Log           LogConfig                 `mapstructure:"log"`
	Debug         bool                      `mapstructure:"debug"`
}

// Settings holds the naming rules shared by every component.
type Settings struct {
	MainBranch        string `mapstructure:"main_branch"`
	MaxBranchLength   int    `mapstructure:"max_branch_length"`
	DevelopmentSuffix string `mapstructure:"development_suffix"`
	TestSuffix        string `mapstructure:"test_suffix"`
}

// DatabaseConfig describes one logical database as written in the config file.
// Database is the base name, without any branch suffix.
type DatabaseConfig struct {
	Database        string `mapstructure:"database"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	PasswordCommand string `mapstructure:"password_command"`
	SSLMode         string `mapstructure:"sslmode"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// PrimaryDatabase is the logical name that gets no label in console output.
const PrimaryDatabase = "primary"

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		MainBranch:        "main",
		MaxBranchLength:   33,
		DevelopmentSuffix: "_development",
		TestSuffix:        "_test",
	}
}

// Default returns a configuration with defaults applied and no databases.
func Default() *Config {
	return &Config{
		Settings:    DefaultSettings(),
		Databases:   map[string]DatabaseConfig{},
		MarkerTable: "schema_migrations",
		Log:         LogConfig{Level: "info"},
	}
}

// Load loads configuration from the default search locations.
func Load() (*Config, error) {
	return LoadFromPath("")
}

// LoadFromPath loads configuration from a specific path.
// If configPath is empty, it searches default locations.
func LoadFromPath(configPath string) (*Config, error) {
	v := viper.New()

	// Environment variable support
	v.AutomaticEnv()
	v.SetEnvPrefix("BRANCH_DB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	applyDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("branch-db")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "branch-db"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "branch-db"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.Databases == nil {
		cfg.Databases = map[string]DatabaseConfig{}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration values
func Validate(cfg *Config) error {
	if err := cfg.Settings.Validate(); err != nil {
		return err
	}
	if cfg.MarkerTable == "" {
		return fmt.Errorf("marker_table cannot be empty")
	}

	for _, name := range cfg.DatabaseNames() {
		db := cfg.Databases[name]
		if db.Database == "" {
			return fmt.Errorf("databases.%s.database cannot be empty", name)
		}
		if db.Port != 0 && (db.Port < 1 || db.Port > 65535) {
			return fmt.Errorf("databases.%s.port must be between 1 and 65535, got %d", name, db.Port)
		}
		if db.SSLMode != "" && !validSSLMode(db.SSLMode) {
			return fmt.Errorf("databases.%s.sslmode must be one of: %v, got %s", name, sslModes, db.SSLMode)
		}
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %s", cfg.Log.Level)
	}

	return nil
}

// Validate checks the naming invariants.
func (s Settings) Validate() error {
	if s.MainBranch == "" {
		return fmt.Errorf("branch_db.main_branch cannot be empty")
	}
	if s.MaxBranchLength < 0 {
		return fmt.Errorf("branch_db.max_branch_length must be >= 0, got %d", s.MaxBranchLength)
	}
	if s.DevelopmentSuffix == "" {
		return fmt.Errorf("branch_db.development_suffix cannot be empty")
	}
	if s.TestSuffix == "" {
		return fmt.Errorf("branch_db.test_suffix cannot be empty")
	}
	return nil
}

// DatabaseNames returns the configured logical names with "primary" first and
// the rest sorted.
func (c *Config) DatabaseNames() []string {
	names := make([]string, 0, len(c.Databases))
	for name := range c.Databases {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == PrimaryDatabase {
			return true
		}
		if names[j] == PrimaryDatabase {
			return false
		}
		return names[i] < names[j]
	})
	return names
}

var sslModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

func validSSLMode(mode string) bool {
	for _, m := range sslModes {
		if m == mode {
			return true
		}
	}
	return false
}

// applyDefaults sets default configuration values
func applyDefaults(v *viper.Viper) {
	defaults := DefaultSettings()
	v.SetDefault("branch_db.main_branch", defaults.MainBranch)
	v.SetDefault("branch_db.max_branch_length", defaults.MaxBranchLength)
	v.SetDefault("branch_db.development_suffix", defaults.DevelopmentSuffix)
	v.SetDefault("branch_db.test_suffix", defaults.TestSuffix)

	v.SetDefault("marker_table", "schema_migrations")
	v.SetDefault("migrations_dir", "")
	v.SetDefault("lock_dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("debug", false)
}
