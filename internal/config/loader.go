// Package config provides configuration loading and management for qhist and qhistd.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// AppName is used for the config directory, file search paths and the env prefix.
const AppName = "qhist"

// configSearchPaths returns the paths to search for config files in order of precedence
// (later paths have higher priority in Viper)
func configSearchPaths(appName string) []string {
	paths := []string{}

	// System-wide (lowest priority)
	paths = append(paths, filepath.Join("/etc", appName))

	// User-specific
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appName))
	}

	// Current directory (highest priority for files)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, cwd)
	}

	return paths
}

// UserConfigDir returns the user-specific config directory for the app
func UserConfigDir(appName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// newViper creates and configures a new Viper instance for the given app
func newViper(appName string) *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	for _, path := range configSearchPaths(appName) {
		v.AddConfigPath(path)
	}

	// QHIST_QUERY_HISTORY_RESULT_MAX_ROWS -> query_history.result_max_rows
	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// readConfig points v at cfgFile (if set) and reads it. A missing config file
// is not an error: defaults and env vars still apply.
func readConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if ext := strings.TrimPrefix(filepath.Ext(cfgFile), "."); ext != "" {
			v.SetConfigType(ext)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// decode unmarshals v into a Config and resolves secret references.
func decode(v *viper.Viper) (*Config, error) {
	setViperDefaults(v, DefaultConfig())

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := resolveSecrets(&cfg); err != nil {
		return nil, fmt.Errorf("failed to resolve secrets: %w", err)
	}

	return &cfg, nil
}

// Load loads the configuration from cfgFile, or from the search paths when empty.
func Load(cfgFile string) (*Config, error) {
	v := newViper(AppName)
	if err := readConfig(v, cfgFile); err != nil {
		return nil, err
	}
	return decode(v)
}

// setViperDefaults registers every key so AutomaticEnv can override it during Unmarshal
func setViperDefaults(v *viper.Viper, c *Config) {
	for key, value := range flatten(c) {
		v.SetDefault(key, value)
	}
}

// NewViperFromConfig creates a viper instance populated with values from a config struct
func NewViperFromConfig(c *Config) *viper.Viper {
	v := viper.New()
	for key, value := range flatten(c) {
		v.Set(key, value)
	}
	return v
}

// flatten maps a Config to dotted viper keys. Durations are rendered as
// strings so generated files stay readable.
func flatten(c *Config) map[string]any {
	return map[string]any{
		"log.level":         c.Log.Level,
		"log.format":        c.Log.Format,
		"log.output":        c.Log.Output,
		"log.file_path":     c.Log.FilePath,
		"log.max_size_mb":   c.Log.MaxSizeMB,
		"log.max_backups":   c.Log.MaxBackups,
		"log.max_age_days":  c.Log.MaxAgeDays,
		"log.enable_caller": c.Log.EnableCaller,
		"log.no_color":      c.Log.NoColor,
		"log.redact_fields": c.Log.RedactFields,

		"output.format": c.Output.Format,

		"data_dir": c.DataDir,

		"database.backend":                         c.Database.Backend,
		"database.sqlite.path":                     c.Database.SQLite.Path,
		"database.sqlite.max_open_conns":           c.Database.SQLite.MaxOpenConns,
		"database.sqlite.busy_timeout":             c.Database.SQLite.BusyTimeout.String(),
		"database.postgres.dsn":                    c.Database.Postgres.DSN,
		"database.postgres.max_conns":              c.Database.Postgres.MaxConns,
		"database.postgres.connect_timeout":        c.Database.Postgres.ConnectTimeout.String(),
		"database.migrations.verify_checksums":     c.Database.Migrations.VerifyChecksums,
		"database.migrations.on_checksum_mismatch": c.Database.Migrations.OnChecksumMismatch,
		"database.migrations.lock_timeout_seconds": c.Database.Migrations.LockTimeoutSeconds,

		"query_history.result_max_rows":        c.QueryHistory.ResultMaxRows,
		"query_history.retention_time_in_days": c.QueryHistory.RetentionTimeInDays,
		"query_history.sweep_schedule":         c.QueryHistory.SweepSchedule,

		"metrics.enabled": c.Metrics.Enabled,
		"metrics.listen":  c.Metrics.Listen,
		"metrics.path":    c.Metrics.Path,
	}
}

// ConfigFileUsed returns the config file path that would be loaded, if any
func ConfigFileUsed(cfgFile string) string {
	v := newViper(AppName)
	_ = readConfig(v, cfgFile)
	return v.ConfigFileUsed()
}
