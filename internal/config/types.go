package config

import (
	"time"
)

// LogConfig holds logging configuration shared by qhist and qhistd
type LogConfig struct {
	Level        string   `mapstructure:"level"`         // debug, info, warn, error
	Format       string   `mapstructure:"format"`        // text, json, pretty
	Output       string   `mapstructure:"output"`        // stdout, stderr, or empty for file only
	FilePath     string   `mapstructure:"file_path"`     // path to log file (in addition to output)
	MaxSizeMB    int      `mapstructure:"max_size_mb"`   // max size in MB before rotation
	MaxBackups   int      `mapstructure:"max_backups"`   // max number of old log files to keep
	MaxAgeDays   int      `mapstructure:"max_age_days"`  // max days to retain old log files
	EnableCaller bool     `mapstructure:"enable_caller"` // include source file/line in logs
	NoColor      bool     `mapstructure:"no_color"`      // disable colored output (pretty format only)
	RedactFields []string `mapstructure:"redact_fields"` // field names to redact from logs
}

// OutputConfig holds output formatting options (qhist CLI only)
type OutputConfig struct {
	Format string `mapstructure:"format"` // table, json, yaml, quiet
}

// DatabaseConfig holds storage layer configuration
type DatabaseConfig struct {
	// Backend is the storage backend type: "sqlite" or "postgres"
	Backend string `mapstructure:"backend"`

	// SQLite configuration (used when Backend is "sqlite")
	SQLite SQLiteDatabaseConfig `mapstructure:"sqlite"`

	// Postgres configuration (used when Backend is "postgres")
	Postgres PostgresDatabaseConfig `mapstructure:"postgres"`

	// Migrations controls schema migration behavior
	Migrations MigrationsDatabaseConfig `mapstructure:"migrations"`
}

// SQLiteDatabaseConfig holds SQLite-specific configuration
type SQLiteDatabaseConfig struct {
	// Path is the path to the SQLite database file.
	// Defaults to <data_dir>/qhist.db
	Path string `mapstructure:"path"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// BusyTimeout is how long a writer waits on a locked database
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// PostgresDatabaseConfig holds PostgreSQL-specific configuration
type PostgresDatabaseConfig struct {
	// DSN is the connection string. Supports env:// and file:// references.
	DSN string `mapstructure:"dsn"`

	// MaxConns is the maximum pool size
	MaxConns int32 `mapstructure:"max_conns"`

	// ConnectTimeout bounds the initial connection and ping
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// MigrationsDatabaseConfig holds migration settings
type MigrationsDatabaseConfig struct {
	VerifyChecksums    bool   `mapstructure:"verify_checksums"`
	OnChecksumMismatch string `mapstructure:"on_checksum_mismatch"` // fail, warn, ignore
	LockTimeoutSeconds int    `mapstructure:"lock_timeout_seconds"`
}

// QueryHistoryConfig holds settings read by the query history store at call time
type QueryHistoryConfig struct {
	// ResultMaxRows caps the number of records returned by filtered reads.
	// Zero or negative disables the cap.
	ResultMaxRows int `mapstructure:"result_max_rows"`

	// RetentionTimeInDays is how long records are kept before the sweep removes them.
	RetentionTimeInDays int `mapstructure:"retention_time_in_days"`

	// SweepSchedule is the cron spec for the retention sweep (qhistd only).
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// MetricsConfig holds the Prometheus endpoint configuration (qhistd only)
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// Config is the complete configuration shared by qhist and qhistd
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Output       OutputConfig       `mapstructure:"output"`
	DataDir      string             `mapstructure:"data_dir"`
	Database     DatabaseConfig     `mapstructure:"database"`
	QueryHistory QueryHistoryConfig `mapstructure:"query_history"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:        "info",
			Format:       "text",
			Output:       "stderr",
			FilePath:     "",
			MaxSizeMB:    100,
			MaxBackups:   3,
			MaxAgeDays:   28,
			EnableCaller: false,
			NoColor:      false,
			RedactFields: []string{"password", "token", "secret", "credential", "dsn"},
		},
		Output: OutputConfig{
			Format: "table",
		},
		DataDir: "~/.local/share/qhist",
		Database: DatabaseConfig{
			Backend: "sqlite", // embedded, no external service needed
			SQLite: SQLiteDatabaseConfig{
				Path:         "", // defaults to <data_dir>/qhist.db
				MaxOpenConns: 10,
				BusyTimeout:  5 * time.Second,
			},
			Postgres: PostgresDatabaseConfig{
				DSN:            "",
				MaxConns:       10,
				ConnectTimeout: 10 * time.Second,
			},
			Migrations: MigrationsDatabaseConfig{
				VerifyChecksums:    true,
				OnChecksumMismatch: "fail",
				LockTimeoutSeconds: 15,
			},
		},
		QueryHistory: QueryHistoryConfig{
			ResultMaxRows:       100000,
			RetentionTimeInDays: 30,
			SweepSchedule:       "@every 10m",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
			Path:    "/metrics",
		},
	}
}
