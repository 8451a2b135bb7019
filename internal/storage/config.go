package storage

import (
	"fmt"
	"path/filepath"
	"time"

	"qhist/internal/config"
)

// BackendType represents the storage backend.
type BackendType string

const (
	BackendSQLite   BackendType = "sqlite"
	BackendPostgres BackendType = "postgres"
)

// String returns the backend name.
func (b BackendType) String() string {
	return string(b)
}

// Config holds the storage configuration.
type Config struct {
	// Backend is the storage backend type: "sqlite" or "postgres"
	Backend BackendType

	// SQLite configuration (used when Backend is "sqlite")
	SQLite SQLiteConfig

	// Postgres configuration (used when Backend is "postgres")
	Postgres PostgresConfig

	// Migrations controls schema migration behavior
	Migrations MigrationsConfig
}

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file.
	// Defaults to <data_dir>/qhist.db
	Path string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration
}

// PostgresConfig holds PostgreSQL-specific configuration.
type PostgresConfig struct {
	// DSN is a libpq style connection string or postgres:// URL.
	DSN string

	// MaxConns is the maximum pool size.
	MaxConns int32

	// ConnectTimeout bounds pool creation and the initial ping.
	ConnectTimeout time.Duration
}

// MigrationsConfig holds schema migration settings.
type MigrationsConfig struct {
	// VerifyChecksums compares applied migration files against the recorded checksums.
	VerifyChecksums bool

	// OnChecksumMismatch is one of "fail", "warn", "ignore".
	OnChecksumMismatch string

	// LockTimeoutSeconds is how long to wait for the migration lock.
	LockTimeoutSeconds int
}

// DefaultMigrationsConfig returns the default migration settings.
func DefaultMigrationsConfig() MigrationsConfig {
	return MigrationsConfig{
		VerifyChecksums:    true,
		OnChecksumMismatch: "fail",
		LockTimeoutSeconds: 15,
	}
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendSQLite,
		SQLite: SQLiteConfig{
			MaxOpenConns: 10,
			BusyTimeout:  5 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxConns:       10,
			ConnectTimeout: 10 * time.Second,
		},
		Migrations: DefaultMigrationsConfig(),
	}
}

// ConfigFrom converts the database section of the application config.
// A relative SQLite path is resolved against dataDir.
func ConfigFrom(db config.DatabaseConfig, dataDir string) Config {
	cfg := Config{
		Backend: BackendType(db.Backend),
		SQLite: SQLiteConfig{
			Path:         db.SQLite.Path,
			MaxOpenConns: db.SQLite.MaxOpenConns,
			BusyTimeout:  db.SQLite.BusyTimeout,
		},
		Postgres: PostgresConfig{
			DSN:            db.Postgres.DSN,
			MaxConns:       db.Postgres.MaxConns,
			ConnectTimeout: db.Postgres.ConnectTimeout,
		},
		Migrations: MigrationsConfig{
			VerifyChecksums:    db.Migrations.VerifyChecksums,
			OnChecksumMismatch: db.Migrations.OnChecksumMismatch,
			LockTimeoutSeconds: db.Migrations.LockTimeoutSeconds,
		},
	}

	dataDir = config.ExpandPath(dataDir)
	switch {
	case cfg.SQLite.Path == "":
		cfg.SQLite.Path = filepath.Join(dataDir, "qhist.db")
	case cfg.SQLite.Path == ":memory:":
	case !filepath.IsAbs(config.ExpandPath(cfg.SQLite.Path)):
		cfg.SQLite.Path = filepath.Join(dataDir, cfg.SQLite.Path)
	default:
		cfg.SQLite.Path = config.ExpandPath(cfg.SQLite.Path)
	}

	return cfg
}

// Validate validates the storage configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("%w: sqlite path is required", ErrInvalidInput)
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("%w: postgres dsn is required", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidInput, c.Backend)
	}

	switch c.Migrations.OnChecksumMismatch {
	case "", "fail", "warn", "ignore":
	default:
		return fmt.Errorf("%w: on_checksum_mismatch must be fail, warn or ignore", ErrInvalidInput)
	}
	return nil
}
