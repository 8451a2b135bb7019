package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"qhist/internal/storage/migrate"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql
)

// sqlStore is implemented by backends that expose a database/sql handle.
type sqlStore interface {
	DB() *sql.DB
}

// connStringStore is implemented by backends migrated over a separate
// database/sql connection.
type connStringStore interface {
	ConnString() string
}

func migrateConfig(cfg MigrationsConfig) migrate.Config {
	if cfg.LockTimeoutSeconds == 0 {
		cfg.LockTimeoutSeconds = 15
	}
	if cfg.OnChecksumMismatch == "" {
		cfg.OnChecksumMismatch = "fail"
	}
	return migrate.Config{
		VerifyChecksums:    cfg.VerifyChecksums,
		OnChecksumMismatch: cfg.OnChecksumMismatch,
		LockTimeout:        time.Duration(cfg.LockTimeoutSeconds) * time.Second,
		Log:                Logger("migrations"),
	}
}

// openManager creates a migration manager for store. The returned release
// function must be called when done.
func openManager(ctx context.Context, store Store, cfg migrate.Config) (*migrate.Manager, func(), error) {
	switch store.Backend() {
	case BackendPostgres:
		s, ok := store.(connStringStore)
		if !ok {
			return nil, nil, fmt.Errorf("PostgreSQL store does not expose ConnString() method")
		}

		db, err := sql.Open("pgx", s.ConnString())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open stdlib connection: %w", err)
		}
		mgr, err := migrate.NewPostgresManager(db, cfg)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to create migration manager: %w", err)
		}
		return mgr, func() { _ = mgr.Close() }, nil

	case BackendSQLite:
		s, ok := store.(sqlStore)
		if !ok {
			return nil, nil, fmt.Errorf("SQLite store does not expose DB() method")
		}
		db := s.DB()

		// A dirty SQLite database is reset to its recorded version so the
		// failed migration is retried.
		var version uint
		var dirty bool
		err := db.QueryRowContext(ctx, "SELECT version, dirty FROM "+migrate.MigrationsTable+" LIMIT 1").Scan(&version, &dirty)
		if err == nil && dirty {
			if _, err := db.ExecContext(ctx, "UPDATE "+migrate.MigrationsTable+" SET dirty = 0"); err != nil {
				return nil, nil, fmt.Errorf("failed to clean dirty state: %w", err)
			}
			Logger("migrations").Warn("cleaned dirty migration state", "version", version)
		}

		mgr, err := migrate.NewSQLiteManager(db, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create migration manager: %w", err)
		}
		// The store owns the connection; closing the manager would close it.
		return mgr, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported backend: %s", store.Backend())
	}
}

// RunMigrations runs database migrations for the given store.
func RunMigrations(ctx context.Context, store Store, cfg MigrationsConfig) error {
	mgr, release, err := openManager(ctx, store, migrateConfig(cfg))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	defer release()

	if err := mgr.Up(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	return nil
}

// RollbackMigration rolls back the last migration.
// This should only be called by admin commands with explicit confirmation.
func RollbackMigration(ctx context.Context, store Store, cfg MigrationsConfig) error {
	mcfg := migrateConfig(cfg)
	mcfg.VerifyChecksums = false
	mcfg.OnChecksumMismatch = "ignore"

	mgr, release, err := openManager(ctx, store, mcfg)
	if err != nil {
		return err
	}
	defer release()

	if err := mgr.Down(ctx); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	return nil
}

// GetMigrationStatus returns the current migration version and dirty flag.
func GetMigrationStatus(ctx context.Context, store Store, cfg MigrationsConfig) (version uint, dirty bool, err error) {
	mgr, release, err := openManager(ctx, store, migrateConfig(cfg))
	if err != nil {
		return 0, false, err
	}
	defer release()

	return mgr.Version()
}

// ListMigrations lists all migrations and their status.
func ListMigrations(ctx context.Context, store Store, cfg MigrationsConfig) ([]migrate.MigrationInfo, error) {
	mgr, release, err := openManager(ctx, store, migrateConfig(cfg))
	if err != nil {
		return nil, err
	}
	defer release()

	return mgr.List(ctx)
}
