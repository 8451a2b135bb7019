package storage

import (
	"context"
	"fmt"
)

// OpenSQLite is set by the sqlite package init to avoid import cycles.
var OpenSQLite func(ctx context.Context, cfg SQLiteConfig) (Store, error)

// OpenPostgres is set by the postgres package init to avoid import cycles.
var OpenPostgres func(ctx context.Context, cfg PostgresConfig) (Store, error)

// Connect creates a Store for cfg without touching the schema.
// The caller must import the sqlite and/or postgres packages to register the factories.
func Connect(ctx context.Context, cfg Config) (Store, error) {
	storageLog := Logger("open")
	storageLog.Debug("opening storage", "backend", cfg.Backend)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case BackendSQLite:
		if OpenSQLite == nil {
			return nil, fmt.Errorf("SQLite backend not available; import qhist/internal/storage/sqlite")
		}
		store, err = OpenSQLite(ctx, cfg.SQLite)
	case BackendPostgres:
		if OpenPostgres == nil {
			return nil, fmt.Errorf("PostgreSQL backend not available; import qhist/internal/storage/postgres")
		}
		store, err = OpenPostgres(ctx, cfg.Postgres)
	}
	if err != nil {
		storageLog.Error("failed to create store", "backend", cfg.Backend, "error", err)
		return nil, fmt.Errorf("failed to create %s store: %w", cfg.Backend, err)
	}
	return store, nil
}

// Open connects like Connect and brings the schema up to date.
func Open(ctx context.Context, cfg Config) (Store, error) {
	store, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	storageLog := Logger("open")
	storageLog.Debug("running migrations", "backend", cfg.Backend)
	if err := RunMigrations(ctx, store, cfg.Migrations); err != nil {
		_ = store.Close()
		storageLog.Error("failed to run migrations", "backend", cfg.Backend, "error", err)
		return nil, fmt.Errorf("failed to run %s migrations: %w", cfg.Backend, err)
	}

	storageLog.Info("storage opened", "backend", cfg.Backend)
	return store, nil
}
