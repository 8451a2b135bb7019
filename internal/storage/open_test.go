package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"qhist/internal/config"
	"qhist/internal/storage"
	_ "qhist/internal/storage/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := storage.ConfigFrom(config.DefaultConfig().Database, dir)
	assert.Equal(t, filepath.Join(dir, "qhist.db"), cfg.SQLite.Path)

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	version, dirty, err := storage.GetMigrationStatus(ctx, store, cfg.Migrations)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 2, version)

	migrations, err := storage.ListMigrations(ctx, store, cfg.Migrations)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	for _, m := range migrations {
		assert.True(t, m.Applied, m.Description)
		assert.NotEmpty(t, m.Checksum)
	}
}

func TestConnect_DoesNotMigrate(t *testing.T) {
	cfg := storage.ConfigFrom(config.DefaultConfig().Database, t.TempDir())

	ctx := context.Background()
	store, err := storage.Connect(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	version, _, err := storage.GetMigrationStatus(ctx, store, cfg.Migrations)
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestRollbackMigration(t *testing.T) {
	cfg := storage.ConfigFrom(config.DefaultConfig().Database, t.TempDir())

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, storage.RollbackMigration(ctx, store, cfg.Migrations))
	version, _, err := storage.GetMigrationStatus(ctx, store, cfg.Migrations)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)

	require.NoError(t, storage.RunMigrations(ctx, store, cfg.Migrations))
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := storage.Open(context.Background(), storage.Config{Backend: "oracle"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = storage.Open(context.Background(), storage.Config{Backend: storage.BackendPostgres})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestConfigFrom_Paths(t *testing.T) {
	db := config.DefaultConfig().Database

	db.SQLite.Path = ":memory:"
	assert.Equal(t, ":memory:", storage.ConfigFrom(db, "/data").SQLite.Path)

	db.SQLite.Path = "custom.db"
	assert.Equal(t, filepath.Join("/data", "custom.db"), storage.ConfigFrom(db, "/data").SQLite.Path)

	db.SQLite.Path = "/abs/q.db"
	assert.Equal(t, "/abs/q.db", storage.ConfigFrom(db, "/data").SQLite.Path)
}
