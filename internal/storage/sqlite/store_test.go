package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"qhist/internal/domain"
	"qhist/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(storage.SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, storage.RunMigrations(context.Background(), store, storage.DefaultMigrationsConfig()))
	return store
}

func testContext() context.Context {
	return storage.WithOperationContext(context.Background(), storage.NewOperationContext("test"))
}

func ptr[T any](v T) *T { return &v }

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newRecord(id string, start *time.Time, created time.Time) *domain.QueryHistory {
	return &domain.QueryHistory{
		ID:             id,
		UserID:         "u1",
		UserEmail:      "u1@example.com",
		ConnectionID:   "c1",
		ConnectionName: "warehouse",
		StartTime:      start,
		QueryText:      "SELECT 1",
		CreatedDate:    created,
	}
}

func TestStore_CreateAndMigrate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	assert.Equal(t, storage.BackendSQLite, store.Backend())
	require.NoError(t, store.Ping(ctx))

	version, dirty, err := storage.GetMigrationStatus(ctx, store, storage.DefaultMigrationsConfig())
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 2, version)

	// Second run is a no-op.
	require.NoError(t, storage.RunMigrations(ctx, store, storage.DefaultMigrationsConfig()))
}

func TestStore_InMemory(t *testing.T) {
	store, err := New(storage.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, storage.RunMigrations(context.Background(), store, storage.DefaultMigrationsConfig()))
	require.NoError(t, store.QueryHistory().Insert(testContext(), newRecord("a", nil, base)))

	n, err := store.QueryHistory().Count(testContext(), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestStore_RequiresPath(t *testing.T) {
	_, err := New(storage.SQLiteConfig{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStore_Closed(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err := store.QueryHistory().Get(testContext(), "x")
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestStore_Stats(t *testing.T) {
	store := setupTestStore(t)
	ctx := testContext()
	require.NoError(t, store.QueryHistory().Insert(ctx, newRecord("a", nil, base)))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Healthy)
	assert.EqualValues(t, 1, stats.Records)
	assert.Positive(t, stats.BytesUsed)
}

func TestStore_Vacuum(t *testing.T) {
	store := setupTestStore(t)
	ctx := testContext()
	for i := range 50 {
		require.NoError(t, store.QueryHistory().Insert(ctx, newRecord(fmt.Sprintf("r%d", i), nil, base.Add(-time.Hour))))
	}
	_, err := store.QueryHistory().DeleteBefore(ctx, base)
	require.NoError(t, err)

	require.NoError(t, store.Vacuum(ctx))

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Vacuum(ctx), storage.ErrClosed)
}

func TestQueryHistoryRepository_InsertGet(t *testing.T) {
	store := setupTestStore(t)
	repo := store.QueryHistory()
	ctx := testContext()

	stop := base.Add(1500 * time.Millisecond)
	rec := &domain.QueryHistory{
		UserID:         "u1",
		UserEmail:      "u1@example.com",
		ConnectionID:   "c1",
		ConnectionName: "warehouse",
		StartTime:      ptr(base),
		StopTime:       &stop,
		QueryRunTime:   ptr(int64(1500)),
		QueryID:        ptr(""),
		QueryName:      ptr("daily"),
		QueryText:      "SELECT * FROM t",
		RowCount:       ptr(int64(0)),
		Incomplete:     ptr(false),
		CreatedDate:    base,
	}
	require.NoError(t, repo.Insert(ctx, rec))
	require.NotEmpty(t, rec.ID)

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestQueryHistoryRepository_GetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.QueryHistory().Get(testContext(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQueryHistoryRepository_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	repo := store.QueryHistory()
	ctx := testContext()

	require.NoError(t, repo.Insert(ctx, newRecord("dup", nil, base)))
	err := repo.Insert(ctx, newRecord("dup", nil, base))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestQueryHistoryRepository_FindOrder(t *testing.T) {
	store := setupTestStore(t)
	repo := store.QueryHistory()
	ctx := testContext()

	require.NoError(t, repo.Insert(ctx, newRecord("old", ptr(base), base)))
	require.NoError(t, repo.Insert(ctx, newRecord("nostart", nil, base.Add(time.Hour))))
	require.NoError(t, repo.Insert(ctx, newRecord("new", ptr(base.Add(time.Minute)), base)))

	records, err := storage.Collect(mustFind(t, repo, storage.FindOptions{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old", "nostart"}, ids(records))

	records, err = storage.Collect(mustFind(t, repo, storage.FindOptions{Limit: 1}))
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids(records))
}

func TestQueryHistoryRepository_FindConditions(t *testing.T) {
	store := setupTestStore(t)
	repo := store.QueryHistory()
	ctx := testContext()

	a := newRecord("a", ptr(base), base)
	a.RowCount = ptr(int64(5))
	a.Incomplete = ptr(true)
	a.QueryName = ptr("nightly load")
	b := newRecord("b", ptr(base.Add(time.Minute)), base)
	b.UserID = "u2"
	b.RowCount = ptr(int64(50))
	c := newRecord("c", ptr(base.Add(2*time.Minute)), base)
	for _, r := range []*domain.QueryHistory{a, b, c} {
		require.NoError(t, repo.Insert(ctx, r))
	}

	tests := []struct {
		name   string
		filter map[string]any
		want   []string
	}{
		{"equality", map[string]any{"userId": "u2"}, []string{"b"}},
		{"not equal matches missing", map[string]any{"rowCount": map[string]any{"$ne": 5}}, []string{"c", "b"}},
		{"range", map[string]any{"rowCount": map[string]any{"$gte": 5, "$lt": 50}}, []string{"a"}},
		{"exists", map[string]any{"rowCount": map[string]any{"$exists": true}}, []string{"b", "a"}},
		{"missing", map[string]any{"queryName": map[string]any{"$exists": false}}, []string{"c", "b"}},
		{"in", map[string]any{"_id": map[string]any{"$in": []any{"a", "c"}}}, []string{"c", "a"}},
		{"nin", map[string]any{"_id": map[string]any{"$nin": []any{"a", "c"}}}, []string{"b"}},
		{"regex", map[string]any{"queryName": map[string]any{"$regex": "^night"}}, []string{"a"}},
		{"bool", map[string]any{"incomplete": true}, []string{"a"}},
		{"time", map[string]any{"startTime": map[string]any{"$gt": base.Format(time.RFC3339)}}, []string{"c", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds, err := storage.ParseFilter(tt.filter)
			require.NoError(t, err)

			records, err := storage.Collect(mustFind(t, repo, storage.FindOptions{Conditions: conds}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(records))

			n, err := repo.Count(ctx, conds)
			require.NoError(t, err)
			assert.EqualValues(t, len(tt.want), n)
		})
	}
}

func TestQueryHistoryRepository_DeleteBefore(t *testing.T) {
	store := setupTestStore(t)
	repo := store.QueryHistory()
	ctx := testContext()

	cutoff := base
	require.NoError(t, repo.Insert(ctx, newRecord("before", nil, cutoff.Add(-time.Millisecond))))
	require.NoError(t, repo.Insert(ctx, newRecord("at", nil, cutoff)))
	require.NoError(t, repo.Insert(ctx, newRecord("after", nil, cutoff.Add(time.Millisecond))))

	n, err := repo.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = repo.Get(ctx, "before")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	remaining, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, remaining)
}

func TestRegexpFunction(t *testing.T) {
	store := setupTestStore(t)

	var match int
	require.NoError(t, store.DB().QueryRow("SELECT 'abc' REGEXP '^a'").Scan(&match))
	assert.Equal(t, 1, match)
	require.NoError(t, store.DB().QueryRow("SELECT NULL REGEXP '^a'").Scan(&match))
	assert.Equal(t, 0, match)
}

func mustFind(t *testing.T, repo storage.QueryHistoryRepository, opts storage.FindOptions) storage.QueryHistoryCursor {
	t.Helper()
	c, err := repo.Find(testContext(), opts)
	require.NoError(t, err)
	return c
}

func ids(records []*domain.QueryHistory) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
