package queryhistory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"qhist/internal/domain"
	"qhist/internal/storage"
	_ "qhist/internal/storage/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settings struct {
	maxRows       int
	retentionDays int
}

func (s *settings) QueryHistoryResultMaxRows() int { return s.maxRows }
func (s *settings) QueryHistoryRetentionDays() int { return s.retentionDays }

var now = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func setupStore(t *testing.T, cfg *settings, opts ...Option) (*Store, storage.Store) {
	t.Helper()

	db, err := storage.Open(context.Background(), storage.Config{
		Backend:    storage.BackendSQLite,
		SQLite:     storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "qhist.db")},
		Migrations: storage.DefaultMigrationsConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewStore(db.QueryHistory(), cfg, opts...), db
}

func candidate(overrides map[string]any) map[string]any {
	doc := map[string]any{
		"userId":         "u1",
		"userEmail":      "u1@example.com",
		"connectionId":   "c1",
		"connectionName": "warehouse",
		"queryText":      "SELECT 1",
	}
	for k, v := range overrides {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	return doc
}

func collectIDs(t *testing.T, c storage.QueryHistoryCursor) []string {
	t.Helper()
	records, err := storage.Collect(c)
	require.NoError(t, err)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestSave_DefaultsCreatedDate(t *testing.T) {
	qs, _ := setupStore(t, &settings{})
	ctx := context.Background()

	saved, err := qs.Save(ctx, candidate(nil))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, now, saved.CreatedDate)

	got, found, err := qs.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, now, got.CreatedDate)
}

func TestSave_UsesCurrentTimePerCall(t *testing.T) {
	clock := now
	qs, _ := setupStore(t, &settings{}, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	first, err := qs.Save(ctx, candidate(nil))
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	second, err := qs.Save(ctx, candidate(nil))
	require.NoError(t, err)

	assert.Equal(t, time.Hour, second.CreatedDate.Sub(first.CreatedDate))
}

func TestSave_MissingRequiredField(t *testing.T) {
	for _, field := range []string{"userId", "userEmail", "connectionId", "connectionName", "queryText"} {
		t.Run(field, func(t *testing.T) {
			qs, _ := setupStore(t, &settings{})
			ctx := context.Background()

			_, err := qs.Save(ctx, candidate(map[string]any{field: nil}))
			require.ErrorIs(t, err, domain.ErrValidation)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			v, ok := verr.Field(field)
			require.True(t, ok)
			assert.Equal(t, "required", v.Rule)

			n, err := qs.Count(ctx, Filter{})
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	qs, _ := setupStore(t, &settings{})
	ctx := context.Background()

	saved, err := qs.Save(ctx, candidate(map[string]any{
		"startTime":    "2024-06-15T10:00:00.250Z",
		"stopTime":     "2024-06-15T10:00:01.750Z",
		"queryRunTime": "1500",
		"queryId":      "",
		"queryName":    "daily",
		"rowCount":     0,
		"incomplete":   "false",
		"createdDate":  "2024-06-15T10:00:02Z",
	}))
	require.NoError(t, err)

	got, found, err := qs.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, saved, got)

	require.NotNil(t, got.QueryRunTime)
	assert.EqualValues(t, 1500, *got.QueryRunTime)
	require.NotNil(t, got.QueryID)
	assert.Equal(t, "", *got.QueryID)
	require.NotNil(t, got.RowCount)
	assert.Zero(t, *got.RowCount)
	require.NotNil(t, got.Incomplete)
	assert.False(t, *got.Incomplete)
	assert.Equal(t, time.Date(2024, 6, 15, 10, 0, 0, 250e6, time.UTC), *got.StartTime)
}

func TestSave_DuplicateID(t *testing.T) {
	qs, _ := setupStore(t, &settings{})
	ctx := context.Background()

	_, err := qs.Save(ctx, candidate(map[string]any{"_id": "fixed"}))
	require.NoError(t, err)
	_, err = qs.Save(ctx, candidate(map[string]any{"_id": "fixed"}))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestSaveRecord(t *testing.T) {
	qs, _ := setupStore(t, &settings{})
	ctx := context.Background()

	name := "typed"
	saved, err := qs.SaveRecord(ctx, &domain.QueryHistory{
		UserID:         "u1",
		UserEmail:      "u1@example.com",
		ConnectionID:   "c1",
		ConnectionName: "warehouse",
		QueryName:      &name,
		QueryText:      "SELECT 2",
	})
	require.NoError(t, err)
	assert.Equal(t, now, saved.CreatedDate)
	assert.Equal(t, "typed", *saved.QueryName)

	_, err = qs.SaveRecord(ctx, &domain.QueryHistory{UserID: "u1"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = qs.SaveRecord(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestFindByID_NotFound(t *testing.T) {
	qs, _ := setupStore(t, &settings{})

	got, found, err := qs.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestFindAll_SortedByStartTimeDescending(t *testing.T) {
	qs, _ := setupStore(t, &settings{maxRows: 1})
	ctx := context.Background()

	for id, start := range map[string]any{
		"middle": "2024-06-02T00:00:00Z",
		"first":  "2024-06-03T00:00:00Z",
		"last":   "2024-06-01T00:00:00Z",
		"none":   nil,
	} {
		_, err := qs.Save(ctx, candidate(map[string]any{"_id": id, "startTime": start}))
		require.NoError(t, err)
	}

	c, err := qs.FindAll(ctx)
	require.NoError(t, err)
	// FindAll ignores result_max_rows.
	assert.Equal(t, []string{"first", "middle", "last", "none"}, collectIDs(t, c))
}

func TestFindByFilter_Limit(t *testing.T) {
	cfg := &settings{maxRows: 3}
	qs, _ := setupStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := qs.Save(ctx, candidate(map[string]any{
			"startTime": now.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"rowCount":  i,
		}))
		require.NoError(t, err)
	}

	c, err := qs.FindByFilter(ctx, Filter{})
	require.NoError(t, err)
	records, err := storage.Collect(c)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.EqualValues(t, 4, *records[0].RowCount)

	c, err = qs.FindByFilter(ctx, Filter{Match: map[string]any{"rowCount": map[string]any{"$lt": 2}}})
	require.NoError(t, err)
	assert.Len(t, collectIDs(t, c), 2)

	// The limit is read on every call.
	cfg.maxRows = 0
	c, err = qs.FindByFilter(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, collectIDs(t, c), 5)
}

func TestFindByFilter_Expression(t *testing.T) {
	qs, _ := setupStore(t, &settings{maxRows: 2})
	ctx := context.Background()

	for i, runTime := range []int{100, 5000, 200, 7000, 9000} {
		_, err := qs.Save(ctx, candidate(map[string]any{
			"_id":          string(rune('a' + i)),
			"startTime":    now.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"queryRunTime": runTime,
		}))
		require.NoError(t, err)
	}
	_, err := qs.Save(ctx, candidate(map[string]any{"_id": "no-runtime", "startTime": now.Add(time.Hour).Format(time.RFC3339)}))
	require.NoError(t, err)

	c, err := qs.FindByFilter(ctx, Filter{Expression: "record.queryRunTime > 1000"})
	require.NoError(t, err)
	// Newest first; the limit counts only records passing the expression.
	assert.Equal(t, []string{"e", "d"}, collectIDs(t, c))

	c, err = qs.FindByFilter(ctx, Filter{
		Match:      map[string]any{"_id": map[string]any{"$in": []any{"a", "b", "c"}}},
		Expression: `has(record.queryRunTime) && record.queryRunTime < 1000`,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, collectIDs(t, c))

	c, err = qs.FindByFilter(ctx, Filter{Expression: `record.startTime > timestamp("2024-06-15T10:32:00Z")`})
	require.NoError(t, err)
	assert.Equal(t, []string{"no-runtime", "e"}, collectIDs(t, c))
}

func TestFindByFilter_InvalidInput(t *testing.T) {
	qs, _ := setupStore(t, &settings{})
	ctx := context.Background()

	tests := []struct {
		name   string
		filter Filter
	}{
		{"unknown field", Filter{Match: map[string]any{"nope": 1}}},
		{"unknown operator", Filter{Match: map[string]any{"rowCount": map[string]any{"$near": 1}}}},
		{"syntax error", Filter{Expression: "record.rowCount >"}},
		{"not boolean", Filter{Expression: "1 + 2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := qs.FindByFilter(ctx, tt.filter)
			assert.ErrorIs(t, err, storage.ErrInvalidInput)
		})
	}
}

func TestCount(t *testing.T) {
	qs, _ := setupStore(t, &settings{maxRows: 1})
	ctx := context.Background()

	for _, user := range []string{"u1", "u1", "u2"} {
		_, err := qs.Save(ctx, candidate(map[string]any{"userId": user}))
		require.NoError(t, err)
	}

	n, err := qs.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = qs.Count(ctx, Filter{Match: map[string]any{"userId": "u1"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = qs.Count(ctx, Filter{Expression: "true"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestRemoveOldEntries(t *testing.T) {
	cfg := &settings{retentionDays: 30}
	qs, _ := setupStore(t, cfg)
	ctx := context.Background()

	day := 24 * time.Hour
	records := map[string]time.Time{
		"31-days":     now.Add(-31 * day),
		"just-before": now.Add(-30*day - time.Millisecond),
		"at-cutoff":   now.Add(-30 * day),
		"29-days":     now.Add(-29 * day),
		"today":       now,
	}
	for id, created := range records {
		_, err := qs.Save(ctx, candidate(map[string]any{"_id": id, "createdDate": created}))
		require.NoError(t, err)
	}

	assert.Equal(t, now.Add(-30*day), qs.RetentionCutoff())

	removed, err := qs.RemoveOldEntries(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	for id, wantFound := range map[string]bool{
		"31-days": false, "just-before": false, "at-cutoff": true, "29-days": true, "today": true,
	} {
		_, found, err := qs.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, wantFound, found, id)
	}

	// Retention is read on every call.
	cfg.retentionDays = 0
	removed, err = qs.RemoveOldEntries(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)
}

func TestExpire_ReportsAppliedCutoff(t *testing.T) {
	cfg := &settings{retentionDays: 30}
	qs, db := setupStore(t, cfg)
	ctx := context.Background()

	cutoff := now.Add(-30 * 24 * time.Hour)
	for id, created := range map[string]time.Time{
		"before": cutoff.Add(-time.Millisecond),
		"after":  cutoff.Add(30 * time.Minute),
	} {
		_, err := qs.Save(ctx, candidate(map[string]any{"_id": id, "createdDate": created}))
		require.NoError(t, err)
	}

	// Each clock read moves an hour forward, so a second read would
	// report a cutoff past "after".
	tick := now
	ticking := NewStore(db.QueryHistory(), cfg, WithClock(func() time.Time {
		at := tick
		tick = tick.Add(time.Hour)
		return at
	}))

	exp, err := ticking.Expire(ctx)
	require.NoError(t, err)
	assert.Equal(t, cutoff, exp.Cutoff)
	assert.EqualValues(t, 1, exp.Removed)

	_, found, err := qs.FindByID(ctx, "after")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSaveRecord_LargeIntegersRoundTrip(t *testing.T) {
	qs, _ := setupStore(t, &settings{})
	ctx := context.Background()

	rows := int64(1<<53 + 1)
	runTime := int64(1<<62 + 7)
	saved, err := qs.SaveRecord(ctx, &domain.QueryHistory{
		UserID:         "u1",
		UserEmail:      "u1@example.com",
		ConnectionID:   "c1",
		ConnectionName: "warehouse",
		QueryText:      "SELECT 3",
		RowCount:       &rows,
		QueryRunTime:   &runTime,
	})
	require.NoError(t, err)

	got, found, err := qs.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rows, *got.RowCount)
	assert.Equal(t, runTime, *got.QueryRunTime)

	fromDoc, err := qs.Save(ctx, candidate(map[string]any{"rowCount": "9007199254740993"}))
	require.NoError(t, err)
	assert.Equal(t, rows, *fromDoc.RowCount)
}

func TestRemoveOldEntries_StorageError(t *testing.T) {
	qs, db := setupStore(t, &settings{retentionDays: 1})
	require.NoError(t, db.Close())

	_, err := qs.RemoveOldEntries(context.Background())
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	qs, _ := setupStore(t, &settings{retentionDays: 1}, WithMetrics(m))
	ctx := context.Background()

	_, err := qs.Save(ctx, candidate(map[string]any{"_id": "a", "createdDate": now.Add(-48 * time.Hour)}))
	require.NoError(t, err)
	_, err = qs.Save(ctx, candidate(map[string]any{"_id": "a"}))
	require.Error(t, err)
	_, err = qs.Save(ctx, candidate(map[string]any{"userId": nil}))
	require.Error(t, err)
	_, err = qs.RemoveOldEntries(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.removed))
}
