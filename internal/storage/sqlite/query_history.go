package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"qhist/internal/domain"
	"qhist/internal/storage"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// QueryHistoryRepository implements storage.QueryHistoryRepository for SQLite.
type QueryHistoryRepository struct {
	store *Store
}

// Insert stores a validated record.
func (r *QueryHistoryRepository) Insert(ctx context.Context, q *domain.QueryHistory) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}

	_, err := r.store.exec(ctx, `
		INSERT INTO query_history (`+storage.SelectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		q.ID,
		q.UserID,
		q.UserEmail,
		q.ConnectionID,
		q.ConnectionName,
		nullMillis(q.StartTime),
		nullMillis(q.StopTime),
		q.QueryRunTime,
		q.QueryID,
		q.QueryName,
		q.QueryText,
		q.RowCount,
		nullBool(q.Incomplete),
		q.CreatedDate.UnixMilli(),
	)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return fmt.Errorf("%w: query history %s", storage.ErrAlreadyExists, q.ID)
		}
		return fmt.Errorf("failed to insert query history: %w", err)
	}

	return nil
}

// Get retrieves a record by ID.
func (r *QueryHistoryRepository) Get(ctx context.Context, id string) (*domain.QueryHistory, error) {
	rows, err := r.store.query(ctx, `
		SELECT `+storage.SelectColumns+`
		FROM query_history WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query query history: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, storage.ErrNotFound
	}

	return scanQueryHistory(rows)
}

// Find streams the records matching opts in storage.OrderBy order.
func (r *QueryHistoryRepository) Find(ctx context.Context, opts storage.FindOptions) (storage.QueryHistoryCursor, error) {
	where, args, err := storage.BuildWhere(opts.Conditions, dialect{}, 0)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + storage.SelectColumns + " FROM query_history WHERE 1=1" + where +
		" ORDER BY " + storage.OrderBy
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.store.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find query history: %w", err)
	}

	return &cursor{rows: rows}, nil
}

// Count returns the number of records matching conds.
func (r *QueryHistoryRepository) Count(ctx context.Context, conds []storage.Condition) (int64, error) {
	where, args, err := storage.BuildWhere(conds, dialect{}, 0)
	if err != nil {
		return 0, err
	}

	rows, err := r.store.query(ctx, "SELECT COUNT(*) FROM query_history WHERE 1=1"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count query history: %w", err)
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

// DeleteBefore removes records created strictly before cutoff.
func (r *QueryHistoryRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.store.exec(ctx, "DELETE FROM query_history WHERE created_date < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete query history: %w", err)
	}
	return result.RowsAffected()
}

// cursor adapts *sql.Rows to storage.QueryHistoryCursor.
type cursor struct {
	rows    *sql.Rows
	current *domain.QueryHistory
	err     error
}

func (c *cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		_ = c.rows.Close()
		return false
	}
	c.current, c.err = scanQueryHistory(c.rows)
	if c.err != nil {
		_ = c.rows.Close()
		return false
	}
	return true
}

func (c *cursor) Record() *domain.QueryHistory { return c.current }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *cursor) Close() error { return c.rows.Close() }

func scanQueryHistory(rows *sql.Rows) (*domain.QueryHistory, error) {
	var (
		q                      domain.QueryHistory
		startTime, stopTime    sql.NullInt64
		queryRunTime, rowCount sql.NullInt64
		queryID, queryName     sql.NullString
		incomplete             sql.NullInt64
		createdDate            int64
	)

	err := rows.Scan(
		&q.ID,
		&q.UserID,
		&q.UserEmail,
		&q.ConnectionID,
		&q.ConnectionName,
		&startTime,
		&stopTime,
		&queryRunTime,
		&queryID,
		&queryName,
		&q.QueryText,
		&rowCount,
		&incomplete,
		&createdDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan query history: %w", err)
	}

	q.StartTime = fromMillis(startTime)
	q.StopTime = fromMillis(stopTime)
	if queryRunTime.Valid {
		q.QueryRunTime = &queryRunTime.Int64
	}
	if rowCount.Valid {
		q.RowCount = &rowCount.Int64
	}
	if queryID.Valid {
		q.QueryID = &queryID.String
	}
	if queryName.Valid {
		q.QueryName = &queryName.String
	}
	if incomplete.Valid {
		b := incomplete.Int64 != 0
		q.Incomplete = &b
	}
	q.CreatedDate = time.UnixMilli(createdDate).UTC()

	return &q, nil
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return dialect{}.Arg(*b)
}

func isPrimaryKeyViolation(err error) bool {
	var serr *msqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
