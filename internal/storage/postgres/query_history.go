package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"qhist/internal/domain"
	"qhist/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// QueryHistoryRepository implements storage.QueryHistoryRepository for PostgreSQL.
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		q.ID,
		q.UserID,
		q.UserEmail,
		q.ConnectionID,
		q.ConnectionName,
		q.StartTime,
		q.StopTime,
		q.QueryRunTime,
		q.QueryID,
		q.QueryName,
		q.QueryText,
		q.RowCount,
		q.Incomplete,
		q.CreatedDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
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
		FROM query_history WHERE id = $1
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
		args = append(args, opts.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
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
	tag, err := r.store.exec(ctx, "DELETE FROM query_history WHERE created_date < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete query history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// cursor adapts pgx.Rows to storage.QueryHistoryCursor.
type cursor struct {
	rows    pgx.Rows
	current *domain.QueryHistory
	err     error
}

func (c *cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		c.rows.Close()
		return false
	}
	c.current, c.err = scanQueryHistory(c.rows)
	if c.err != nil {
		c.rows.Close()
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

func (c *cursor) Close() error {
	c.rows.Close()
	return nil
}

func scanQueryHistory(rows pgx.Rows) (*domain.QueryHistory, error) {
	var q domain.QueryHistory

	err := rows.Scan(
		&q.ID,
		&q.UserID,
		&q.UserEmail,
		&q.ConnectionID,
		&q.ConnectionName,
		&q.StartTime,
		&q.StopTime,
		&q.QueryRunTime,
		&q.QueryID,
		&q.QueryName,
		&q.QueryText,
		&q.RowCount,
		&q.Incomplete,
		&q.CreatedDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan query history: %w", err)
	}

	q.CreatedDate = q.CreatedDate.UTC()
	if q.StartTime != nil {
		t := q.StartTime.UTC()
		q.StartTime = &t
	}
	if q.StopTime != nil {
		t := q.StopTime.UTC()
		q.StopTime = &t
	}

	return &q, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
