// Package storage provides the database abstraction layer for qhist.
// It defines the repository interfaces and the backend registry; the
// sqlite and postgres packages provide implementations.
package storage

import (
	"context"
	"io"
	"time"

	"qhist/internal/domain"
)

// Store is the main storage interface. It abstracts the underlying database
// implementation (SQLite or PostgreSQL). Implementations are safe for
// concurrent use.
type Store interface {
	io.Closer

	// QueryHistory returns the query history repository.
	QueryHistory() QueryHistoryRepository

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Backend returns the storage backend type.
	Backend() BackendType

	// Stats returns storage statistics.
	Stats(ctx context.Context) (StorageStats, error)

	// Vacuum returns space freed by deletes to the database.
	Vacuum(ctx context.Context) error
}

// StorageStats contains storage usage statistics.
type StorageStats struct {
	Backend         BackendType `json:"backend" yaml:"backend"`
	Records         int64       `json:"records" yaml:"records"`
	BytesUsed       int64       `json:"bytes_used,omitempty" yaml:"bytes_used,omitempty"`
	BytesAvailable  int64       `json:"bytes_available,omitempty" yaml:"bytes_available,omitempty"`
	OpenConnections int         `json:"open_connections" yaml:"open_connections"`
	Healthy         bool        `json:"healthy" yaml:"healthy"`
	Message         string      `json:"message,omitempty" yaml:"message,omitempty"`
}

// QueryHistoryRepository persists query history records.
type QueryHistoryRepository interface {
	// Insert stores a validated record. An empty ID is replaced with a new
	// UUID. A taken ID returns ErrAlreadyExists.
	Insert(ctx context.Context, record *domain.QueryHistory) error

	// Get retrieves a record by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.QueryHistory, error)

	// Find streams the records matching opts ordered by startTime
	// descending (records without a startTime last), then createdDate
	// descending, then ID.
	Find(ctx context.Context, opts FindOptions) (QueryHistoryCursor, error)

	// Count returns the number of records matching conds.
	Count(ctx context.Context, conds []Condition) (int64, error)

	// DeleteBefore removes every record whose createdDate is strictly
	// before cutoff in a single statement and returns how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// FindOptions controls a Find call.
type FindOptions struct {
	// Conditions are ANDed together. Empty matches every record.
	Conditions []Condition

	// Limit caps the number of records. Zero or negative means no limit.
	Limit int
}

// QueryHistoryCursor iterates over a result set. It holds a database
// connection until Close is called or Next returns false.
type QueryHistoryCursor interface {
	// Next advances to the next record.
	Next() bool

	// Record returns the current record.
	Record() *domain.QueryHistory

	// Err returns the error that stopped iteration, if any.
	Err() error

	// Close releases the cursor. It is safe to call more than once.
	Close() error
}

// Collect drains c into a slice and closes it.
func Collect(c QueryHistoryCursor) ([]*domain.QueryHistory, error) {
	defer c.Close()

	var records []*domain.QueryHistory
	for c.Next() {
		records = append(records, c.Record())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Columns maps document keys to column names. Both backends share the schema.
var Columns = map[string]string{
	domain.FieldID:             "id",
	domain.FieldUserID:         "user_id",
	domain.FieldUserEmail:      "user_email",
	domain.FieldConnectionID:   "connection_id",
	domain.FieldConnectionName: "connection_name",
	domain.FieldStartTime:      "start_time",
	domain.FieldStopTime:       "stop_time",
	domain.FieldQueryRunTime:   "query_run_time",
	domain.FieldQueryID:        "query_id",
	domain.FieldQueryName:      "query_name",
	domain.FieldQueryText:      "query_text",
	domain.FieldRowCount:       "row_count",
	domain.FieldIncomplete:     "incomplete",
	domain.FieldCreatedDate:    "created_date",
}

// SelectColumns is the column list every backend scans, in scan order.
const SelectColumns = "id, user_id, user_email, connection_id, connection_name, start_time, stop_time, " +
	"query_run_time, query_id, query_name, query_text, row_count, incomplete, created_date"

// OrderBy is the fixed result ordering.
const OrderBy = "start_time DESC NULLS LAST, created_date DESC, id"
