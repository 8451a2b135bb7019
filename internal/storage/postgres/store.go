// Package postgres provides the PostgreSQL implementation of the storage
// interfaces on top of a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qhist/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements the storage.Store interface using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	cfg  storage.PostgresConfig

	queryHistory *QueryHistoryRepository

	mu     sync.RWMutex
	closed bool
}

func init() {
	storage.OpenPostgres = func(ctx context.Context, cfg storage.PostgresConfig) (storage.Store, error) {
		return New(ctx, cfg)
	}
}

// New creates a pool for cfg.DSN and verifies connectivity.
// The caller runs migrations, usually through storage.Open.
func New(ctx context.Context, cfg storage.PostgresConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", storage.ErrInvalidInput)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse connection string: %w", storage.ErrInvalidInput, err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 10
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", storage.ErrConnectionFailed, err)
	}

	s := NewWithPool(pool)
	s.cfg = cfg

	storage.Logger("postgres").Debug("connected",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database,
		"max_conns", poolConfig.MaxConns,
	)
	return s, nil
}

// NewWithPool wraps an existing pool. Migrations need a DSN, so stores
// created this way cannot be migrated through storage.RunMigrations.
func NewWithPool(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool}
	s.queryHistory = &QueryHistoryRepository{store: s}
	return s
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.pool.Close()
	return nil
}

// QueryHistory returns the query history repository.
func (s *Store) QueryHistory() storage.QueryHistoryRepository {
	return s.queryHistory
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Vacuum marks space freed by deletes as reusable and refreshes planner
// statistics for the query_history table.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.exec(ctx, "VACUUM (ANALYZE) query_history"); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	return nil
}

// Backend returns the storage backend type.
func (s *Store) Backend() storage.BackendType {
	return storage.BackendPostgres
}

// ConnString returns the DSN used for the migration connection.
func (s *Store) ConnString() string {
	return s.cfg.DSN
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Stats returns storage statistics for the PostgreSQL database.
func (s *Store) Stats(ctx context.Context) (storage.StorageStats, error) {
	stats := storage.StorageStats{
		Backend:         storage.BackendPostgres,
		Healthy:         true,
		Message:         "PostgreSQL storage operational",
		OpenConnections: int(s.pool.Stat().TotalConns()),
	}

	if err := s.Ping(ctx); err != nil {
		stats.Healthy = false
		stats.Message = fmt.Sprintf("database ping failed: %v", err)
		return stats, nil
	}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), pg_total_relation_size('query_history') FROM query_history
	`).Scan(&stats.Records, &stats.BytesUsed)
	if err != nil {
		return stats, fmt.Errorf("failed to read table statistics: %w", err)
	}

	return stats, nil
}

// exec runs a statement tagged with the operation context.
func (s *Store) exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	if err := s.checkOpen(); err != nil {
		return pgconn.CommandTag{}, err
	}
	oc := storage.MustGetOperationContext(ctx)
	start := time.Now()

	tag, err := s.pool.Exec(ctx, oc.QueryComment()+" "+query, args...)

	storage.Logger("postgres").Debug("exec",
		"op_id", oc.OperationID,
		"source", oc.Source,
		"rows", tag.RowsAffected(),
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	return tag, err
}

// query runs a query tagged with the operation context.
func (s *Store) query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	oc := storage.MustGetOperationContext(ctx)
	return s.pool.Query(ctx, oc.QueryComment()+" "+query, args...)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}
