// Package sqlite provides the embedded SQLite implementation of the storage
// interfaces, built on the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"qhist/internal/storage"

	msqlite "modernc.org/sqlite"
)

// Store implements the storage.Store interface using SQLite.
type Store struct {
	db  *sql.DB
	cfg storage.SQLiteConfig

	queryHistory *QueryHistoryRepository

	mu     sync.RWMutex
	closed bool
}

// regexCache holds compiled $regex patterns keyed by source.
var regexCache sync.Map

func init() {
	// X REGEXP Y calls regexp(Y, X).
	msqlite.MustRegisterDeterministicScalarFunction("regexp", 2, func(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		pattern, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("regexp: pattern must be text")
		}
		value, ok := args[1].(string)
		if !ok {
			return int64(0), nil
		}

		re, err := compileCached(pattern)
		if err != nil {
			return nil, err
		}
		if re.MatchString(value) {
			return int64(1), nil
		}
		return int64(0), nil
	})

	storage.OpenSQLite = func(ctx context.Context, cfg storage.SQLiteConfig) (storage.Store, error) {
		return New(cfg)
	}
}

func compileCached(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// New opens (creating if needed) the SQLite database at cfg.Path.
// The caller runs migrations, usually through storage.Open.
func New(cfg storage.SQLiteConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", storage.ErrInvalidInput)
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	memory := cfg.Path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", storage.ErrConnectionFailed, err)
	}

	s := &Store{
		db:  db,
		cfg: cfg,
	}
	s.queryHistory = &QueryHistoryRepository{store: s}

	storage.Logger("sqlite").Debug("opened database", "path", cfg.Path, "max_open_conns", cfg.MaxOpenConns)
	return s, nil
}

// dsn applies the pragmas on every pooled connection.
func dsn(cfg storage.SQLiteConfig) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(cfg.BusyTimeout.Milliseconds(), 10)+")")
	q.Add("_pragma", "foreign_keys(1)")
	if cfg.Path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// QueryHistory returns the query history repository.
func (s *Store) QueryHistory() storage.QueryHistoryRepository {
	return s.queryHistory
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Backend returns the storage backend type.
func (s *Store) Backend() storage.BackendType {
	return storage.BackendSQLite
}

// Vacuum rebuilds the database file, shrinking it after retention deletes.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.exec(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	return nil
}

// Stats returns storage statistics for the SQLite database.
func (s *Store) Stats(ctx context.Context) (storage.StorageStats, error) {
	stats := storage.StorageStats{
		Backend:         storage.BackendSQLite,
		Healthy:         true,
		Message:         "SQLite storage operational",
		OpenConnections: s.db.Stats().OpenConnections,
	}

	if err := s.Ping(ctx); err != nil {
		stats.Healthy = false
		stats.Message = fmt.Sprintf("database ping failed: %v", err)
		return stats, nil
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM query_history").Scan(&stats.Records); err != nil {
		return stats, fmt.Errorf("failed to count records: %w", err)
	}

	if s.cfg.Path != ":memory:" {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if fi, err := os.Stat(s.cfg.Path + suffix); err == nil {
				stats.BytesUsed += fi.Size()
			}
		}
		stats.BytesAvailable = getAvailableSpace(filepath.Dir(s.cfg.Path))
	}

	return stats, nil
}

// DB returns the underlying database connection.
// Use with caution - prefer repository methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

// exec runs a statement tagged with the operation context.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	oc := storage.MustGetOperationContext(ctx)
	start := time.Now()

	result, err := s.db.ExecContext(ctx, oc.QueryComment()+" "+query, args...)

	storage.Logger("sqlite").Debug("exec",
		"op_id", oc.OperationID,
		"source", oc.Source,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	return result, err
}

// query runs a query tagged with the operation context.
func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	oc := storage.MustGetOperationContext(ctx)
	return s.db.QueryContext(ctx, oc.QueryComment()+" "+query, args...)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}
