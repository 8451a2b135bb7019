// Package queryhistory implements the query history store: validated
// writes, lookups, filtered reads and time based retention.
package queryhistory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qhist/internal/domain"
	"qhist/internal/logger"
	"qhist/internal/storage"
)

// msPerDay is the retention unit. Retention is a fixed number of
// milliseconds, not calendar days.
const msPerDay = 86_400_000

// Settings supplies the tunables read on every call, so configuration
// reloads take effect without rebuilding the store.
type Settings interface {
	QueryHistoryResultMaxRows() int
	QueryHistoryRetentionDays() int
}

// Store is the query history store. It is safe for concurrent use.
type Store struct {
	repo     storage.QueryHistoryRepository
	settings Settings
	now      func() time.Time
	log      *logger.Logger
	metrics  *Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for createdDate defaults and retention cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store's logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMetrics records store activity in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a store over repo.
func NewStore(repo storage.QueryHistoryRepository, settings Settings, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		settings: settings,
		now:      time.Now,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "queryhistory")
	return s
}

// Save validates candidate and stores it. A candidate without createdDate
// gets the current time. Validation failures return *domain.ValidationError
// and nothing is written.
func (s *Store) Save(ctx context.Context, candidate map[string]any) (*domain.QueryHistory, error) {
	record, err := domain.Validate(candidate, s.now())
	if err != nil {
		s.metrics.observeSave(err)
		return nil, err
	}

	if err := s.repo.Insert(ctx, record); err != nil {
		s.metrics.observeSave(err)
		return nil, fmt.Errorf("failed to save query history: %w", err)
	}

	s.metrics.observeSave(nil)
	s.log.Debug("saved query history", "id", record.ID, "user_id", record.UserID)
	return record, nil
}

// SaveRecord validates a typed record through the same rules as Save.
func (s *Store) SaveRecord(ctx context.Context, record *domain.QueryHistory) (*domain.QueryHistory, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", storage.ErrInvalidInput)
	}
	return s.Save(ctx, record.ToDocument())
}

// FindByID returns the record with id. A missing record is reported with
// found == false and a nil error.
func (s *Store) FindByID(ctx context.Context, id string) (*domain.QueryHistory, bool, error) {
	record, err := s.repo.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find query history %s: %w", id, err)
	}
	return record, true, nil
}

// FindAll streams every record, newest startTime first. Records without a
// startTime come last. The caller must close the cursor.
func (s *Store) FindAll(ctx context.Context) (storage.QueryHistoryCursor, error) {
	c, err := s.repo.Find(ctx, storage.FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list query history: %w", err)
	}
	return c, nil
}

// FindByFilter streams the records matching f, newest startTime first,
// capped at the configured result_max_rows. The caller must close the cursor.
func (s *Store) FindByFilter(ctx context.Context, f Filter) (storage.QueryHistoryCursor, error) {
	conds, err := storage.ParseFilter(f.Match)
	if err != nil {
		return nil, err
	}

	limit := s.settings.QueryHistoryResultMaxRows()
	if limit < 0 {
		limit = 0
	}

	if f.Expression == "" {
		c, err := s.repo.Find(ctx, storage.FindOptions{Conditions: conds, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("failed to filter query history: %w", err)
		}
		return c, nil
	}

	prg, err := compileExpression(f.Expression)
	if err != nil {
		return nil, err
	}

	// The limit counts records that pass the expression.
	c, err := s.repo.Find(ctx, storage.FindOptions{Conditions: conds})
	if err != nil {
		return nil, fmt.Errorf("failed to filter query history: %w", err)
	}
	return &expressionCursor{inner: c, prg: prg, limit: limit, log: s.log}, nil
}

// Count returns the number of records matching f.Match.
func (s *Store) Count(ctx context.Context, f Filter) (int64, error) {
	if f.Expression != "" {
		return 0, fmt.Errorf("%w: count does not support expressions", storage.ErrInvalidInput)
	}
	conds, err := storage.ParseFilter(f.Match)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.Count(ctx, conds)
	if err != nil {
		return 0, fmt.Errorf("failed to count query history: %w", err)
	}
	return n, nil
}

// RetentionCutoff returns the instant before which records are expired.
func (s *Store) RetentionCutoff() time.Time {
	days := int64(s.settings.QueryHistoryRetentionDays())
	return s.now().Add(-time.Duration(days*msPerDay) * time.Millisecond)
}

// RemoveOldEntries deletes every record whose createdDate is strictly
// before the retention cutoff and returns how many were removed.
func (s *Store) RemoveOldEntries(ctx context.Context) (int64, error) {
	exp, err := s.Expire(ctx)
	return exp.Removed, err
}

// Expiry is the outcome of one retention pass.
type Expiry struct {
	Cutoff  time.Time `json:"cutoff" yaml:"cutoff"`
	Removed int64     `json:"removed" yaml:"removed"`
}

// Expire is RemoveOldEntries reporting the cutoff it applied.
func (s *Store) Expire(ctx context.Context) (Expiry, error) {
	exp := Expiry{Cutoff: s.RetentionCutoff()}

	n, err := s.repo.DeleteBefore(ctx, exp.Cutoff)
	if err != nil {
		return exp, fmt.Errorf("failed to remove old query history: %w", err)
	}
	exp.Removed = n

	s.metrics.observeRemoved(n)
	s.log.Info("removed old query history", "removed", n, "cutoff", exp.Cutoff)
	return exp, nil
}
