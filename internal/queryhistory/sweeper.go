package queryhistory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qhist/internal/logger"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs retention every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// ErrSweepInProgress is returned by RunOnce while another sweep runs.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Remover deletes expired records. *Store implements it.
type Remover interface {
	RemoveOldEntries(ctx context.Context) (int64, error)
}

// Sweeper runs retention on a cron schedule. Sweeps never overlap: a tick
// that fires while a sweep is running is skipped.
type Sweeper struct {
	remover Remover
	log     *logger.Logger
	metrics *Metrics

	cron    *cron.Cron
	entry   cron.EntryID
	running sync.Mutex

	mu       sync.Mutex
	schedule string
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
}

// NewSweeper creates a sweeper for schedule, a standard five field cron
// spec or a descriptor such as "@every 10m". An empty schedule selects
// DefaultSweepSchedule.
func NewSweeper(remover Remover, schedule string, log *logger.Logger, metrics *Metrics) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "sweeper")

	return &Sweeper{
		remover:  remover,
		log:      log,
		metrics:  metrics,
		cron:     cron.New(cron.WithLogger(cronLogger{log})),
		schedule: schedule,
	}, nil
}

// Start schedules sweeps until Stop is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("sweeper already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	entry, err := s.cron.AddFunc(s.schedule, s.tick)
	if err != nil {
		s.cancel()
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.entry = entry
	s.started = true
	s.cron.Start()

	s.log.Info("sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	stopped := s.cron.Stop()
	cancel := s.cancel
	s.mu.Unlock()

	<-stopped.Done()
	cancel()

	s.mu.Lock()
	s.cron.Remove(s.entry)
	s.mu.Unlock()

	s.log.Info("sweeper stopped")
}

// Reschedule replaces the schedule. It takes effect immediately when the
// sweeper is running.
func (s *Sweeper) Reschedule(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule == s.schedule {
		return nil
	}
	if s.started {
		entry, err := s.cron.AddFunc(schedule, s.tick)
		if err != nil {
			return err
		}
		s.cron.Remove(s.entry)
		s.entry = entry
	}
	s.log.Info("sweep schedule changed", "from", s.schedule, "to", schedule)
	s.schedule = schedule
	return nil
}

// Schedule returns the current schedule.
func (s *Sweeper) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// RunOnce performs a sweep now. It returns ErrSweepInProgress when a
// sweep is already running.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	if !s.running.TryLock() {
		return 0, ErrSweepInProgress
	}
	defer s.running.Unlock()

	start := time.Now()
	removed, err := s.remover.RemoveOldEntries(ctx)
	elapsed := time.Since(start)
	s.metrics.observeSweep(elapsed.Seconds(), err)

	if err != nil {
		s.log.Error("sweep failed", logger.WithError(err), "duration", elapsed)
		return 0, err
	}
	s.log.Info("sweep complete", "removed", removed, "duration", elapsed)
	return removed, nil
}

func (s *Sweeper) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if _, err := s.RunOnce(ctx); errors.Is(err, ErrSweepInProgress) {
		s.log.Warn("skipping sweep, previous sweep still running")
	}
}

// cronLogger adapts the logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, logger.WithError(err))...)
}
