// Package main provides the qhistd daemon, which runs the retention sweep
// on a schedule and serves Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"qhist/internal/config"
	"qhist/internal/logger"
	"qhist/internal/queryhistory"
	"qhist/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Import storage backends to register factories
	_ "qhist/internal/storage/postgres"
	_ "qhist/internal/storage/sqlite"
)

// Daemon manages the qhistd components and their lifecycle.
type Daemon struct {
	cfg     *config.Config
	cfgFile string
	log     *logger.Logger

	provider *config.Provider
	registry *prometheus.Registry
	metrics  *queryhistory.Metrics
	db       storage.Store
	store    *queryhistory.Store
	sweeper  *queryhistory.Sweeper
	watcher  *config.Watcher
	server   *http.Server

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewDaemon creates a new daemon instance.
func NewDaemon(cfg *config.Config, cfgFile string, log *logger.Logger) *Daemon {
	storage.SetLogger(log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Daemon{
		cfg:      cfg,
		cfgFile:  cfgFile,
		log:      log,
		provider: config.NewProvider(cfg),
		registry: registry,
		metrics:  queryhistory.NewMetrics(registry),
	}
}

// Start opens storage, starts the sweeper, the metrics endpoint and the
// config watcher, in that order.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon already running")
	}

	ctx = storage.WithOperationContext(ctx, storage.NewOperationContext("qhistd").WithActor("sweeper"))

	if err := d.startStorage(ctx); err != nil {
		return logger.WrapError(err, "failed to start storage")
	}

	if err := d.startSweeper(ctx); err != nil {
		d.stopStorage()
		return logger.WrapError(err, "failed to start sweeper")
	}

	if d.cfg.Metrics.Enabled {
		if err := d.startMetrics(); err != nil {
			d.stopSweeper()
			d.stopStorage()
			return logger.WrapError(err, "failed to start metrics server")
		}
	}

	d.startWatcher()

	d.running = true
	d.log.Info("daemon started successfully")
	return nil
}

// Stop shuts components down in reverse start order.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.log.Info("stopping daemon components")

	var errs []error

	if d.watcher != nil {
		d.watcher.Stop()
		d.watcher = nil
	}

	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
		d.server = nil
	}

	d.stopSweeper()

	if err := d.stopStorage(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	d.running = false
	return errors.Join(errs...)
}

func (d *Daemon) startStorage(ctx context.Context) error {
	sc := storage.ConfigFrom(d.cfg.Database, d.cfg.DataDir)
	d.log.Debug("storage configuration",
		"backend", sc.Backend,
		"sqlite_path", sc.SQLite.Path,
		"verify_checksums", sc.Migrations.VerifyChecksums,
	)

	db, err := storage.Open(ctx, sc)
	if err != nil {
		return err
	}
	d.db = db

	stats, err := db.Stats(ctx)
	if err != nil {
		d.log.Warn("failed to read storage stats", "error", err)
	} else {
		d.log.Info("storage ready", "backend", stats.Backend, "records", stats.Records)
	}
	return nil
}

func (d *Daemon) stopStorage() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *Daemon) startSweeper(ctx context.Context) error {
	d.store = queryhistory.NewStore(d.db.QueryHistory(), d.provider,
		queryhistory.WithLogger(d.log.With("component", "queryhistory")),
		queryhistory.WithMetrics(d.metrics),
	)

	schedule := d.cfg.QueryHistory.SweepSchedule
	if schedule == "" {
		schedule = queryhistory.DefaultSweepSchedule
	}

	sweeper, err := queryhistory.NewSweeper(d.store, schedule, d.log.With("component", "sweeper"), d.metrics)
	if err != nil {
		return err
	}
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	d.sweeper = sweeper

	// Run once at startup so a long schedule does not leave expired rows behind.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := sweeper.RunOnce(ctx); err != nil && !errors.Is(err, queryhistory.ErrSweepInProgress) {
			d.log.Warn("initial sweep failed", "error", err)
		}
	}()
	return nil
}

// stopSweeper stops scheduled sweeps and waits for the startup sweep, which
// must finish before storage is closed.
func (d *Daemon) stopSweeper() {
	if d.sweeper != nil {
		d.sweeper.Stop()
		d.sweeper = nil
	}
	d.wg.Wait()
}

func (d *Daemon) startMetrics() error {
	path := d.cfg.Metrics.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{Registry: d.registry}))
	mux.Handle("/healthz", healthHandler(d.db))

	d.server = &http.Server{
		Addr:              d.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		d.server = nil
		return err
	case <-time.After(100 * time.Millisecond):
	}

	d.log.Info("metrics server listening", "addr", d.cfg.Metrics.Listen, "path", path)
	return nil
}

// healthHandler reports 200 while db answers pings. The server is shut
// down before db is closed.
func healthHandler(db storage.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
}

// startWatcher applies config file edits. Query history settings and the
// sweep schedule take effect immediately; other sections need a restart.
func (d *Daemon) startWatcher() {
	w, err := config.NewWatcher(d.cfgFile)
	if err != nil {
		d.log.Info("config watching disabled", "reason", err)
		return
	}

	w.OnError(func(err error) {
		d.log.Warn("config reload failed, keeping previous configuration", "error", err)
	})
	w.OnChange(d.applyConfig)
	w.Start()
	d.watcher = w

	d.log.Info("watching config file", "path", w.File())
}

func (d *Daemon) applyConfig(next *config.Config) {
	prev := d.provider.Current()
	d.provider.Update(next)

	d.log.Info("configuration reloaded",
		"result_max_rows", next.QueryHistory.ResultMaxRows,
		"retention_days", next.QueryHistory.RetentionTimeInDays,
	)

	if next.QueryHistory.SweepSchedule != prev.QueryHistory.SweepSchedule && d.sweeper != nil {
		schedule := next.QueryHistory.SweepSchedule
		if schedule == "" {
			schedule = queryhistory.DefaultSweepSchedule
		}
		if err := d.sweeper.Reschedule(schedule); err != nil {
			d.log.Warn("keeping previous sweep schedule", "schedule", schedule, "error", err)
		}
	}

	if next.Database != prev.Database || next.Metrics != prev.Metrics {
		d.log.Warn("database and metrics changes take effect after restart")
	}
}
