package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qhist/internal/config"
	"qhist/internal/logger"
	"qhist/internal/version"

	flag "github.com/spf13/pflag"
)

var (
	cfgFile     string
	showVersion bool
)

func init() {
	flag.StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/qhist/config.yaml)")
	flag.BoolVar(&showVersion, "version", false, "show version")
}

func main() {
	flag.Parse()

	if showVersion {
		info := version.Get()
		fmt.Printf("qhistd %s\n", info.String())
		fmt.Println(info.Full())
		os.Exit(0)
	}

	if cfgFile == "" {
		path, created, err := config.GenerateConfigIfNotExists("", "yaml")
		if err == nil && created {
			stdlog.Printf("Created default config at: %s", path)
		}
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = log.Close() }()

	rc := logger.NewDaemonContext("qhistd")
	ctx := logger.WithRunContext(context.Background(), rc)
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting qhistd",
		"version", version.Get().String(),
		"backend", cfg.Database.Backend,
		"data_dir", cfg.DataDir,
		"retention_days", cfg.QueryHistory.RetentionTimeInDays,
		"sweep_schedule", cfg.QueryHistory.SweepSchedule,
		"request_id", rc.RequestID,
	)

	daemon := NewDaemon(cfg, cfgFile, log)
	if err := daemon.Start(ctx); err != nil {
		log.Error("failed to start daemon", logger.ErrorChain(err))
		_ = log.Close()
		os.Exit(1)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	log.Info("received shutdown signal", "request_id", rc.RequestID)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := daemon.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}

	log.Info("qhistd stopped", "request_id", rc.RequestID)
}
