// Package cmd implements the qhist command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"qhist/cmd/qhist/cmd/configcmd"
	clierrors "qhist/internal/cli/errors"
	"qhist/internal/cli/help"
	"qhist/internal/cli/middleware"
	"qhist/internal/cli/output"
	"qhist/internal/cli/style"
	"qhist/internal/config"
	"qhist/internal/logger"
	"qhist/internal/queryhistory"
	"qhist/internal/storage"
	_ "qhist/internal/storage/postgres"
	_ "qhist/internal/storage/sqlite"

	"github.com/spf13/cobra"
)

var (
	// cfgFile is the path to the config file (set via --config flag)
	cfgFile string

	// cfg holds the loaded configuration
	cfg *config.Config

	// log is the logger instance
	log *logger.Logger

	// Global output flags
	outputFormat string
	verboseMode  bool
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "qhist",
	Short: "Store and query executed query history",
	Long: `qhist records executed database queries and lets you look them up,
filter them and expire old entries.

Records live in an embedded SQLite database by default; set
database.backend to "postgres" to use a shared PostgreSQL server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		logCfg := cfg.Log
		if verboseMode {
			logCfg.Level = "debug"
		}
		if noColor {
			logCfg.NoColor = true
		}

		var err error
		log, err = logger.New(logCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		storage.SetLogger(log)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if log != nil {
			return log.Close()
		}
		return nil
	},
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	for _, c := range []*cobra.Command{
		saveCmd, getCmd, listCmd, countCmd, purgeCmd, statsCmd, migrateCmd, versionCmd,
		configcmd.NewCommand(Config, ConfigFile),
	} {
		rootCmd.AddCommand(c)
	}

	help.Install(rootCmd, func() bool { return !noColor })
	middleware.ApplyRecursive(rootCmd,
		middleware.Logging(Log),
		middleware.Timing(func() bool { return verboseMode }),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if log != nil {
			log.Debug("command error", logger.ErrorChain(err))
		}
		stderr := os.Stderr
		if style.IsTerminal(stderr) && !noColor {
			fmt.Fprintln(stderr, clierrors.Display(err, style.New(stderr, true)))
		} else {
			fmt.Fprint(stderr, clierrors.DisplaySimple(err))
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/qhist/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format (table, json, yaml, quiet)")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "debug logging and timing")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func loadConfig(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return clierrors.Wrap(err, clierrors.CodeConfigInvalid, "Failed to load configuration").
			WithSuggestions("Generate a default file with 'qhist config generate'")
	}

	if cmd.Flags().Changed("output") {
		cfg.Output.Format = outputFormat
	}
	if _, err := output.ParseFormat(cfg.Output.Format); err != nil {
		return clierrors.Wrap(err, clierrors.CodeConfigInvalid, "Invalid output format")
	}
	return nil
}

// Config returns the current configuration.
func Config() *config.Config {
	return cfg
}

// ConfigFile returns the --config flag value.
func ConfigFile() string {
	return cfgFile
}

// Log returns the logger instance.
func Log() *logger.Logger {
	return log
}

func newWriter() *output.Writer {
	format, _ := output.ParseFormat(cfg.Output.Format)
	return output.NewWriter(format).WithColor(!noColor && !cfg.Log.NoColor)
}

// openDatabase opens the configured database and brings its schema up to date.
func openDatabase(ctx context.Context) (storage.Store, error) {
	return storage.Open(ctx, storage.ConfigFrom(cfg.Database, cfg.DataDir))
}

// withStore opens the store, runs fn and closes the database.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, qs *queryhistory.Store) error) error {
	return withDatabase(cmd, func(ctx context.Context, _ storage.Store, qs *queryhistory.Store) error {
		return fn(ctx, qs)
	})
}

// withDatabase is withStore for commands that also need the backend itself.
func withDatabase(cmd *cobra.Command, fn func(ctx context.Context, db storage.Store, qs *queryhistory.Store) error) error {
	ctx := storage.WithOperationContext(cmd.Context(),
		storage.NewOperationContext("cli").WithActor(actor(cmd.Context())))

	db, err := openDatabase(ctx)
	if err != nil {
		return logger.WrapError(err, "open database")
	}
	defer db.Close()

	qs := queryhistory.NewStore(db.QueryHistory(), config.NewProvider(cfg),
		queryhistory.WithLogger(logger.LoggerFrom(cmd.Context())))
	return fn(ctx, db, qs)
}

func actor(ctx context.Context) string {
	if rc := logger.RunContextFrom(ctx); rc != nil && rc.User != "" {
		return rc.User
	}
	return "unknown"
}
