package cmd

import (
	"context"
	"fmt"
	"strconv"

	clierrors "qhist/internal/cli/errors"
	"qhist/internal/cli/output"
	"qhist/internal/storage"
	"qhist/internal/storage/migrate"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: `Inspect and change the schema version. Every other command applies
pending migrations on open, so these are only needed for inspection or to
roll back.`,
}

type migrationStatus struct {
	Version    uint                   `json:"version" yaml:"version"`
	Dirty      bool                   `json:"dirty" yaml:"dirty"`
	Migrations []migrate.MigrationInfo `json:"migrations" yaml:"migrations"`
}

func (s migrationStatus) String() string { return strconv.FormatUint(uint64(s.Version), 10) }

func (s migrationStatus) TableData() *output.Table {
	t := output.NewTable("version", "description", "applied", "checksum")
	for _, m := range s.Migrations {
		applied := "no"
		if m.Applied {
			applied = "yes"
			if m.Version == s.Version && s.Dirty {
				applied = "dirty"
			}
		}
		checksum := m.Checksum
		if len(checksum) > 12 {
			checksum = checksum[:12]
		}
		t.AddRow(strconv.FormatUint(uint64(m.Version), 10), m.Description, applied, checksum)
	}
	return t
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnection(cmd.Context(), func(ctx context.Context, db storage.Store, mc storage.MigrationsConfig) error {
			v, dirty, err := storage.GetMigrationStatus(ctx, db, mc)
			if err != nil {
				return migrationError(err)
			}
			list, err := storage.ListMigrations(ctx, db, mc)
			if err != nil {
				return migrationError(err)
			}
			return newWriter().Write(migrationStatus{Version: v, Dirty: dirty, Migrations: list})
		})
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnection(cmd.Context(), func(ctx context.Context, db storage.Store, mc storage.MigrationsConfig) error {
			if err := storage.RunMigrations(ctx, db, mc); err != nil {
				return migrationError(err)
			}
			v, _, err := storage.GetMigrationStatus(ctx, db, mc)
			if err != nil {
				return migrationError(err)
			}
			newWriter().Success(fmt.Sprintf("schema at version %d", v))
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnection(cmd.Context(), func(ctx context.Context, db storage.Store, mc storage.MigrationsConfig) error {
			if err := storage.RollbackMigration(ctx, db, mc); err != nil {
				return migrationError(err)
			}
			v, _, err := storage.GetMigrationStatus(ctx, db, mc)
			if err != nil {
				return migrationError(err)
			}
			newWriter().Success(fmt.Sprintf("schema at version %d", v))
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd, migrateUpCmd, migrateDownCmd)
}

// withConnection opens the database without applying migrations.
func withConnection(ctx context.Context, fn func(ctx context.Context, db storage.Store, mc storage.MigrationsConfig) error) error {
	sc := storage.ConfigFrom(cfg.Database, cfg.DataDir)
	ctx = storage.WithOperationContext(ctx, storage.NewOperationContext("cli").WithActor(actor(ctx)))

	db, err := storage.Connect(ctx, sc)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, db, sc.Migrations)
}

func migrationError(err error) error {
	return clierrors.Wrap(err, clierrors.CodeMigration, "Migration failed").
		WithSuggestions("Run 'qhist migrate status' to inspect the schema version")
}
