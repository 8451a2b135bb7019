// Package migrate provides database migration management with checksums and locking.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"qhist/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql
var postgresFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

// MigrationsTable is the golang-migrate version table.
const MigrationsTable = "qhist_schema_migrations"

// ChecksumsTable records the checksum of every applied migration file.
const ChecksumsTable = "qhist_schema_checksums"

// ErrChecksumMismatch is returned when an applied migration file changed.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")

// Config holds migration configuration.
type Config struct {
	// VerifyChecksums determines if checksums should be verified on startup.
	// Default: true
	VerifyChecksums bool

	// OnChecksumMismatch determines behavior when checksum verification fails.
	// Options: "fail" (abort startup), "warn" (log warning), "ignore"
	// Default: "fail"
	OnChecksumMismatch string

	// LockTimeout is how long to wait for migration lock.
	// Default: 15 seconds
	LockTimeout time.Duration

	// Log receives warnings. Defaults to logger.Default().
	Log *logger.Logger
}

// DefaultConfig returns default migration configuration.
func DefaultConfig() Config {
	return Config{
		VerifyChecksums:    true,
		OnChecksumMismatch: "fail",
		LockTimeout:        15 * time.Second,
	}
}

// Manager handles database migrations.
type Manager struct {
	cfg       Config
	backend   string
	db        *sql.DB
	m         *migrate.Migrate
	checksums map[string]string // file name -> checksum
}

// NewPostgresManager creates a migration manager for PostgreSQL.
func NewPostgresManager(db *sql.DB, cfg Config) (*Manager, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	return newManager("postgres", db, driver, postgresFS, "migrations/postgres", cfg)
}

// NewSQLiteManager creates a migration manager for SQLite.
func NewSQLiteManager(db *sql.DB, cfg Config) (*Manager, error) {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	return newManager("sqlite", db, driver, sqliteFS, "migrations/sqlite", cfg)
}

func newManager(backend string, db *sql.DB, driver database.Driver, fsys embed.FS, path string, cfg Config) (*Manager, error) {
	if cfg.Log == nil {
		cfg.Log = logger.Default()
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultConfig().LockTimeout
	}

	sourceDriver, err := iofs.New(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, backend, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = cfg.LockTimeout

	mgr := &Manager{
		cfg:       cfg,
		backend:   backend,
		db:        db,
		m:         m,
		checksums: make(map[string]string),
	}

	if err := mgr.calculateChecksums(fsys, path); err != nil {
		return nil, fmt.Errorf("failed to calculate checksums: %w", err)
	}

	return mgr, nil
}

// calculateChecksums computes SHA-256 checksums for all migration files.
func (m *Manager) calculateChecksums(fsys embed.FS, path string) error {
	entries, err := fs.ReadDir(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to read migration directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(fsys, path+"/"+entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		m.checksums[entry.Name()] = fmt.Sprintf("%x", sha256.Sum256(content))
	}

	return nil
}

// Up runs all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	if m.cfg.VerifyChecksums {
		if err := m.verifyChecksums(ctx); err != nil {
			switch m.cfg.OnChecksumMismatch {
			case "warn":
				m.cfg.Log.Warn("checksum verification failed", "backend", m.backend, "error", err)
			case "ignore":
			default:
				return fmt.Errorf("checksum verification failed: %w", err)
			}
		}
	}

	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	if err := m.storeChecksums(ctx); err != nil {
		m.cfg.Log.Warn("failed to store migration checksums", "backend", m.backend, "error", err)
	}

	return nil
}

// Down rolls back one migration.
// This should only be called by admin commands with explicit confirmation.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.m.Steps(-1); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}

// Version returns the current migration version.
func (m *Manager) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (m *Manager) placeholder(n int) string {
	if m.backend == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (m *Manager) ensureChecksumsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (filename TEXT PRIMARY KEY, checksum TEXT NOT NULL)",
		ChecksumsTable,
	))
	return err
}

// verifyChecksums compares recorded checksums with the embedded files.
// A recorded file that no longer exists is also a mismatch.
func (m *Manager) verifyChecksums(ctx context.Context) error {
	if err := m.ensureChecksumsTable(ctx); err != nil {
		return fmt.Errorf("failed to create checksums table: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, fmt.Sprintf("SELECT filename, checksum FROM %s", ChecksumsTable))
	if err != nil {
		return fmt.Errorf("failed to read checksums: %w", err)
	}
	defer rows.Close()

	var mismatched []string
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return fmt.Errorf("failed to scan checksum: %w", err)
		}
		if current, ok := m.checksums[name]; !ok || current != sum {
			mismatched = append(mismatched, name)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(mismatched) > 0 {
		sort.Strings(mismatched)
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, strings.Join(mismatched, ", "))
	}
	return nil
}

// storeChecksums records checksums for the migrations applied so far.
func (m *Manager) storeChecksums(ctx context.Context) error {
	version, _, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := m.ensureChecksumsTable(ctx); err != nil {
		return err
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (filename, checksum) VALUES (%s, %s) ON CONFLICT (filename) DO UPDATE SET checksum = excluded.checksum",
		ChecksumsTable, m.placeholder(1), m.placeholder(2),
	)
	for name, sum := range m.checksums {
		if v, ok := fileVersion(name); !ok || v > version {
			continue
		}
		if _, err := m.db.ExecContext(ctx, query, name, sum); err != nil {
			return fmt.Errorf("failed to store checksum for %s: %w", name, err)
		}
	}
	return nil
}

// fileVersion parses the numeric prefix of "000001_name.up.sql".
func fileVersion(name string) (uint, bool) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}

// Close closes the migration manager and the database handle it was given.
func (m *Manager) Close() error {
	srcErr, dbErr := m.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

// MigrationInfo contains information about a migration.
type MigrationInfo struct {
	Version     uint   `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
	Applied     bool   `json:"applied" yaml:"applied"`
	Checksum    string `json:"checksum" yaml:"checksum"`
}

// List returns information about all up migrations.
func (m *Manager) List(ctx context.Context) ([]MigrationInfo, error) {
	currentVersion, dirty, err := m.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	var migrations []MigrationInfo
	for name, sum := range m.checksums {
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		v, ok := fileVersion(name)
		if !ok {
			continue
		}

		_, desc, _ := strings.Cut(strings.TrimSuffix(name, ".up.sql"), "_")
		migrations = append(migrations, MigrationInfo{
			Version:     v,
			Description: strings.ReplaceAll(desc, "_", " "),
			Applied:     err == nil && v <= currentVersion && !(dirty && v == currentVersion),
			Checksum:    sum,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}
