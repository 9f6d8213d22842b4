// Package migrate provides database migration support using golang-migrate.
// Schemas for the PostgreSQL and SQLite session stores are embedded in the
// binary.
package migrate

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Dialect selects the migration set and database driver.
type Dialect string

const (
	// Postgres migrates a PostgreSQL database (lib/pq).
	Postgres Dialect = "postgres"
	// SQLite migrates a SQLite database (modernc.org/sqlite).
	SQLite Dialect = "sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// migrator is the subset of *migrate.Migrate used by this package.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
}

// migratorFactory builds a migrator; replaced in tests.
var migratorFactory = newMigrator

func newMigrator(db *sql.DB, dialect Dialect) (migrator, error) {
	var (
		driver database.Driver
		err    error
	)
	switch dialect {
	case Postgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	case SQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported migration dialect: %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s driver: %w", dialect, err)
	}

	source, err := iofs.New(migrations, sourceDir(dialect))
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

func sourceDir(dialect Dialect) string {
	return "migrations/" + string(dialect)
}

// Run executes all pending PostgreSQL migrations.
// It applies migrations in order and is idempotent - already applied migrations are skipped.
func Run(db *sql.DB) error {
	return RunDialect(db, Postgres)
}

// RunSQLite executes all pending SQLite migrations.
func RunSQLite(db *sql.DB) error {
	return RunDialect(db, SQLite)
}

// RunDialect executes all pending migrations for dialect.
func RunDialect(db *sql.DB, dialect Dialect) error {
	m, err := migratorFactory(db, dialect)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("getting migration version: %w", err)
	}

	if dirty {
		slog.Warn("database migration state is dirty", "dialect", dialect, "version", version)
	} else {
		slog.Info("database migrations complete", "dialect", dialect, "version", version)
	}

	return nil
}

// Version returns the current PostgreSQL migration version.
func Version(db *sql.DB) (uint, bool, error) {
	m, err := migratorFactory(db, Postgres)
	if err != nil {
		return 0, false, err
	}
	return m.Version() //nolint:wrapcheck // migrate errors are descriptive
}

// Down rolls back all PostgreSQL migrations.
// Use with caution - this will destroy all data.
func Down(db *sql.DB) error {
	m, err := migratorFactory(db, Postgres)
	if err != nil {
		return err
	}

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back migrations: %w", err)
	}

	return nil
}

// Steps applies n PostgreSQL migrations (positive = up, negative = down).
func Steps(db *sql.DB, n int) error {
	m, err := migratorFactory(db, Postgres)
	if err != nil {
		return err
	}

	if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("stepping migrations: %w", err)
	}

	return nil
}
