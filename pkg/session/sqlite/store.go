// Package sqlite provides SQLite storage for sessions using the CGO-free
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/txn2/websession/pkg/database/migrate"
	"github.com/txn2/websession/pkg/session"
)

const (
	// table is created by the bundled SQLite migrations.
	table = "sessions"

	memoryPath = ":memory:"

	dsnPragmas = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	upsertSuffix = "ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at"
)

// ssq is a statement builder configured for SQLite placeholders.
var ssq = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Config configures the SQLite session store.
type Config struct {
	// Path is the database file, or ":memory:".
	Path string
}

// Store implements session.SaveHandler on a SQLite database it owns.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens and migrates the SQLite database at cfg.Path.
func New(cfg Config) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite session store requires a path")
	}

	dsn := path
	if path != memoryPath {
		dsn = filepath.Clean(path) + dsnPragmas
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if path == memoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if err := migrate.RunSQLite(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Open is a no-op; the database stays open for the life of the store.
func (*Store) Open(_ context.Context, _, _ string) error {
	return nil
}

// Close is a no-op; use Shutdown to release the database.
func (*Store) Close(_ context.Context) error {
	return nil
}

// Read returns the stored data for id. Returns nil, nil if not found.
func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	query, args, err := ssq.Select("data").From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building read query: %w", err)
	}

	var data []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Write inserts or replaces the data stored for id.
func (s *Store) Write(ctx context.Context, id string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	now := s.now().UnixMilli()
	query, args, err := ssq.Insert(table).
		Columns("id", "data", "created_at", "updated_at").
		Values(id, data, now, now).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("building write query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Destroy removes a session.
func (s *Store) Destroy(ctx context.Context, id string) error {
	query, args, err := ssq.Delete(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// GC removes sessions not written within maxLifetime.
func (s *Store) GC(ctx context.Context, maxLifetime time.Duration) error {
	cutoff := s.now().Add(-maxLifetime).UnixMilli()
	query, args, err := ssq.Delete(table).Where(sq.Lt{"updated_at": cutoff}).ToSql()
	if err != nil {
		return fmt.Errorf("building gc query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("cleaning up sessions: %w", err)
	}
	return nil
}

// CreatedAt returns when the session was first written. ok is false when the
// session does not exist.
func (s *Store) CreatedAt(ctx context.Context, id string) (created time.Time, ok bool, err error) {
	query, args, err := ssq.Select("created_at").From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("building created_at query: %w", err)
	}

	var millis int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&millis)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading session created_at: %w", err)
	}
	return time.UnixMilli(millis).UTC(), true, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging sqlite db: %w", err)
	}
	return nil
}

// Shutdown closes the underlying database.
func (s *Store) Shutdown(_ context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing sqlite db: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ session.SaveHandler = (*Store)(nil)
