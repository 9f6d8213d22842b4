// Package postgres provides PostgreSQL storage for sessions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/websession/pkg/session"
)

// DefaultTable is the table created by the bundled migrations.
const DefaultTable = "sessions"

// upsertSuffix turns the insert into a write that replaces existing data.
// created_at keeps the value of the first write.
const upsertSuffix = "ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at"

// psq is a statement builder configured for PostgreSQL placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// validTable matches optionally schema-qualified identifiers.
var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Config configures the PostgreSQL session store.
type Config struct {
	// Table holds the sessions. Defaults to DefaultTable.
	Table string
}

// Store implements session.SaveHandler using PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// New creates a new PostgreSQL session store. The database handle is owned
// by the caller.
func New(db *sql.DB, cfg Config) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres session store requires a database")
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("invalid session table name %q", table)
	}
	return &Store{
		db:    db,
		table: table,
		now:   time.Now,
	}, nil
}

// Open is a no-op; the connection pool is shared across requests.
func (*Store) Open(_ context.Context, _, _ string) error {
	return nil
}

// Close is a no-op; the pool outlives the request.
func (*Store) Close(_ context.Context) error {
	return nil
}

// Read returns the stored data for id. Returns nil, nil if not found.
func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	query, args, err := psq.Select("data").From(s.table).Where(sq.Eq{"id": id}).ToSql()
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
	return data, nil
}

// Write inserts or replaces the data stored for id.
func (s *Store) Write(ctx context.Context, id string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	now := s.now().UTC()
	query, args, err := psq.Insert(s.table).
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
	query, args, err := psq.Delete(s.table).Where(sq.Eq{"id": id}).ToSql()
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
	cutoff := s.now().Add(-maxLifetime).UTC()
	query, args, err := psq.Delete(s.table).Where(sq.Lt{"updated_at": cutoff}).ToSql()
	if err != nil {
		return fmt.Errorf("building gc query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("cleaning up sessions: %w", err)
	}
	return nil
}

// CreatedAt returns when id was first written. ok is false when nothing is
// stored under id.
func (s *Store) CreatedAt(ctx context.Context, id string) (created time.Time, ok bool, err error) {
	query, args, err := psq.Select("created_at").From(s.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("building created_at query: %w", err)
	}

	err = s.db.QueryRowContext(ctx, query, args...).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading session created_at: %w", err)
	}
	return created.UTC(), true, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	query, args, err := psq.Select("COUNT(*)").From(s.table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return count, nil
}

// Verify interface compliance.
var _ session.SaveHandler = (*Store)(nil)
