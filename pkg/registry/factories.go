package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/txn2/websession/pkg/session"
	"github.com/txn2/websession/pkg/session/file"
	"github.com/txn2/websession/pkg/session/postgres"
	"github.com/txn2/websession/pkg/session/sqlite"
)

// Built-in model kinds.
const (
	KindMemory   = "memory"
	KindFile     = "file"
	KindPostgres = "postgres"
	KindSQLite   = "sqlite"
)

// Deps holds shared resources handed to built-in factories.
type Deps struct {
	// DB is the platform PostgreSQL database. Required by the postgres kind.
	DB *sql.DB
}

// RegisterBuiltinFactories registers all built-in model factories.
func RegisterBuiltinFactories(r *Registry, deps Deps) {
	r.RegisterFactory(KindMemory, MemoryFactory)
	r.RegisterFactory(KindFile, FileFactory)
	r.RegisterFactory(KindPostgres, PostgresFactory(deps.DB))
	r.RegisterFactory(KindSQLite, SQLiteFactory)
}

// MemoryFactory creates an in-memory session model.
func MemoryFactory(_ string, _ map[string]any) (any, error) {
	return session.NewMemoryStore(), nil
}

// FileFactory creates a file system session model.
// Config keys: dir, file_perm.
func FileFactory(_ string, cfg map[string]any) (any, error) {
	perm, err := getFileMode(cfg, "file_perm")
	if err != nil {
		return nil, err
	}
	return file.New(file.Config{
		Dir:      getString(cfg, "dir"),
		FilePerm: perm,
	}), nil
}

// PostgresFactory returns a factory for PostgreSQL session models backed by db.
// Config keys: table.
func PostgresFactory(db *sql.DB) ModelFactory {
	return func(name string, cfg map[string]any) (any, error) {
		if db == nil {
			return nil, fmt.Errorf("postgres model %s requires database.dsn", name)
		}
		return postgres.New(db, postgres.Config{Table: getString(cfg, "table")})
	}
}

// SQLiteFactory creates a SQLite session model.
// Config keys: path.
func SQLiteFactory(name string, cfg map[string]any) (any, error) {
	path := getString(cfg, "path")
	if path == "" {
		return nil, fmt.Errorf("sqlite model %s requires path", name)
	}
	return sqlite.New(sqlite.Config{Path: path})
}

func getString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// getFileMode accepts an integer or an octal string such as "0640".
func getFileMode(cfg map[string]any, key string) (os.FileMode, error) {
	switch v := cfg[key].(type) {
	case nil:
		return 0, nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("invalid %s: %d", key, v)
		}
		return os.FileMode(v), nil
	case string:
		n, err := strconv.ParseUint(v, 8, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		return os.FileMode(n), nil
	default:
		return 0, errors.New("invalid " + key + ": expected integer or octal string")
	}
}
