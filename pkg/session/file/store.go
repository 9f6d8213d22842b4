// Package file provides file system storage for sessions. Each session is
// stored in its own file named sess_<id> inside the save path.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/txn2/websession/pkg/session"
)

const (
	// filePrefix prefixes every session file name.
	filePrefix = "sess_"

	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600
)

// Config configures the file session store.
type Config struct {
	// Dir is used when the session save path is empty.
	Dir string
	// FilePerm is the permission of session files. Defaults to 0600.
	FilePerm os.FileMode
}

// Store implements session.SaveHandler on the local file system.
type Store struct {
	mu       sync.RWMutex
	dir      string
	fallback string
	filePerm os.FileMode
	now      func() time.Time
}

// New creates a file session store.
func New(cfg Config) *Store {
	perm := cfg.FilePerm
	if perm == 0 {
		perm = defaultFilePerm
	}
	return &Store{
		fallback: cfg.Dir,
		filePerm: perm,
		now:      time.Now,
	}
}

// Open selects the directory sessions are stored in and creates it if
// needed. savePath wins over the configured directory.
func (s *Store) Open(_ context.Context, savePath, _ string) error {
	dir := savePath
	if dir == "" {
		dir = s.fallback
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	s.mu.Lock()
	s.dir = dir
	s.mu.Unlock()
	return nil
}

// Close is a no-op; files are not held open between calls.
func (*Store) Close(_ context.Context) error {
	return nil
}

// Read returns the contents of the session file, or nil if it does not exist.
func (s *Store) Read(_ context.Context, id string) ([]byte, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path) //nolint:gosec // path is built from a validated id
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	return b, nil
}

// Write replaces the session file atomically.
func (s *Store) Write(_ context.Context, id string, data []byte) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := tmp.Chmod(s.filePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting session file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

// Destroy removes the session file. A missing file is not an error.
func (s *Store) Destroy(_ context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// GC removes session files not modified within maxLifetime.
func (s *Store) GC(ctx context.Context, maxLifetime time.Duration) error {
	dir := s.currentDir()
	if dir == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing session directory: %w", err)
	}

	cutoff := s.now().Add(-maxLifetime)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return fmt.Errorf("gc interrupted: %w", ctx.Err())
		}
		if entry.IsDir() || !isSessionFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing expired session file: %w", err)
		}
		removed++
	}
	if removed > 0 {
		slog.Debug("session: file gc", "dir", dir, "removed", removed)
	}
	return nil
}

// Dir returns the directory selected by the last Open, or the configured
// directory before the store is opened.
func (s *Store) Dir() string {
	if dir := s.currentDir(); dir != "" {
		return dir
	}
	return s.fallback
}

func (s *Store) currentDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dir
}

func (s *Store) path(id string) (string, error) {
	dir := s.currentDir()
	if dir == "" {
		return "", errors.New("file store used before open")
	}
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(dir, filePrefix+id), nil
}

func isSessionFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && !strings.HasSuffix(name, ".tmp")
}

// Verify interface compliance.
var _ session.SaveHandler = (*Store)(nil)
