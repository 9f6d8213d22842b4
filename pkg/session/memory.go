package session

import (
	"context"
	"slices"
	"sync"
	"time"
)

// memoryEntry is one stored session blob.
type memoryEntry struct {
	data      []byte
	updatedAt time.Time
}

// MemoryStore implements SaveHandler using an in-memory map. Data is lost
// when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

// Open is a no-op; the store needs no per-request setup.
func (*MemoryStore) Open(_ context.Context, _, _ string) error {
	return nil
}

// Close is a no-op.
func (*MemoryStore) Close(_ context.Context) error {
	return nil
}

// Read returns a copy of the data stored under id, or nil if absent.
func (s *MemoryStore) Read(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return slices.Clone(entry.data), nil
}

// Write stores a copy of data under id.
func (s *MemoryStore) Write(_ context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = memoryEntry{
		data:      slices.Clone(data),
		updatedAt: s.now(),
	}
	return nil
}

// Destroy removes a session.
func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// GC removes sessions not written within maxLifetime.
func (s *MemoryStore) GC(_ context.Context, maxLifetime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxLifetime)
	for id, entry := range s.sessions {
		if entry.updatedAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
	return nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Verify interface compliance.
var _ SaveHandler = (*MemoryStore)(nil)
