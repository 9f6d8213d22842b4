// Package session provides HTTP session management backed by pluggable
// storage models. It defines the SaveHandler contract that storage drivers
// implement, the Manager that runs the per-request session lifecycle, and the
// request-scoped Session with its namespaced key/value view.
package session

import (
	"context"
	"fmt"
)

// DefaultNamespace is the namespace used by the Session shortcuts.
const DefaultNamespace = "default"

// Status describes where a Session is in its lifecycle.
type Status int

const (
	// StatusActive is a started session whose data will be written on commit.
	StatusActive Status = iota
	// StatusDestroyed is a session whose stored data has been removed.
	StatusDestroyed
	// StatusClosed is a session that has been committed.
	StatusClosed
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusDestroyed:
		return "destroyed"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Session is the state of one client's session for the duration of a request.
// It is owned by the request and is not safe for concurrent use.
type Session struct {
	manager *Manager

	id          string
	requestedID string
	isNew       bool
	status      Status
	data        Data
}

// ID returns the current session identifier.
func (s *Session) ID() string {
	return s.id
}

// IsNew reports whether no stored data existed for the session at start.
func (s *Session) IsNew() bool {
	return s.isNew
}

// Status returns the lifecycle status.
func (s *Session) Status() Status {
	return s.status
}

// Set stores value under key in the default namespace.
func (s *Session) Set(key string, value any) {
	s.data.Set(DefaultNamespace, key, value)
}

// Get returns the value under key in the default namespace, or nil.
func (s *Session) Get(key string) any {
	return s.data.Get(DefaultNamespace, key)
}

// Exists reports whether key is set in the default namespace.
func (s *Session) Exists(key string) bool {
	return s.data.Exists(DefaultNamespace, key)
}

// Remove deletes key from the default namespace.
func (s *Session) Remove(key string) {
	s.data.Remove(DefaultNamespace, key)
}

// Namespace returns a view over the named namespace. The namespace is only
// created once a value is set through the view.
func (s *Session) Namespace(name string) Namespace {
	return Namespace{session: s, name: name}
}

// RemoveNamespace deletes the whole namespace.
func (s *Session) RemoveNamespace(name string) {
	s.data.RemoveNamespace(name)
}

// Namespaces returns the names of the namespaces holding data.
func (s *Session) Namespaces() []string {
	return s.data.Namespaces()
}

// Destroy removes the session's stored data and clears it. Nothing is
// written when the session is committed.
func (s *Session) Destroy(ctx context.Context) error {
	if s.status != StatusActive {
		return ErrDestroyed
	}
	if err := s.manager.handler.Destroy(ctx, s.id); err != nil {
		return fmt.Errorf("session: destroying %s: %w", s.id, err)
	}
	s.data = make(Data)
	s.status = StatusDestroyed
	s.manager.logger.Debug("session: destroyed", slogKeySessionID, s.id)
	return nil
}

// Regenerate moves the session data to a freshly generated id. When
// deleteOld is set the data stored under the previous id is destroyed.
func (s *Session) Regenerate(ctx context.Context, deleteOld bool) error {
	if s.status != StatusActive {
		return ErrDestroyed
	}
	newID, err := s.manager.newID()
	if err != nil {
		return fmt.Errorf("session: generating id: %w", err)
	}
	oldID := s.id
	if deleteOld {
		if err := s.manager.handler.Destroy(ctx, oldID); err != nil {
			return fmt.Errorf("session: destroying %s: %w", oldID, err)
		}
	}
	s.id = newID
	s.manager.logger.Debug("session: regenerated", slogKeySessionID, newID, "previous_id", oldID)
	return nil
}

// Namespace is a view over one namespace of a Session.
type Namespace struct {
	session *Session
	name    string
}

// Name returns the namespace name.
func (n Namespace) Name() string {
	return n.name
}

// Set stores value under key, creating the namespace if needed.
func (n Namespace) Set(key string, value any) {
	n.session.data.Set(n.name, key, value)
}

// Get returns the value under key, or nil when the namespace or key is absent.
func (n Namespace) Get(key string) any {
	return n.session.data.Get(n.name, key)
}

// Exists reports whether the namespace exists and holds key.
func (n Namespace) Exists(key string) bool {
	return n.session.data.Exists(n.name, key)
}

// Remove deletes key from the namespace.
func (n Namespace) Remove(key string) {
	n.session.data.Remove(n.name, key)
}

// Keys returns the keys stored in the namespace.
func (n Namespace) Keys() []string {
	return n.session.data.Keys(n.name)
}
