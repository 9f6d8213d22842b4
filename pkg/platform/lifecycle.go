package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// hook is a named pair of start and stop callbacks. Either may be nil.
type hook struct {
	name    string
	onStart func(context.Context) error
	onStop  func(context.Context) error
}

// Lifecycle manages the startup and shutdown of platform components.
// Components stop in the reverse of their registration order.
type Lifecycle struct {
	mu sync.Mutex

	hooks   []hook
	started bool
}

// NewLifecycle creates a new lifecycle manager.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// Append registers a named component with optional start and stop callbacks.
func (l *Lifecycle) Append(name string, onStart, onStop func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook{name: name, onStart: onStart, onStop: onStop})
}

// OnStart registers a callback to run on startup.
func (l *Lifecycle) OnStart(name string, callback func(context.Context) error) {
	l.Append(name, callback, nil)
}

// OnStop registers a callback to run on shutdown.
func (l *Lifecycle) OnStop(name string, callback func(context.Context) error) {
	l.Append(name, nil, callback)
}

// Start runs all start callbacks in registration order. When one fails,
// the components already started are stopped again.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return errors.New("lifecycle already started")
	}

	for i, h := range l.hooks {
		if h.onStart == nil {
			continue
		}
		if err := h.onStart(ctx); err != nil {
			l.rollback(ctx, i)
			return fmt.Errorf("starting %s: %w", h.name, err)
		}
	}

	l.started = true
	return nil
}

// rollback stops the components registered before failedAt, in reverse order.
func (l *Lifecycle) rollback(ctx context.Context, failedAt int) {
	for j := failedAt - 1; j >= 0; j-- {
		h := l.hooks[j]
		if h.onStop == nil {
			continue
		}
		if err := h.onStop(ctx); err != nil {
			slog.Warn("lifecycle rollback: stop callback failed",
				"component", h.name, "error", err)
		}
	}
}

// Stop runs all stop callbacks in reverse order.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil
	}

	var errs []error
	for i := len(l.hooks) - 1; i >= 0; i-- {
		h := l.hooks[i]
		if h.onStop == nil {
			continue
		}
		if err := h.onStop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", h.name, err))
		}
	}

	l.started = false

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}
	return nil
}

// IsStarted returns whether the lifecycle has been started.
func (l *Lifecycle) IsStarted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// Closer is something that can be closed.
type Closer interface {
	Close() error
}

// RegisterCloser registers a closer to be closed on shutdown.
func (l *Lifecycle) RegisterCloser(name string, c Closer) {
	l.OnStop(name, func(_ context.Context) error {
		return c.Close()
	})
}
