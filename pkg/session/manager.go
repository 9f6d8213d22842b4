package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand/v2"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// sessionIDBytes is the number of random bytes for session ID generation.
	sessionIDBytes = 16

	// slogKeyError is the slog attribute key for error values.
	slogKeyError = "error"

	// slogKeySessionID is the slog attribute key for session ids.
	slogKeySessionID = "session_id"

	// pastExpires is sent with the nocache and private limiters.
	pastExpires = "Thu, 19 Nov 1981 08:52:00 GMT"
)

// validID matches ids accepted from clients.
var validID = regexp.MustCompile(`^[A-Za-z0-9,-]{22,256}$`)

// Manager runs the session lifecycle for each request against the
// registered SaveHandler.
type Manager struct {
	cfg        Config
	handler    SaveHandler
	serializer Serializer
	newID      func() (string, error)
	random     func() float64
	now        func() time.Time
	logger     *slog.Logger

	gcMu   sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithIDGenerator overrides the configured id generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(m *Manager) {
		m.newID = gen
	}
}

// WithRand sets the random source used for probabilistic GC.
// It must return values in [0, 1).
func WithRand(random func() float64) Option {
	return func(m *Manager) {
		m.random = random
	}
}

// New resolves the configured driver, registers it as the session handler
// and applies the optional settings. drivers defaults to NewDrivers().
func New(cfg Config, drivers *Drivers, models ModelLoader, opts ...Option) (*Manager, error) {
	if cfg.Handler == "" {
		return nil, configError("a session driver is required (session.handler)")
	}
	if drivers == nil {
		drivers = NewDrivers()
	}
	if !drivers.Has(cfg.Handler) {
		return nil, configError("unknown session driver: %s", cfg.Handler)
	}

	handler, err := drivers.New(cfg.Handler, cfg, models)
	if err != nil {
		return nil, fmt.Errorf("creating session driver %s: %w", cfg.Handler, err)
	}

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	serializer, err := NewSerializer(cfg.SerializeHandler)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:        cfg,
		handler:    handler,
		serializer: serializer,
		newID:      generateSessionID,
		random:     mathrand.Float64,
		now:        time.Now,
		logger:     slog.Default(),
	}
	if cfg.IDGenerator == IDGeneratorUUID {
		m.newID = generateUUID
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Handler returns the registered save handler.
func (m *Manager) Handler() SaveHandler {
	return m.handler
}

// Config returns the effective configuration, defaults included.
func (m *Manager) Config() Config {
	return m.cfg
}

// Start opens the handler and loads the session named by the request's
// cookie, or creates a new one. The caller must Commit the returned session.
func (m *Manager) Start(ctx context.Context, r *http.Request) (*Session, error) {
	requested := m.requestedID(r)

	if err := m.handler.Open(ctx, m.cfg.SavePath, m.cfg.Name); err != nil {
		return nil, fmt.Errorf("session: opening handler: %w", err)
	}

	m.maybeGC(ctx)

	s := &Session{
		manager:     m,
		requestedID: requested,
		status:      StatusActive,
		data:        make(Data),
	}

	if requested == "" {
		id, err := m.newID()
		if err != nil {
			m.closeHandler(ctx)
			return nil, fmt.Errorf("session: generating id: %w", err)
		}
		s.id = id
		s.isNew = true
		m.logger.Debug("session: created", slogKeySessionID, id)
		return s, nil
	}

	s.id = requested
	raw, err := m.handler.Read(ctx, requested)
	if err != nil {
		m.closeHandler(ctx)
		return nil, fmt.Errorf("session: reading %s: %w", requested, err)
	}
	s.isNew = len(raw) == 0

	data, err := m.serializer.Decode(raw)
	if err != nil {
		m.logger.Warn("session: discarding undecodable data", slogKeySessionID, requested, slogKeyError, err)
		data = make(Data)
	}
	s.data = data

	if m.cfg.Regenerate {
		if err := s.Regenerate(ctx, m.cfg.DeleteOldSession); err != nil {
			m.closeHandler(ctx)
			return nil, err
		}
	}
	return s, nil
}

// Commit writes an active session's data and closes the handler. Destroyed
// sessions are only closed.
func (m *Manager) Commit(ctx context.Context, s *Session) error {
	if s.status == StatusClosed {
		return nil
	}

	var errs []error
	if s.status == StatusActive {
		if err := m.write(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.handler.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("session: closing handler: %w", err))
	}
	s.status = StatusClosed
	return errors.Join(errs...)
}

func (m *Manager) write(ctx context.Context, s *Session) error {
	b, err := m.serializer.Encode(s.data)
	if err != nil {
		return fmt.Errorf("session: encoding %s: %w", s.id, err)
	}
	if err := m.handler.Write(ctx, s.id, b); err != nil {
		return fmt.Errorf("session: writing %s: %w", s.id, err)
	}
	return nil
}

// GC asks the handler to remove sessions idle for longer than gc_maxlifetime.
func (m *Manager) GC(ctx context.Context) error {
	if err := m.handler.GC(ctx, m.cfg.gcMaxLifetime()); err != nil {
		return fmt.Errorf("session: gc: %w", err)
	}
	return nil
}

// maybeGC runs GC with probability gc_probability/gc_divisor.
func (m *Manager) maybeGC(ctx context.Context) {
	probability := m.cfg.gcProbability()
	if probability <= 0 {
		return
	}
	if m.random() >= float64(probability)/float64(m.cfg.GCDivisor) {
		return
	}
	if err := m.GC(ctx); err != nil {
		m.logger.Warn("session: gc failed", slogKeyError, err)
	}
}

// StartGCRoutine starts a background goroutine that periodically runs GC.
// The goroutine is stopped when Close is called. Calling it while a routine
// is already running is a no-op.
func (m *Manager) StartGCRoutine(interval time.Duration) {
	m.gcMu.Lock()
	defer m.gcMu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.GC(ctx); err != nil {
					m.logger.Warn("session: gc failed", slogKeyError, err)
				}
			}
		}
	}()
}

// Close stops the GC goroutine and waits for it to exit.
// It is safe to call Close even if StartGCRoutine was never called.
func (m *Manager) Close() error {
	m.gcMu.Lock()
	defer m.gcMu.Unlock()
	if m.cancel != nil {
		m.cancel()
		<-m.done
		m.cancel = nil
	}
	return nil
}

// Cookie returns the session cookie for s. Destroyed sessions get an
// expired cookie.
func (m *Manager) Cookie(s *Session) *http.Cookie {
	p := m.cfg.CookieParams
	sameSite, _ := parseSameSite(p.SameSite)
	c := &http.Cookie{
		Name:     m.cfg.Name,
		Value:    s.id,
		Path:     p.Path,
		Domain:   p.Domain,
		Secure:   p.Secure,
		HttpOnly: p.HTTPOnly,
		SameSite: sameSite,
	}
	if s.status == StatusDestroyed {
		c.Value = ""
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		return c
	}
	if p.Lifetime > 0 {
		c.MaxAge = p.Lifetime
		c.Expires = m.now().Add(time.Duration(p.Lifetime) * time.Second)
	}
	return c
}

// needsCookie reports whether the response must carry a Set-Cookie for s.
func (m *Manager) needsCookie(s *Session) bool {
	if s.status == StatusDestroyed {
		return s.requestedID != ""
	}
	return s.id != s.requestedID || m.cfg.CookieParams.Lifetime > 0
}

// CacheHeaders sets the cache-control headers for the configured limiter.
func (m *Manager) CacheHeaders(h http.Header) {
	maxAge := strconv.Itoa(m.cfg.Expiration)
	switch m.cfg.CacheLimiter {
	case CacheLimiterNoCache:
		h.Set("Expires", pastExpires)
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
		h.Set("Pragma", "no-cache")
	case CacheLimiterPrivate:
		h.Set("Expires", pastExpires)
		h.Set("Cache-Control", "private, max-age="+maxAge)
	case CacheLimiterPrivateNoExpire:
		h.Set("Cache-Control", "private, max-age="+maxAge)
	case CacheLimiterPublic:
		expires := m.now().Add(time.Duration(m.cfg.Expiration) * time.Second)
		h.Set("Expires", expires.UTC().Format(http.TimeFormat))
		h.Set("Cache-Control", "public, max-age="+maxAge)
	}
}

// requestedID returns the session id presented by the client, or empty when
// missing or malformed.
func (m *Manager) requestedID(r *http.Request) string {
	if r == nil {
		return ""
	}
	cookie, err := r.Cookie(m.cfg.Name)
	if err != nil {
		return ""
	}
	if !validID.MatchString(cookie.Value) {
		m.logger.Debug("session: ignoring malformed id")
		return ""
	}
	return cookie.Value
}

func (m *Manager) closeHandler(ctx context.Context) {
	if err := m.handler.Close(ctx); err != nil {
		m.logger.Warn("session: closing handler failed", slogKeyError, err)
	}
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// generateUUID creates a random (version 4) UUID session ID.
func generateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating uuid: %w", err)
	}
	return id.String(), nil
}
