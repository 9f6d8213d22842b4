// Package server wires the session-backed HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/txn2/websession/pkg/health"
	"github.com/txn2/websession/pkg/session"
)

// Version is set at build time.
var Version = "dev"

// maxValueBytes limits the size of a value accepted by PUT.
const maxValueBytes = 1 << 20

// Handler serves the health endpoints and the session API.
type Handler struct {
	mux      *http.ServeMux
	sessions *session.Manager
	health   *health.Checker
}

// New creates the HTTP handler. Session routes run behind the manager's
// middleware so every request is committed after the route returns.
func New(sessions *session.Manager, checker *health.Checker) *Handler {
	h := &Handler{
		mux:      http.NewServeMux(),
		sessions: sessions,
		health:   checker,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	if h.health != nil {
		h.mux.HandleFunc("GET /healthz", h.health.LivenessHandler())
		h.mux.HandleFunc("GET /readyz", h.health.ReadinessHandler())
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /session", h.getSession)
	api.HandleFunc("POST /session/destroy", h.destroySession)
	api.HandleFunc("DELETE /session/{namespace}", h.removeNamespace)
	api.HandleFunc("GET /session/{namespace}/{key}", h.getValue)
	api.HandleFunc("PUT /session/{namespace}/{key}", h.setValue)
	api.HandleFunc("DELETE /session/{namespace}/{key}", h.removeValue)

	h.mux.Handle("/session", h.sessions.Middleware(api))
	h.mux.Handle("/session/", h.sessions.Middleware(api))
}

type sessionResponse struct {
	ID         string     `json:"id"`
	New        bool       `json:"new"`
	Namespaces []string   `json:"namespaces"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// creationTimer is implemented by models that record when a session was
// first written.
type creationTimer interface {
	CreatedAt(ctx context.Context, id string) (time.Time, bool, error)
}

type valueResponse struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     any    `json:"value"`
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}
	namespaces := s.Namespaces()
	if namespaces == nil {
		namespaces = []string{}
	}
	resp := sessionResponse{
		ID:         s.ID(),
		New:        s.IsNew(),
		Namespaces: namespaces,
	}
	if !s.IsNew() {
		resp.CreatedAt = h.createdAt(r.Context(), s.ID())
	}
	writeJSON(w, http.StatusOK, resp)
}

// createdAt looks up the creation time of a stored session. It returns nil
// when the model does not track creation times or the lookup fails.
func (h *Handler) createdAt(ctx context.Context, id string) *time.Time {
	if h.sessions == nil {
		return nil
	}
	var model any = h.sessions.Handler()
	if driver, ok := model.(*session.ModelDriver); ok {
		model = driver.Model()
	}
	ct, ok := model.(creationTimer)
	if !ok {
		return nil
	}
	created, found, err := ct.CreatedAt(ctx, id)
	if err != nil || !found {
		return nil
	}
	return &created
}

func (*Handler) getValue(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}
	ns, key := r.PathValue("namespace"), r.PathValue("key")
	view := s.Namespace(ns)
	if !view.Exists(key) {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Namespace: ns, Key: key, Value: view.Get(key)})
}

func (*Handler) setValue(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	var value any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxValueBytes)).Decode(&value); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON value")
		return
	}

	ns, key := r.PathValue("namespace"), r.PathValue("key")
	s.Namespace(ns).Set(key, value)
	writeJSON(w, http.StatusOK, valueResponse{Namespace: ns, Key: key, Value: value})
}

func (*Handler) removeValue(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}
	s.Namespace(r.PathValue("namespace")).Remove(r.PathValue("key"))
	w.WriteHeader(http.StatusNoContent)
}

func (*Handler) removeNamespace(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}
	s.RemoveNamespace(r.PathValue("namespace"))
	w.WriteHeader(http.StatusNoContent)
}

func (*Handler) destroySession(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}
	if err := s.Destroy(r.Context()); err != nil {
		if errors.Is(err, session.ErrDestroyed) {
			writeError(w, http.StatusConflict, "session already destroyed")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to destroy session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requestSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "no session")
	}
	return s, ok
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
