package session

import (
	"fmt"
	"net/http"
)

// Middleware starts a session for every request, makes it available through
// FromContext, and commits it once next returns. The session cookie and cache
// headers are added before the first byte of the response is written.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Start(r.Context(), r)
		if err != nil {
			m.logger.Error("session: failed to start", slogKeyError, err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		sw := &sessionWriter{
			ResponseWriter: w,
			manager:        m,
			session:        s,
		}
		next.ServeHTTP(sw, r.WithContext(NewContext(r.Context(), s)))

		// Nothing written yet: headers still go out with the implicit 200.
		sw.writeSessionHeaders()

		if err := m.Commit(r.Context(), s); err != nil {
			m.logger.Error("session: failed to commit", slogKeySessionID, s.ID(), slogKeyError, err)
		}
	})
}

// sessionWriter wraps http.ResponseWriter to inject the session cookie and
// cache headers before the first write.
type sessionWriter struct {
	http.ResponseWriter
	manager       *Manager
	session       *Session
	headerWritten bool
}

func (w *sessionWriter) writeSessionHeaders() {
	if w.headerWritten {
		return
	}
	w.headerWritten = true
	if w.manager.needsCookie(w.session) {
		http.SetCookie(w.ResponseWriter, w.manager.Cookie(w.session))
	}
	w.manager.CacheHeaders(w.ResponseWriter.Header())
}

// WriteHeader injects the session headers before delegating to the wrapped writer.
func (w *sessionWriter) WriteHeader(statusCode int) {
	w.writeSessionHeaders()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.writeSessionHeaders()
	n, err := w.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("writing response: %w", err)
	}
	return n, nil
}

// Flush implements http.Flusher for streaming handlers.
func (w *sessionWriter) Flush() {
	w.writeSessionHeaders()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
