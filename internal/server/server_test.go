package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/txn2/websession/pkg/health"
	"github.com/txn2/websession/pkg/session"
)

type modelMap map[string]any

func (m modelMap) Model(name string) (any, error) {
	return m[name], nil
}

func newTestServer(t *testing.T) (*httptest.Server, *http.Client, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	srv, c := newTestServerWithModel(t, store)
	return srv, c, store
}

func newTestServerWithModel(t *testing.T, store session.SaveHandler) (*httptest.Server, *http.Client) {
	t.Helper()

	cfg := session.Config{
		Handler:       session.DriverModel,
		DriverModel:   session.DriverModelConfig{Model: "mem"},
	}
	manager, err := session.New(cfg, nil, modelMap{"mem": store},
		session.WithLogger(slog.New(slog.DiscardHandler)),
		session.WithRand(func() float64 { return 1 }),
	)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	checker := health.NewChecker()
	checker.SetReady()

	srv := httptest.NewServer(New(manager, checker))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return srv, &http.Client{Jar: jar}
}

// datedStore records the first write of every session.
type datedStore struct {
	*session.MemoryStore
	mu      sync.Mutex
	created map[string]time.Time
}

func newDatedStore() *datedStore {
	return &datedStore{MemoryStore: session.NewMemoryStore(), created: map[string]time.Time{}}
}

func (d *datedStore) Write(ctx context.Context, id string, data []byte) error {
	d.mu.Lock()
	if _, ok := d.created[id]; !ok {
		d.created[id] = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	d.mu.Unlock()
	return d.MemoryStore.Write(ctx, id, data)
}

func (d *datedStore) CreatedAt(_ context.Context, id string) (time.Time, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	created, ok := d.created[id]
	return created, ok, nil
}

func do(t *testing.T, c *http.Client, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, b
}

func TestHealthRoutes(t *testing.T) {
	srv, c, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, _ := do(t, c, http.MethodGet, srv.URL+path, "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestSessionFlow(t *testing.T) {
	srv, c, store := newTestServer(t)

	resp, body := do(t, c, http.MethodGet, srv.URL+"/session", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /session status = %d", resp.StatusCode)
	}
	var first sessionResponse
	if err := json.Unmarshal(body, &first); err != nil {
		t.Fatal(err)
	}
	if !first.New || first.ID == "" || len(first.Namespaces) != 0 {
		t.Errorf("first response = %+v", first)
	}

	resp, _ = do(t, c, http.MethodPut, srv.URL+"/session/cart/items", `["apple","pear"]`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}

	resp, body = do(t, c, http.MethodGet, srv.URL+"/session/cart/items", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET value status = %d", resp.StatusCode)
	}
	var got valueResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	items, ok := got.Value.([]any)
	if !ok || len(items) != 2 || items[0] != "apple" {
		t.Errorf("value = %#v", got.Value)
	}

	_, body = do(t, c, http.MethodGet, srv.URL+"/session", "")
	var second sessionResponse
	if err := json.Unmarshal(body, &second); err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("session id changed: %s -> %s", first.ID, second.ID)
	}
	if second.New {
		t.Error("resumed session reported as new")
	}
	if len(second.Namespaces) != 1 || second.Namespaces[0] != "cart" {
		t.Errorf("namespaces = %v", second.Namespaces)
	}

	resp, _ = do(t, c, http.MethodDelete, srv.URL+"/session/cart/items", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE value status = %d", resp.StatusCode)
	}
	resp, _ = do(t, c, http.MethodGet, srv.URL+"/session/cart/items", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET removed value status = %d, want 404", resp.StatusCode)
	}

	resp, _ = do(t, c, http.MethodDelete, srv.URL+"/session/cart", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE namespace status = %d", resp.StatusCode)
	}
	_, body = do(t, c, http.MethodGet, srv.URL+"/session", "")
	var third sessionResponse
	if err := json.Unmarshal(body, &third); err != nil {
		t.Fatal(err)
	}
	if len(third.Namespaces) != 0 {
		t.Errorf("namespaces after removal = %v", third.Namespaces)
	}

	if store.Len() != 1 {
		t.Errorf("store.Len() = %d, want 1", store.Len())
	}
}

func TestGetSession_CreatedAt(t *testing.T) {
	srv, c := newTestServerWithModel(t, newDatedStore())

	_, body := do(t, c, http.MethodGet, srv.URL+"/session", "")
	var first sessionResponse
	if err := json.Unmarshal(body, &first); err != nil {
		t.Fatal(err)
	}
	if first.CreatedAt != nil {
		t.Errorf("new session created_at = %v, want omitted", first.CreatedAt)
	}

	_, body = do(t, c, http.MethodGet, srv.URL+"/session", "")
	var second sessionResponse
	if err := json.Unmarshal(body, &second); err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if second.CreatedAt == nil || !second.CreatedAt.Equal(want) {
		t.Errorf("created_at = %v, want %v", second.CreatedAt, want)
	}
}

func TestGetSession_NoCreatedAtSupport(t *testing.T) {
	srv, c, _ := newTestServer(t)

	do(t, c, http.MethodGet, srv.URL+"/session", "")
	_, body := do(t, c, http.MethodGet, srv.URL+"/session", "")
	if strings.Contains(string(body), "created_at") {
		t.Errorf("body = %s, want no created_at", body)
	}
}

func TestDestroySession(t *testing.T) {
	srv, c, store := newTestServer(t)

	do(t, c, http.MethodPut, srv.URL+"/session/user/id", `42`)
	if store.Len() != 1 {
		t.Fatalf("store.Len() = %d, want 1", store.Len())
	}

	resp, _ := do(t, c, http.MethodPost, srv.URL+"/session/destroy", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("destroy status = %d", resp.StatusCode)
	}
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d after destroy, want 0", store.Len())
	}

	_, body := do(t, c, http.MethodGet, srv.URL+"/session", "")
	var after sessionResponse
	if err := json.Unmarshal(body, &after); err != nil {
		t.Fatal(err)
	}
	if !after.New {
		t.Error("session after destroy should be new")
	}
}

func TestSetValue_InvalidJSON(t *testing.T) {
	srv, c, _ := newTestServer(t)

	resp, body := do(t, c, http.MethodPut, srv.URL+"/session/a/b", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if !strings.Contains(string(body), "invalid JSON value") {
		t.Errorf("body = %s", body)
	}
}

func TestMissingSession(t *testing.T) {
	w := httptest.NewRecorder()
	(&Handler{}).getSession(w, httptest.NewRequest(http.MethodGet, "/session", http.NoBody))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
