package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const (
	testModelName = "sql_sessions"
	testSessID    = "0123456789abcdef0123456789abcdef"
	testSessID2   = "fedcba9876543210fedcba9876543210"
)

var errTestStorage = errors.New("storage unavailable")

// mapLoader resolves models from a map.
type mapLoader map[string]any

func (l mapLoader) Model(name string) (any, error) {
	m, ok := l[name]
	if !ok {
		return nil, errors.New("model not found: " + name)
	}
	return m, nil
}

// recordingModel wraps a MemoryStore and records every call.
type recordingModel struct {
	*MemoryStore

	mu          sync.Mutex
	calls       []string
	openArgs    [2]string
	gcLifetimes []time.Duration

	openErr    error
	readErr    error
	writeErr   error
	destroyErr error
	gcErr      error
	closeErr   error
}

func newRecordingModel() *recordingModel {
	return &recordingModel{MemoryStore: NewMemoryStore()}
}

func (m *recordingModel) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *recordingModel) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *recordingModel) count(call string) int {
	n := 0
	for _, c := range m.callLog() {
		if c == call {
			n++
		}
	}
	return n
}

func (m *recordingModel) Open(ctx context.Context, savePath, name string) error {
	m.record("open")
	m.mu.Lock()
	m.openArgs = [2]string{savePath, name}
	m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	return m.MemoryStore.Open(ctx, savePath, name)
}

func (m *recordingModel) Close(ctx context.Context) error {
	m.record("close")
	if m.closeErr != nil {
		return m.closeErr
	}
	return m.MemoryStore.Close(ctx)
}

func (m *recordingModel) Read(ctx context.Context, id string) ([]byte, error) {
	m.record("read")
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.MemoryStore.Read(ctx, id)
}

func (m *recordingModel) Write(ctx context.Context, id string, data []byte) error {
	m.record("write")
	if m.writeErr != nil {
		return m.writeErr
	}
	return m.MemoryStore.Write(ctx, id, data)
}

func (m *recordingModel) Destroy(ctx context.Context, id string) error {
	m.record("destroy")
	if m.destroyErr != nil {
		return m.destroyErr
	}
	return m.MemoryStore.Destroy(ctx, id)
}

func (m *recordingModel) GC(ctx context.Context, maxLifetime time.Duration) error {
	m.record("gc")
	m.mu.Lock()
	m.gcLifetimes = append(m.gcLifetimes, maxLifetime)
	m.mu.Unlock()
	if m.gcErr != nil {
		return m.gcErr
	}
	return m.MemoryStore.GC(ctx, maxLifetime)
}

// writelessModel has every capability except Write.
type writelessModel struct{}

func (writelessModel) Open(_ context.Context, _, _ string) error          { return nil }
func (writelessModel) Close(_ context.Context) error                      { return nil }
func (writelessModel) Read(_ context.Context, _ string) ([]byte, error)   { return nil, nil }
func (writelessModel) Destroy(_ context.Context, _ string) error          { return nil }
func (writelessModel) GC(_ context.Context, _ time.Duration) error        { return nil }

// modelConfig returns a Config using the model driver backed by testModelName.
func modelConfig() Config {
	return Config{
		Handler:     DriverModel,
		DriverModel: DriverModelConfig{Model: testModelName},
	}
}

// noGC disables probabilistic GC in tests.
func noGC() Option {
	return WithRand(func() float64 { return 1 })
}

// fixedIDs returns an id generator yielding ids in order.
func fixedIDs(ids ...string) Option {
	var mu sync.Mutex
	return WithIDGenerator(func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(ids) == 0 {
			return "", errors.New("no more ids")
		}
		id := ids[0]
		ids = ids[1:]
		return id, nil
	})
}

// encodeData encodes d with the default serializer.
func encodeData(t *testing.T, d Data) []byte {
	t.Helper()
	ser, err := NewSerializer(defaultSerializerName)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ser.Encode(d)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// decodeData decodes b with the default serializer.
func decodeData(t *testing.T, b []byte) Data {
	t.Helper()
	ser, err := NewSerializer(defaultSerializerName)
	if err != nil {
		t.Fatal(err)
	}
	d, err := ser.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
