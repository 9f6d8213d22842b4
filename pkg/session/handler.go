package session

import (
	"context"
	"time"
)

// SaveHandler is the storage contract the Manager drives for every request.
// A returned error signals that the operation failed; the Manager decides how
// to react.
type SaveHandler interface {
	// Open prepares the handler for the named session under savePath.
	Open(ctx context.Context, savePath, name string) error

	// Close releases whatever Open acquired.
	Close(ctx context.Context) error

	// Read returns the serialized session data for id. Returns nil, nil if
	// nothing is stored.
	Read(ctx context.Context, id string) ([]byte, error)

	// Write persists the serialized session data under id.
	Write(ctx context.Context, id string, data []byte) error

	// Destroy removes any data stored under id.
	Destroy(ctx context.Context, id string) error

	// GC removes sessions that have not been written within maxLifetime.
	GC(ctx context.Context, maxLifetime time.Duration) error
}

// ModelLoader resolves a storage model by name. The returned value is
// capability-checked by the caller.
type ModelLoader interface {
	Model(name string) (any, error)
}
