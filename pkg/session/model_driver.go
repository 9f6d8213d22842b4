package session

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// DriverModel is the name the model driver is registered under.
const DriverModel = "model"

// ModelDriver adapts a named storage model to SaveHandler. Every call is
// forwarded to the model and its result returned unchanged.
type ModelDriver struct {
	config DriverModelConfig
	model  SaveHandler
}

// NewModelDriver resolves cfg.DriverModel.Model through models and checks
// that it implements SaveHandler.
func NewModelDriver(cfg Config, models ModelLoader) (*ModelDriver, error) {
	name := cfg.DriverModel.Model
	if name == "" {
		return nil, configError("session.driver_model.model is required")
	}
	if models == nil {
		return nil, configError("no model loader available for model %q", name)
	}

	resolved, err := models.Model(name)
	if err != nil {
		return nil, fmt.Errorf("%w: loading model %q: %w", ErrConfiguration, name, err)
	}
	if isNil(resolved) {
		return nil, configError("model %q not found", name)
	}

	model, ok := resolved.(SaveHandler)
	if !ok {
		return nil, capabilityError("model %q (%T) must implement open, close, read, write, destroy and gc", name, resolved)
	}

	return &ModelDriver{
		config: cfg.DriverModel,
		model:  model,
	}, nil
}

// isNil reports whether v is nil or a typed nil such as (*MemoryStore)(nil).
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// Open forwards to the model.
func (d *ModelDriver) Open(ctx context.Context, savePath, name string) error {
	return d.model.Open(ctx, savePath, name) //nolint:wrapcheck // forwarded unchanged
}

// Close forwards to the model.
func (d *ModelDriver) Close(ctx context.Context) error {
	return d.model.Close(ctx) //nolint:wrapcheck // forwarded unchanged
}

// Read forwards to the model.
func (d *ModelDriver) Read(ctx context.Context, id string) ([]byte, error) {
	return d.model.Read(ctx, id) //nolint:wrapcheck // forwarded unchanged
}

// Write forwards to the model.
func (d *ModelDriver) Write(ctx context.Context, id string, data []byte) error {
	return d.model.Write(ctx, id, data) //nolint:wrapcheck // forwarded unchanged
}

// Destroy forwards to the model.
func (d *ModelDriver) Destroy(ctx context.Context, id string) error {
	return d.model.Destroy(ctx, id) //nolint:wrapcheck // forwarded unchanged
}

// GC forwards to the model's own GC.
func (d *ModelDriver) GC(ctx context.Context, maxLifetime time.Duration) error {
	return d.model.GC(ctx, maxLifetime) //nolint:wrapcheck // forwarded unchanged
}

// Model returns the resolved storage model.
func (d *ModelDriver) Model() SaveHandler {
	return d.model
}

// Config returns the driver configuration.
func (d *ModelDriver) Config() DriverModelConfig {
	return d.config
}

// Verify interface compliance.
var _ SaveHandler = (*ModelDriver)(nil)
