package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/txn2/websession/pkg/session"
)

// ErrModelNotFound is returned when no model is registered under a name.
var ErrModelNotFound = errors.New("model not found")

type entry struct {
	kind  string
	model any
}

// Registry manages storage model registration and lifecycle.
type Registry struct {
	mu sync.RWMutex

	// Registered models by name
	models map[string]entry

	// Factory functions by kind
	factories map[string]ModelFactory
}

// NewRegistry creates a new model registry.
func NewRegistry() *Registry {
	return &Registry{
		models:    make(map[string]entry),
		factories: make(map[string]ModelFactory),
	}
}

// RegisterFactory registers a model factory for a kind.
func (r *Registry) RegisterFactory(kind string, factory ModelFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Register adds a model to the registry.
func (r *Registry) Register(name string, model any) error {
	return r.register("", name, model)
}

func (r *Registry) register(kind, name string, model any) error {
	if name == "" {
		return errors.New("model name is required")
	}
	if model == nil {
		return fmt.Errorf("model %s is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[name]; exists {
		return fmt.Errorf("model %s already registered", name)
	}
	r.models[name] = entry{kind: kind, model: model}
	return nil
}

// CreateAndRegister creates a model from config and registers it.
func (r *Registry) CreateAndRegister(cfg ModelConfig) error {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown model kind: %s", cfg.Kind)
	}

	model, err := factory(cfg.Name, cfg.Config)
	if err != nil {
		return fmt.Errorf("creating model %s/%s: %w", cfg.Kind, cfg.Name, err)
	}

	if err := r.register(cfg.Kind, cfg.Name, model); err != nil {
		shutdown(model)
		return err
	}
	return nil
}

// Get retrieves a model by name.
func (r *Registry) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.models[name]
	return e.model, ok
}

// Model resolves a model by name for the session model driver.
func (r *Registry) Model(name string) (any, error) {
	model, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return model, nil
}

// Kind returns the kind a model was created from, or empty for models
// registered directly.
func (r *Registry) Kind(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[name].kind
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.models))
}

// Close shuts down every registered model that holds resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(r.models)) {
		s, ok := r.models[name].model.(Shutdowner)
		if !ok {
			continue
		}
		if err := s.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("model %s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing models: %w", errors.Join(errs...))
	}
	return nil
}

func shutdown(model any) {
	if s, ok := model.(Shutdowner); ok {
		_ = s.Shutdown(context.Background())
	}
}

// Verify interface compliance.
var _ session.ModelLoader = (*Registry)(nil)
