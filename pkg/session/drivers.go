package session

import (
	"maps"
	"slices"
	"sync"
)

// DriverFactory creates a SaveHandler from the session configuration.
type DriverFactory func(cfg Config, models ModelLoader) (SaveHandler, error)

// Drivers maps driver names to factories.
type Drivers struct {
	mu        sync.RWMutex
	factories map[string]DriverFactory
}

// NewDrivers creates a driver registry with the model driver registered.
func NewDrivers() *Drivers {
	d := &Drivers{
		factories: make(map[string]DriverFactory),
	}
	d.Register(DriverModel, func(cfg Config, models ModelLoader) (SaveHandler, error) {
		return NewModelDriver(cfg, models)
	})
	return d
}

// Register adds or replaces the factory for name.
func (d *Drivers) Register(name string, factory DriverFactory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.factories[name] = factory
}

// Has reports whether a driver is registered under name.
func (d *Drivers) Has(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.factories[name]
	return ok
}

// Names returns the registered driver names in sorted order.
func (d *Drivers) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.factories))
}

// New instantiates the driver registered under name.
func (d *Drivers) New(name string, cfg Config, models ModelLoader) (SaveHandler, error) {
	d.mu.RLock()
	factory, ok := d.factories[name]
	d.mu.RUnlock()

	if !ok {
		return nil, configError("unknown session driver: %s", name)
	}
	if factory == nil {
		return nil, configError("unable to load session driver, registration malformed: %s", name)
	}

	handler, err := factory(cfg, models)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, configError("session driver %s returned no handler", name)
	}
	return handler, nil
}
