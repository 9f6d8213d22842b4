// Package registry provides storage model registration and management. The
// Registry resolves models by name for the session model driver.
package registry

import "context"

// ModelFactory creates a storage model from configuration.
type ModelFactory func(name string, config map[string]any) (any, error)

// ModelConfig holds configuration for a model instance.
type ModelConfig struct {
	Kind   string
	Name   string
	Config map[string]any
}

// Shutdowner is implemented by models holding resources that outlive a
// request, such as a database they opened themselves.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}
