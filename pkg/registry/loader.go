package registry

import (
	"fmt"
	"maps"
	"slices"
)

// ModelKindConfig holds configuration for a model kind.
type ModelKindConfig struct {
	Enabled   bool                      `yaml:"enabled"`
	Instances map[string]map[string]any `yaml:"instances"`
	Config    map[string]any            `yaml:"config"`
}

// Loader loads models from configuration.
type Loader struct {
	registry *Registry
}

// NewLoader creates a new model loader.
func NewLoader(registry *Registry) *Loader {
	return &Loader{registry: registry}
}

// Load creates and registers every instance of every enabled kind. Kinds
// and instances are loaded in name order.
func (l *Loader) Load(models map[string]ModelKindConfig) error {
	for _, kind := range slices.Sorted(maps.Keys(models)) {
		kindCfg := models[kind]
		if !kindCfg.Enabled {
			continue
		}

		for _, name := range slices.Sorted(maps.Keys(kindCfg.Instances)) {
			// Merge kind-level config with instance config
			mergedCfg := make(map[string]any, len(kindCfg.Config)+len(kindCfg.Instances[name]))
			maps.Copy(mergedCfg, kindCfg.Config)
			maps.Copy(mergedCfg, kindCfg.Instances[name])

			modelCfg := ModelConfig{
				Kind:   kind,
				Name:   name,
				Config: mergedCfg,
			}

			if err := l.registry.CreateAndRegister(modelCfg); err != nil {
				return fmt.Errorf("loading model %s/%s: %w", kind, name, err)
			}
		}
	}

	return nil
}
