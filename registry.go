package autotune

import (
	"fmt"
	"sort"
	"sync"
)

// ModelDefinition describes a registered model type.
type ModelDefinition struct {
	// Name is the model type name used in Config.Model.
	Name string

	// Description is a human readable summary.
	Description string

	// SearchSpace is the static hyperparameter search space of the type.
	SearchSpace SearchSpace

	// New constructs a fresh, unfitted instance from a candidate.
	New Factory
}

// Registry maps model type names to their definitions. It is an explicit
// value: build one, register types on it and hand it to whatever needs model
// lookup.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelDefinition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]ModelDefinition),
	}
}

// Register adds a model type. Registering an empty or already registered
// name, a nil factory or an invalid search space fails.
func (r *Registry) Register(def ModelDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: model definition without a name", ErrValidation)
	}

	if def.New == nil {
		return fmt.Errorf("%w: model %q has no factory", ErrValidation, def.Name)
	}

	if err := def.SearchSpace.Validate(); err != nil {
		return fmt.Errorf("model %q: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[def.Name]; exists {
		return fmt.Errorf("%w: model %q already registered", ErrValidation, def.Name)
	}

	r.models[def.Name] = def

	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (ModelDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.models[name]
	if !ok {
		return ModelDefinition{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}

	return def, nil
}

// Names returns the registered model type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
