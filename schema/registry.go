package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

// Registry holds compiled models by name
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register compiles a definition and stores the result
func (r *Registry) Register(def types.ModelDefinition) (*Model, error) {
	m, err := Compile(def)
	if err != nil {
		return nil, fmt.Errorf("failed to compile model %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrModelExists, m.Name)
	}
	r.models[m.Name] = m
	return m, nil
}

// Get returns a compiled model
func (r *Registry) Get(name string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return m, nil
}

// Names lists registered model names in order
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
