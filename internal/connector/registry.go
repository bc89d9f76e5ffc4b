package connector

import (
	"sort"
	"sync"

	"github.com/observeo/remedy-engine/internal/domain"
)

// Registry is a thread-safe registry of action connectors keyed by name.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]ActionConnector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]ActionConnector),
	}
}

// Register adds a connector to the registry.
// Returns ErrConnectorUnavailable if one with the same name is already registered.
func (r *Registry) Register(c ActionConnector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[c.Name()]; exists {
		return domain.NewValidationError("connector already registered: " + c.Name())
	}
	r.connectors[c.Name()] = c
	return nil
}

// Get returns the named connector, or ErrConnectorUnavailable if not found.
func (r *Registry) Get(name string) (ActionConnector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[name]
	if !ok {
		return nil, domain.ErrConnectorUnavailable
	}
	return c, nil
}

// List returns all registered connector names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
