// Package integration hosts the adapters that action, external action,
// and tool nodes call out through.
package integration

import (
	"fmt"
	"sort"
	"sync"

	"github.com/strandkit/strand/pkg/protocol"
)

// Registry maps adapter names to implementations. Registration happens
// during startup wiring; lookups happen on the execution hot path.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]protocol.IntegrationAdapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]protocol.IntegrationAdapter)}
}

// Register adds an adapter. Registering the same name twice is a wiring
// bug and panics.
func (r *Registry) Register(adapter protocol.IntegrationAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if _, exists := r.adapters[name]; exists {
		panic(fmt.Sprintf("integration adapter %q registered twice", name))
	}

	r.adapters[name] = adapter
}

// Resolve returns the adapter for a name.
func (r *Registry) Resolve(name string) (protocol.IntegrationAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown integration adapter %q", name)
	}

	return adapter, nil
}

// Names lists registered adapters in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
