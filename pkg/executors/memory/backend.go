// Package memory provides the memory node executor, its storage
// backends, and the context merger that combines multiple memory
// sources feeding a single AI agent node.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Backend is a named memory store. Conversation buffers keep ordered
// turns; entity stores keep keyed facts. Both expose the same surface
// so the executor stays backend-agnostic.
type Backend interface {
	Name() string

	// Store appends or upserts a record under a scope key.
	Store(ctx context.Context, scope string, record map[string]any) error

	// Retrieve returns up to limit records for a scope, most recent first.
	Retrieve(ctx context.Context, scope string, limit int) ([]map[string]any, error)

	// GetContext converts stored records into scored context items for
	// the merger.
	GetContext(ctx context.Context, scope string, limit int) ([]ContextItem, error)
}

// Backends is the registry of configured memory backends.
type Backends struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

func NewBackends() *Backends {
	return &Backends{backends: make(map[string]Backend)}
}

func (b *Backends) Register(backend Backend) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := backend.Name()
	if _, exists := b.backends[name]; exists {
		panic(fmt.Sprintf("memory backend %q registered twice", name))
	}

	b.backends[name] = backend
}

func (b *Backends) Resolve(name string) (Backend, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	backend, ok := b.backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown memory backend %q", name)
	}

	return backend, nil
}
