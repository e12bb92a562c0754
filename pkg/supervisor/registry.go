package supervisor

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/JaydenOK/jayden-framework-sub000/pkg/queue"
)

// Registry resolves the callback names used in the topology.
type Registry struct {
	mu        sync.RWMutex
	callbacks map[string]queue.Callback
}

// NewRegistry returns a registry holding callbacks.
func NewRegistry(callbacks ...queue.Callback) (*Registry, error) {
	r := &Registry{callbacks: make(map[string]queue.Callback)}
	for _, cb := range callbacks {
		if err := r.Register(cb); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds cb under cb.Name().
func (r *Registry) Register(cb queue.Callback) error {
	if cb == nil {
		return queue.ErrCallbackNil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := cb.Name()
	if _, ok := r.callbacks[name]; ok {
		return fmt.Errorf("%w: %s", ErrCallbackConflict, name)
	}
	r.callbacks[name] = cb
	return nil
}

// Lookup returns the callback registered under name.
func (r *Registry) Lookup(name string) (queue.Callback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cb, ok := r.callbacks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCallback, name)
	}
	return cb, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.callbacks))
}
