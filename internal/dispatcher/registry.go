package dispatcher

import (
	"fmt"
	"sort"
	"sync"

	"github.com/smilemakc/workflowrt/internal/models"
)

// Registry is the executor registry behind the Manager interface.
// Registration happens at startup (builtin.RegisterAll) or through admin
// paths; dispatch reads dominate, so an RWMutex guards the map.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry returns an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// NewManager returns the registry as a Manager. Built-in executors are
// registered separately via the builtin package to avoid import cycles.
func NewManager() Manager {
	return NewRegistry()
}

// Register binds an executor to a node type, replacing any previous
// binding for that type.
func (r *Registry) Register(nodeType string, executor Executor) error {
	if nodeType == "" {
		return fmt.Errorf("node type cannot be empty")
	}
	if executor == nil {
		return fmt.Errorf("executor cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[nodeType] = executor
	return nil
}

// Get resolves a node type to its executor.
func (r *Registry) Get(nodeType string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrExecutorNotFound, nodeType)
	}
	return executor, nil
}

// Has reports whether an executor is registered for nodeType.
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[nodeType]
	return ok
}

// List returns the registered node types, sorted for stable startup logs.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for nodeType := range r.executors {
		types = append(types, nodeType)
	}
	sort.Strings(types)
	return types
}

// Unregister removes the executor for nodeType.
func (r *Registry) Unregister(nodeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executors[nodeType]; !ok {
		return fmt.Errorf("%w: %s", models.ErrExecutorNotFound, nodeType)
	}
	delete(r.executors, nodeType)
	return nil
}
