// Package extension maps names to implementations. A Registry is built once
// per website and passed by reference; there is no process-wide registry.
package extension

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named implementations of one kind plus an optional default.
type Registry[T any] struct {
	kind       string
	mu         sync.RWMutex
	entries    map[string]T
	defaultKey string
}

// New creates an empty registry. kind is only used in error messages.
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, entries: make(map[string]T)}
}

// Register adds or overrides the implementation for name.
func (r *Registry[T]) Register(name string, impl T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = impl
}

// Get returns the implementation registered under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.entries[name]
	return impl, ok
}

// MustGet returns the implementation or an error naming the registry kind.
func (r *Registry[T]) MustGet(name string) (T, error) {
	impl, ok := r.Get(name)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s %q", r.kind, name)
	}
	return impl, nil
}

// Names returns all registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefault marks name as the default implementation.
func (r *Registry[T]) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return fmt.Errorf("cannot set default %s: %q is not registered", r.kind, name)
	}
	r.defaultKey = name
	return nil
}

// Default returns the default implementation, if one was set.
func (r *Registry[T]) Default() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultKey == "" {
		var zero T
		return zero, false
	}
	impl, ok := r.entries[r.defaultKey]
	return impl, ok
}

// Len returns the number of registered implementations.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
