package handler

import (
	"fmt"
	"sort"
	"sync"
)

// Registry provides a shared name -> factory registry.
type Registry[T any] struct {
	handlers map[string]T
	mu       sync.RWMutex
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		handlers: make(map[string]T),
	}
}

func (r *Registry[T]) Register(name string, handler T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("empty name")
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%s already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
