package kernel

import (
	"errors"
	"fmt"
	"sync"
)

// ErrProviderNotFound is returned when a category is empty or a name
// is unknown.
var ErrProviderNotFound = errors.New("provider not found")

type entry struct {
	name     string
	provider any
}

// Registry is a category/name service locator. Per category it keeps
// the insertion order of registrations plus an optional explicit
// default. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string][]entry
	defaults map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string][]entry),
		defaults: make(map[string]string),
	}
}

// Register adds a provider under (category, name). Re-registering an
// existing pair replaces the provider in place without reordering.
func (r *Registry) Register(category, name string, provider any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries[category] {
		if e.name == name {
			r.entries[category][i].provider = provider
			return
		}
	}
	r.entries[category] = append(r.entries[category], entry{name: name, provider: provider})
}

// SetDefault marks the named entry as the category default.
func (r *Registry) SetDefault(category, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[category] = name
}

// Get returns the provider registered under (category, name). An empty
// name selects the explicit default if set, otherwise the first
// registered entry.
func (r *Registry) Get(category, name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.entries[category]
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: category %q is empty", ErrProviderNotFound, category)
	}
	if name == "" {
		if def, ok := r.defaults[category]; ok {
			name = def
		} else {
			return entries[0].provider, nil
		}
	}
	for _, e := range entries {
		if e.name == name {
			return e.provider, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrProviderNotFound, category, name)
}

// Has reports whether (category, name) is registered.
func (r *Registry) Has(category, name string) bool {
	_, err := r.Get(category, name)
	return err == nil
}

// Names returns the registered names for a category in insertion order.
func (r *Registry) Names(category string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries[category]))
	for _, e := range r.entries[category] {
		names = append(names, e.name)
	}
	return names
}

// Remove deletes (category, name). Unknown pairs are ignored.
func (r *Registry) Remove(category, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries[category]
	for i, e := range entries {
		if e.name == name {
			r.entries[category] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(r.entries[category]) == 0 {
		delete(r.entries, category)
	}
	if r.defaults[category] == name {
		delete(r.defaults, category)
	}
}
