package venue

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps venue names to venues.
type Registry struct {
	mu     sync.RWMutex
	venues map[string]Venue
}

// NewRegistry creates a registry holding vs.
func NewRegistry(vs ...Venue) *Registry {
	r := &Registry{venues: make(map[string]Venue, len(vs))}
	for _, v := range vs {
		r.Register(v)
	}
	return r
}

// Register adds or replaces a venue under its Name.
func (r *Registry) Register(v Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[v.Name()] = v
}

// Get returns the venue registered as name.
func (r *Registry) Get(name string) (Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[name]
	if !ok {
		return nil, fmt.Errorf("venue: %q not registered", name)
	}
	return v, nil
}

// Names returns registered venue names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.venues))
	for n := range r.venues {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
