package composite

import (
	"sort"
	"sync"
)

// Registry holds the built composites by year for the status server.
type Registry struct {
	mu         sync.RWMutex
	composites map[int]*Composite
}

func NewRegistry() *Registry {
	return &Registry{composites: make(map[int]*Composite)}
}

// Put replaces the composite of c.Year.
func (r *Registry) Put(c *Composite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.composites[c.Year] = c
}

func (r *Registry) Get(year int) (*Composite, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.composites[year]
	return c, ok
}

// List returns the composites in ascending year.
func (r *Registry) List() []*Composite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Composite
	for _, c := range r.composites {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}
