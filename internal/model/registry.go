package model

import (
	"sort"
	"strconv"
	"sync"
)

// Registry is the in-memory index of model descriptors, addressable by slug
// or by numeric id. Readers get a consistent view; a full reload swaps both
// indexes in one step.
type Registry struct {
	mu     sync.RWMutex
	bySlug map[string]*Model
	byID   map[int64]*Model
}

func NewRegistry() *Registry {
	return &Registry{
		bySlug: map[string]*Model{},
		byID:   map[int64]*Model{},
	}
}

// Lookup resolves a model by slug, by numeric id, or by a decimal string.
func (r *Registry) Lookup(key any) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch k := key.(type) {
	case string:
		if m, ok := r.bySlug[k]; ok {
			return m, true
		}
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			m, ok := r.byID[id]
			return m, ok
		}
		return nil, false
	case int64:
		m, ok := r.byID[k]
		return m, ok
	case int:
		m, ok := r.byID[int64(k)]
		return m, ok
	default:
		return nil, false
	}
}

// Swap replaces the whole registry with a freshly built set of models.
func (r *Registry) Swap(models []*Model) {
	bySlug := make(map[string]*Model, len(models))
	byID := make(map[int64]*Model, len(models))
	for _, m := range models {
		bySlug[m.Slug] = m
		byID[m.ID] = m
	}
	r.mu.Lock()
	r.bySlug = bySlug
	r.byID = byID
	r.mu.Unlock()
}

// Merge folds one descriptor into both indexes without touching the rest.
func (r *Registry) Merge(m *Model) {
	r.mu.Lock()
	r.bySlug[m.Slug] = m
	r.byID[m.ID] = m
	r.mu.Unlock()
}

// Rename merges a descriptor whose slug changed, evicting the old slug so
// lookups stop resolving it immediately.
func (r *Registry) Rename(oldSlug string, m *Model) {
	r.mu.Lock()
	if oldSlug != m.Slug {
		delete(r.bySlug, oldSlug)
	}
	r.bySlug[m.Slug] = m
	r.byID[m.ID] = m
	r.mu.Unlock()
}

// All returns the loaded models ordered by id.
func (r *Registry) All() []*Model {
	r.mu.RLock()
	out := make([]*Model, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
