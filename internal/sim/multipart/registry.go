package multipart

import (
	"fmt"
	"sort"
)

// Registry holds the structure types known to a host. Types are registered
// before any placement exists and are read-only afterwards.
type Registry struct {
	byID map[string]*Type
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]*Type{}}
}

func (r *Registry) Register(def Definition) (*Type, error) {
	t, err := NewType(def)
	if err != nil {
		return nil, err
	}
	if _, dup := r.byID[t.id]; dup {
		return nil, fmt.Errorf("structure %s: already registered", t.id)
	}
	r.byID[t.id] = t
	return t, nil
}

func (r *Registry) MustRegister(def Definition) *Type {
	t, err := r.Register(def)
	if err != nil {
		panic(err)
	}
	return t
}

func (r *Registry) Lookup(id string) (*Type, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// Types returns every registered type sorted by id.
func (r *Registry) Types() []*Type {
	out := make([]*Type, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *Registry) Len() int { return len(r.byID) }
