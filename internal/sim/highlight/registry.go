// Package highlight keeps short-lived markers on cells that blocked a
// structure placement, and draws them as fading red wireframe cubes.
//
// A Registry is owned by whatever drives the tick and render loop. It is not
// safe for concurrent use: Notify, OnTick and OnRender are expected to run on
// that one goroutine.
package highlight

import "multipart.dev/internal/sim/cell"

// DefaultLifetime is how many ticks a fresh highlight stays visible.
const DefaultLifetime = 60

type Entry struct {
	Pos       cell.Pos `json:"pos"`
	Remaining int      `json:"remaining"`
}

// Registry is an insertion-ordered map from cell to remaining ticks.
type Registry struct {
	lifetime int
	order    []cell.Pos
	left     map[cell.Pos]int
	color    Color
	closed   bool
}

func New(lifetime int) *Registry {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Registry{
		lifetime: lifetime,
		left:     map[cell.Pos]int{},
		color:    Red,
	}
}

func (r *Registry) Lifetime() int { return r.lifetime }

// SetColor changes the RGB of drawn boxes. Alpha is always derived from the
// remaining lifetime.
func (r *Registry) SetColor(c Color) { r.color = c }

// Notify (re)starts the highlight on pos at the full lifetime. Re-notifying
// an active cell resets it; it never accumulates.
func (r *Registry) Notify(pos cell.Pos) {
	if r.closed {
		return
	}
	if _, ok := r.left[pos]; !ok {
		r.order = append(r.order, pos)
	}
	r.left[pos] = r.lifetime
}

// Decay ages every entry by one tick and drops the ones that ran out.
func (r *Registry) Decay() {
	if len(r.order) == 0 {
		return
	}
	keys := make([]cell.Pos, len(r.order))
	copy(keys, r.order)
	removed := false
	for _, k := range keys {
		v := r.left[k] - 1
		if v <= 0 {
			delete(r.left, k)
			removed = true
			continue
		}
		r.left[k] = v
	}
	if !removed {
		return
	}
	kept := r.order[:0]
	for _, k := range r.order {
		if _, ok := r.left[k]; ok {
			kept = append(kept, k)
		}
	}
	r.order = kept
}

// OnTick is the per-simulation-step hook.
func (r *Registry) OnTick() { r.Decay() }

// Remaining returns the ticks left on pos, or false when pos is not lit.
func (r *Registry) Remaining(pos cell.Pos) (int, bool) {
	v, ok := r.left[pos]
	return v, ok
}

func (r *Registry) Len() int { return len(r.order) }

// Entries returns the active highlights in insertion order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, Entry{Pos: k, Remaining: r.left[k]})
	}
	return out
}

// Close drops every entry; later notifies are ignored.
func (r *Registry) Close() {
	r.closed = true
	r.order = nil
	r.left = map[cell.Pos]int{}
}
