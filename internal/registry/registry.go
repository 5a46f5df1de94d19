// Package registry tracks which screen names have a live session.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrUnknownScreen = errors.New("unknown screen name")
	ErrScreenBusy    = errors.New("screen name already connected")
)

// Entry is one claimed screen.
type Entry[T any] struct {
	Name  string
	Value T
	Since time.Time
}

// Registry maps screen names to the session holding them. At most one
// holder per name exists at a time. Safe for concurrent use.
type Registry[T comparable] struct {
	mu     sync.Mutex
	known  map[string]bool // nil accepts any name
	active map[string]Entry[T]
}

// New creates a registry. With no names every screen name is accepted.
func New[T comparable](names ...string) *Registry[T] {
	r := &Registry[T]{active: make(map[string]Entry[T])}
	if len(names) > 0 {
		r.known = make(map[string]bool, len(names))
		for _, n := range names {
			r.known[n] = true
		}
	}
	return r
}

// Claim binds name to v.
func (r *Registry[T]) Claim(name string, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.known != nil && !r.known[name] {
		return fmt.Errorf("%w: %q", ErrUnknownScreen, name)
	}
	if _, ok := r.active[name]; ok {
		return fmt.Errorf("%w: %q", ErrScreenBusy, name)
	}
	r.active[name] = Entry[T]{Name: name, Value: v, Since: time.Now()}
	return nil
}

// Release frees name if v still holds it.
func (r *Registry[T]) Release(name string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.active[name]; ok && e.Value == v {
		delete(r.active, name)
	}
}

// Lookup returns the holder of name.
func (r *Registry[T]) Lookup(name string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.active[name]
	return e.Value, ok
}

// Len returns the number of claimed names.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Snapshot returns the claimed entries sorted by name.
func (r *Registry[T]) Snapshot() []Entry[T] {
	r.mu.Lock()
	out := make([]Entry[T], 0, len(r.active))
	for _, e := range r.active {
		out = append(out, e)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
