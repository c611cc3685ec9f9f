// Package refcount provides shared ownership of a value with a destroy hook
// that runs exactly once, when the last handle is released.
package refcount

import (
	"fmt"
	"sync/atomic"
)

type cell[T any] struct {
	value   T
	refs    atomic.Int64
	destroy func(T)
}

// Handle is one reference to a shared value.
//
// Handles are cheap to copy by Clone; copying the struct itself is not
// allowed (use Clone). Release is idempotent per handle: releasing the same
// handle twice drops only one reference.
//
// Thread-safety: Clone and Release may be called from any goroutine. The
// value itself is not synchronized.
type Handle[T any] struct {
	c        *cell[T]
	released atomic.Bool
}

// New returns the first handle to v. destroy (may be nil) runs once when
// the last handle is released.
func New[T any](v T, destroy func(T)) *Handle[T] {
	c := &cell[T]{value: v, destroy: destroy}
	c.refs.Store(1)
	return &Handle[T]{c: c}
}

// Clone returns a new handle to the same value.
// Panics if h was already released.
func (h *Handle[T]) Clone() *Handle[T] {
	if h.released.Load() {
		panic("refcount: clone of released handle")
	}
	h.c.refs.Add(1)
	return &Handle[T]{c: h.c}
}

// Release drops this handle's reference. Returns true if this call
// destroyed the value.
func (h *Handle[T]) Release() bool {
	if !h.released.CompareAndSwap(false, true) {
		return false
	}
	n := h.c.refs.Add(-1)
	switch {
	case n == 0:
		if h.c.destroy != nil {
			h.c.destroy(h.c.value)
		}
		return true
	case n < 0:
		panic(fmt.Sprintf("refcount: negative reference count %d", n))
	}
	return false
}

// Get returns the shared value.
// Panics if h was released.
func (h *Handle[T]) Get() T {
	if h.released.Load() {
		panic("refcount: get on released handle")
	}
	return h.c.value
}

// Refs returns the number of live handles.
func (h *Handle[T]) Refs() int64 {
	return h.c.refs.Load()
}

// Released reports whether this handle has been released.
func (h *Handle[T]) Released() bool {
	return h.released.Load()
}

// Same reports whether two handles share a value.
func (h *Handle[T]) Same(other *Handle[T]) bool {
	return other != nil && h.c == other.c
}
