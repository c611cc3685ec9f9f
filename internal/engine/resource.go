package engine

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/roach88/mvvplatform/internal/refcount"
)

// Source is anything an engine can watch or a resource can link to.
type Source interface {
	source() *node
}

// node is the type-erased part of a resource shared by every handle.
type node struct {
	state   State
	pending bool // mutated while disabled

	engines    mapset.Set[*Engine] // watchers; non-owning
	dependents mapset.Set[*node]   // resources notified after this one
	upstreams  mapset.Set[*node]   // resources that list this one as a dependent
	inNotify   bool
}

func newNode() *node {
	return &node{
		state:      Enabled,
		engines:    mapset.NewThreadUnsafeSet[*Engine](),
		dependents: mapset.NewThreadUnsafeSet[*node](),
		upstreams:  mapset.NewThreadUnsafeSet[*node](),
	}
}

func (n *node) source() *node { return n }

func (n *node) notify() {
	if n.state == Disabled {
		n.pending = true
		return
	}
	// Cycle guard for resource-to-resource links.
	if n.inNotify {
		return
	}
	n.inNotify = true
	defer func() { n.inNotify = false }()

	n.pending = false
	for _, e := range n.engines.ToSlice() {
		e.notify(n)
	}
	for _, d := range n.dependents.ToSlice() {
		d.notify()
	}
}

func (n *node) setState(s State) {
	prev := n.state
	n.state = s
	if prev == Disabled && s == Enabled && n.pending {
		n.notify()
	}
}

func (n *node) link(d *node) {
	if d == n {
		return
	}
	n.dependents.Add(d)
	d.upstreams.Add(n)
}

func (n *node) unlink(d *node) {
	n.dependents.Remove(d)
	d.upstreams.Remove(n)
}

// detach drops every link to and from n. Called when the last handle goes.
func (n *node) detach() {
	for _, e := range n.engines.ToSlice() {
		e.forget(n)
	}
	n.engines.Clear()
	for _, u := range n.upstreams.ToSlice() {
		u.unlink(n)
	}
	for _, d := range n.dependents.ToSlice() {
		n.unlink(d)
	}
}

type cell[T any] struct {
	*node
	value T
}

// Resource is a handle to a shared, notifiable value.
//
// Clone returns another handle to the same cell; the cell is destroyed when
// the last handle is released. Release on a handle is idempotent.
type Resource[T any] struct {
	h *refcount.Handle[*cell[T]]
}

// NewResource creates a resource holding v.
func NewResource[T any](v T) *Resource[T] {
	return NewOwned(v, nil)
}

// NewOwned creates a resource that owns v: destroy runs with the final
// value when the last handle is released.
func NewOwned[T any](v T, destroy func(T)) *Resource[T] {
	c := &cell[T]{node: newNode(), value: v}
	return &Resource[T]{h: refcount.New(c, func(c *cell[T]) {
		c.detach()
		if destroy != nil {
			destroy(c.value)
		}
	})}
}

func (r *Resource[T]) source() *node { return r.h.Get().node }

// Value returns the current value.
func (r *Resource[T]) Value() T { return r.h.Get().value }

// SetValue stores v and notifies.
func (r *Resource[T]) SetValue(v T) {
	c := r.h.Get()
	c.value = v
	c.notify()
}

// Update mutates the value in place and notifies.
func (r *Resource[T]) Update(fn func(v *T)) {
	c := r.h.Get()
	fn(&c.value)
	c.notify()
}

// Notify signals watchers without changing the value. On a disabled
// resource the notification is deferred until it is re-enabled.
func (r *Resource[T]) Notify() { r.h.Get().notify() }

// SetState enables or disables the resource.
func (r *Resource[T]) SetState(s State) { r.h.Get().setState(s) }

// State returns the resource's state.
func (r *Resource[T]) State() State { return r.h.Get().state }

// Pending reports whether a notification is deferred.
func (r *Resource[T]) Pending() bool { return r.h.Get().pending }

// Link makes dep notify whenever r notifies. The link is dropped when
// either side releases its last handle.
func (r *Resource[T]) Link(dep Source) {
	r.source().link(dep.source())
}

// Unlink removes a Link.
func (r *Resource[T]) Unlink(dep Source) {
	r.source().unlink(dep.source())
}

// Dependents returns the number of resources linked from r.
func (r *Resource[T]) Dependents() int { return r.source().dependents.Cardinality() }

// Watchers returns the number of engines watching the resource.
func (r *Resource[T]) Watchers() int { return r.source().engines.Cardinality() }

// Clone returns another handle to the same cell.
func (r *Resource[T]) Clone() *Resource[T] {
	return &Resource[T]{h: r.h.Clone()}
}

// Release drops this handle. The last release detaches every engine and
// runs the owner's destroy callback.
func (r *Resource[T]) Release() {
	r.h.Release()
}

// Refs returns the number of live handles to the cell.
func (r *Resource[T]) Refs() int64 { return r.h.Refs() }

// Same reports whether r and other share a cell.
func (r *Resource[T]) Same(other *Resource[T]) bool { return r.h.Same(other.h) }
