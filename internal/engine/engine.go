package engine

import (
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
)

// RunFunc recomputes an engine. Returning false leaves the engine dirty so
// the next Run retries.
type RunFunc func(e *Engine) bool

// Engine is a lazily recomputed node.
//
// Notifications from watched resources only mark the engine dirty and
// record the trigger; Run calls the RunFunc when the engine is enabled and
// dirty. A new engine starts clean: it runs only after a watched resource
// notifies or Invalidate is called.
type Engine struct {
	name    string
	handler Handler
	fn      RunFunc

	state    State
	dirty    bool
	gen      uint64 // bumped by every notification
	notified uint64
	triggers mapset.Set[*node]
	watched  mapset.Set[*node]
	closed   bool
}

// NewEngine creates an engine and registers it with h (which may be nil).
// Panics if fn is nil.
func NewEngine(h Handler, name string, fn RunFunc) *Engine {
	if fn == nil {
		panic("engine: nil run function")
	}
	e := &Engine{
		name:     name,
		handler:  h,
		fn:       fn,
		state:    Enabled,
		triggers: mapset.NewThreadUnsafeSet[*node](),
		watched:  mapset.NewThreadUnsafeSet[*node](),
	}
	if h != nil {
		h.Connect(e)
	}
	return e
}

// Name returns the engine's label.
func (e *Engine) Name() string { return e.name }

func (e *Engine) notify(n *node) {
	e.dirty = true
	e.gen++
	e.notified++
	if n != nil {
		e.triggers.Add(n)
	}
}

// Invalidate marks the engine dirty without a triggering resource.
func (e *Engine) Invalidate() { e.notify(nil) }

// Run recomputes the engine if it is enabled and dirty. Reports whether
// the RunFunc was called.
//
// On success the dirty flag and triggers are cleared, unless a new
// notification arrived while the RunFunc was running. On failure the
// engine stays dirty.
func (e *Engine) Run() bool {
	if e.closed || e.state != Enabled || !e.dirty {
		return false
	}
	gen := e.gen
	if !e.fn(e) {
		slog.Debug("engine run failed, will retry", "engine", e.name)
		return true
	}
	if e.gen == gen {
		e.dirty = false
		e.triggers.Clear()
	}
	return true
}

// Dirty reports whether the engine needs a Run.
func (e *Engine) Dirty() bool { return e.dirty }

// SetState enables or disables the engine. Notifications still mark a
// disabled engine dirty; it recomputes once re-enabled and run.
func (e *Engine) SetState(s State) { e.state = s }

// State returns the engine's state.
func (e *Engine) State() State { return e.state }

// IsTriggeredBy reports whether src notified the engine since its last
// successful run.
func (e *Engine) IsTriggeredBy(src Source) bool {
	return e.triggers.Contains(src.source())
}

// Triggers returns how many distinct resources notified the engine since
// its last successful run.
func (e *Engine) Triggers() int { return e.triggers.Cardinality() }

// Notifications returns how many notifications the engine has received.
func (e *Engine) Notifications() uint64 { return e.notified }

// Watch subscribes the engine to src.
func (e *Engine) Watch(src Source) {
	if e.closed {
		panic("engine: watch on closed engine " + e.name)
	}
	n := src.source()
	n.engines.Add(e)
	e.watched.Add(n)
}

// Unwatch removes a subscription.
func (e *Engine) Unwatch(src Source) {
	n := src.source()
	n.engines.Remove(e)
	e.forget(n)
}

// Watching returns the number of resources the engine watches.
func (e *Engine) Watching() int { return e.watched.Cardinality() }

// forget drops the engine's back-link to n.
func (e *Engine) forget(n *node) {
	e.watched.Remove(n)
	e.triggers.Remove(n)
}

// Close unregisters the engine from its handler and every watched
// resource. Idempotent.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	for _, n := range e.watched.ToSlice() {
		n.engines.Remove(e)
	}
	e.watched.Clear()
	e.triggers.Clear()
	if e.handler != nil {
		e.handler.Disconnect(e)
	}
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool { return e.closed }
