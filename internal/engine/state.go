package engine

import "fmt"

// State is the enable/disable axis shared by resources and engines.
type State int

const (
	Enabled State = iota
	Disabled
)

func (s State) String() string {
	switch s {
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EngineBarrier disables an engine until Restore.
//
//	defer engine.DisableEngine(e).Restore()
type EngineBarrier struct {
	e        *Engine
	prev     State
	restored bool
}

// DisableEngine disables e and returns a barrier that restores its prior
// state.
func DisableEngine(e *Engine) *EngineBarrier {
	b := &EngineBarrier{e: e, prev: e.State()}
	e.SetState(Disabled)
	return b
}

// Restore puts back the state the engine had when the barrier was taken.
// Calling Restore more than once has no further effect.
func (b *EngineBarrier) Restore() {
	if b.restored {
		return
	}
	b.restored = true
	b.e.SetState(b.prev)
}

// ResourceBarrier disables a resource until Restore, so a batch of
// mutations produces one notification instead of many.
//
//	b := engine.DisableResource(r)
//	r.SetValue(1)
//	r.SetValue(2)
//	b.Restore() // engines are notified once
type ResourceBarrier struct {
	n        *node
	prev     State
	restored bool
}

// DisableResource disables src and returns a barrier that restores its
// prior state.
func DisableResource(src Source) *ResourceBarrier {
	n := src.source()
	b := &ResourceBarrier{n: n, prev: n.state}
	n.setState(Disabled)
	return b
}

// Restore puts back the prior state; if that re-enables the resource and
// it was mutated meanwhile, engines get exactly one notification.
func (b *ResourceBarrier) Restore() {
	if b.restored {
		return
	}
	b.restored = true
	b.n.setState(b.prev)
}
