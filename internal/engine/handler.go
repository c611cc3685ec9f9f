package engine

// Handler runs a set of engines.
type Handler interface {
	Connect(e *Engine)
	Disconnect(e *Engine)
	Run() int
}

// HandlerImpl runs engines in registration order.
type HandlerImpl struct {
	engines []*Engine
}

var _ Handler = (*HandlerImpl)(nil)

// NewHandler creates an empty handler.
func NewHandler() *HandlerImpl {
	return &HandlerImpl{}
}

// Connect registers e. Registering twice is a no-op.
func (h *HandlerImpl) Connect(e *Engine) {
	for _, existing := range h.engines {
		if existing == e {
			return
		}
	}
	h.engines = append(h.engines, e)
}

// Disconnect unregisters e.
func (h *HandlerImpl) Disconnect(e *Engine) {
	for i, existing := range h.engines {
		if existing == e {
			h.engines = append(h.engines[:i:i], h.engines[i+1:]...)
			return
		}
	}
}

// Run runs every registered engine once and returns how many of them
// recomputed. Engines closed by an earlier engine in the same pass are
// skipped.
func (h *HandlerImpl) Run() int {
	snapshot := make([]*Engine, len(h.engines))
	copy(snapshot, h.engines)

	ran := 0
	for _, e := range snapshot {
		if e.Run() {
			ran++
		}
	}
	return ran
}

// Len returns the number of registered engines.
func (h *HandlerImpl) Len() int { return len(h.engines) }
