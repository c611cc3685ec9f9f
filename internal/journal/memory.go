package journal

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store. Used by the harness and tests, and as the
// "memory" journal driver.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{}
}

// Record implements Recorder.
func (m *Memory) Record(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of all recorded events in seq order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Session != out[j].Session {
			return out[i].Session < out[j].Session
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// OfKind returns the recorded events of one kind in seq order.
func (m *Memory) OfKind(kind Kind) []Event {
	var out []Event
	for _, ev := range m.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// ReadSession implements Reader.
func (m *Memory) ReadSession(ctx context.Context, session string) ([]Event, error) {
	var out []Event
	for _, ev := range m.Events() {
		if ev.Session == session {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Sessions implements Reader.
func (m *Memory) Sessions(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, ev := range m.Events() {
		if !seen[ev.Session] {
			seen[ev.Session] = true
			out = append(out, ev.Session)
		}
	}
	return out, nil
}

// Close implements io.Closer.
func (m *Memory) Close() error { return nil }
