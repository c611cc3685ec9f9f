package engine

import (
	"sync"
	"sync/atomic"
)

// Storage is a keyed resource that may be written from any goroutine.
//
// Writes take the map lock and mark the storage pending. Flush, called on
// the graph goroutine, delivers one notification for every batch of writes
// since the previous Flush. Engines watch a Storage like any resource.
type Storage[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V

	n     *node
	dirty atomic.Bool
}

// NewStorage creates an empty storage.
func NewStorage[K comparable, V any]() *Storage[K, V] {
	return &Storage[K, V]{
		entries: make(map[K]V),
		n:       newNode(),
	}
}

func (s *Storage[K, V]) source() *node { return s.n }

// Get returns the entry for k.
func (s *Storage[K, V]) Get(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[k]
	return v, ok
}

// Put stores v under k.
func (s *Storage[K, V]) Put(k K, v V) {
	s.mu.Lock()
	s.entries[k] = v
	s.mu.Unlock()
	s.dirty.Store(true)
}

// Delete removes k. Reports whether it was present.
func (s *Storage[K, V]) Delete(k K) bool {
	s.mu.Lock()
	_, ok := s.entries[k]
	delete(s.entries, k)
	s.mu.Unlock()
	if ok {
		s.dirty.Store(true)
	}
	return ok
}

// Len returns the number of entries.
func (s *Storage[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of the entries.
func (s *Storage[K, V]) Snapshot() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[K]V, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Flush notifies watchers if anything was written since the last Flush.
// Must be called on the graph goroutine. Reports whether it notified.
func (s *Storage[K, V]) Flush() bool {
	if !s.dirty.CompareAndSwap(true, false) {
		return false
	}
	s.n.notify()
	return true
}

// SetState enables or disables the storage's notifications.
func (s *Storage[K, V]) SetState(st State) { s.n.setState(st) }
