// Package symbol interns order class ids.
//
// A Symbol is the canonical instance for one distinct name. Dispatch tables
// key on *Symbol, so a lookup is a pointer comparison and never a string
// comparison.
//
// Names are NFC normalized before interning, so visually identical names
// written with different Unicode compositions map to the same Symbol.
package symbol

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// Symbol is an interned name. Compare Symbols by pointer.
type Symbol struct {
	name string
	hash uint64
}

// String returns the canonical name.
func (s *Symbol) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.name
}

// Hash returns the xxhash64 of the canonical name.
// Stable across processes; used as a compact numeric key by journal backends.
func (s *Symbol) Hash() uint64 {
	return s.hash
}

// Table interns names into Symbols.
//
// Thread-safety: all methods are safe for concurrent use.
type Table struct {
	mu     sync.RWMutex
	byName map[string]*Symbol
}

// NewTable creates an empty intern table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*Symbol)}
}

// Intern returns the canonical Symbol for name, creating it on first use.
//
// Panics on an empty name: an order class without a name can never be
// routed and indicates a programming error.
func (t *Table) Intern(name string) *Symbol {
	if name == "" {
		panic("symbol: empty name")
	}
	canonical := norm.NFC.String(name)

	t.mu.RLock()
	s, ok := t.byName[canonical]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-check: another goroutine may have interned it between the locks.
	if s, ok := t.byName[canonical]; ok {
		return s
	}
	s = &Symbol{name: canonical, hash: xxhash.Sum64String(canonical)}
	t.byName[canonical] = s
	return s
}

// Lookup returns the Symbol for name without creating it.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byName[norm.NFC.String(name)]
	return s, ok
}

// Len returns the number of interned symbols.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byName)
}

// Default is the process-wide intern table.
//
// Order class ids created through Intern share this table. It is the only
// package-level mutable state for class ids; tests that need isolation
// create their own Table.
var Default = NewTable()

// Intern interns name in the Default table.
func Intern(name string) *Symbol {
	return Default.Intern(name)
}

// MustLookup returns the Default symbol for name or panics.
func MustLookup(name string) *Symbol {
	s, ok := Default.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("symbol: %q not interned", name))
	}
	return s
}
