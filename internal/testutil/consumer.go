package testutil

import (
	"sync"

	"github.com/roach88/mvvplatform/internal/order"
)

// RecordingConsumer records every order delivered to it.
//
// Thread-safety: safe for concurrent use, so tests may inspect it while a
// manager delivers from another goroutine.
type RecordingConsumer struct {
	name    string
	classes []order.ClassID

	mu       sync.Mutex
	received []*order.Order
}

// NewRecordingConsumer creates a consumer interested in classes.
func NewRecordingConsumer(name string, classes ...order.ClassID) *RecordingConsumer {
	return &RecordingConsumer{name: name, classes: classes}
}

// Name returns the consumer's label.
func (c *RecordingConsumer) Name() string { return c.name }

// Consume implements order.Consumer.
func (c *RecordingConsumer) Consume(o *order.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, o)
}

// InterestedOrders implements order.Consumer.
func (c *RecordingConsumer) InterestedOrders() []order.ClassID {
	return c.classes
}

// Received returns a copy of the delivered orders in delivery order.
func (c *RecordingConsumer) Received() []*order.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*order.Order, len(c.received))
	copy(out, c.received)
	return out
}

// IDs returns the ids of delivered orders in delivery order.
func (c *RecordingConsumer) IDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.received))
	for _, o := range c.received {
		ids = append(ids, o.ID())
	}
	return ids
}

// Count returns the number of delivered orders.
func (c *RecordingConsumer) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}
