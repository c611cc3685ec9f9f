package order

import "sync"

// Provider is the submission side of the scheduler. Anything holding a
// Provider can create work.
type Provider interface {
	// PushOrder enqueues an order. Pushing nil is a programming error.
	PushOrder(o *Order)

	// OrdersAndClear returns every queued order in submission order and
	// empties the queue.
	OrdersAndClear() []*Order

	// HasOrdersWaiting reports whether the queue is non-empty. The answer
	// is a snapshot and may be stale by the time the caller acts on it.
	HasOrdersWaiting() bool
}

// ProviderImpl is a FIFO submission queue.
//
// The drain side is expected to be a single goroutine (the manager's Run
// loop); pushes are safe from any goroutine.
type ProviderImpl struct {
	mu     sync.Mutex
	orders []*Order
}

// NewProvider creates an empty provider.
func NewProvider() *ProviderImpl {
	return &ProviderImpl{orders: make([]*Order, 0, 16)}
}

// PushOrder implements Provider.
func (p *ProviderImpl) PushOrder(o *Order) {
	if o == nil {
		panic("order: push of nil order")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, o)
}

// OrdersAndClear implements Provider.
func (p *ProviderImpl) OrdersAndClear() []*Order {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.orders) == 0 {
		return nil
	}
	drained := p.orders
	p.orders = make([]*Order, 0, cap(drained))
	return drained
}

// HasOrdersWaiting implements Provider.
func (p *ProviderImpl) HasOrdersWaiting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orders) > 0
}

// Len returns the number of queued orders.
func (p *ProviderImpl) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orders)
}
