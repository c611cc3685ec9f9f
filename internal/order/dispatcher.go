package order

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Consumer receives finished orders of the classes it declares.
//
// Implementations must be comparable (pointer receivers in practice): the
// dispatcher keeps consumers in sets.
type Consumer interface {
	// Consume is called once per finished order whose class is in
	// InterestedOrders. The order's Result is non-nil; check Result().Err.
	Consume(o *Order)

	// InterestedOrders declares the class ids this consumer accepts.
	InterestedOrders() []ClassID
}

// Dispatcher routes finished orders to interested consumers.
type Dispatcher interface {
	Connect(c Consumer)
	Disconnect(c Consumer)
	Dispatch(o *Order)
}

// DispatcherImpl is a subscription registry mapping class id to consumers.
//
// Dispatch is synchronous: every consumer runs on the calling goroutine, so
// a slow consumer stalls the dispatch loop. Dispatch iterates a snapshot of
// the subscriber set, so a consumer may disconnect itself (or others) from
// inside Consume.
type DispatcherImpl struct {
	mu         sync.RWMutex
	buckets    map[ClassID]mapset.Set[Consumer]
	registered map[Consumer][]ClassID
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *DispatcherImpl {
	return &DispatcherImpl{
		buckets:    make(map[ClassID]mapset.Set[Consumer]),
		registered: make(map[Consumer][]ClassID),
	}
}

// Connect subscribes c to every class id in c.InterestedOrders().
// Connecting an already connected consumer refreshes its interest set.
func (d *DispatcherImpl) Connect(c Consumer) {
	if c == nil {
		panic("order: connect of nil consumer")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.removeLocked(c)

	classes := c.InterestedOrders()
	for _, class := range classes {
		bucket, ok := d.buckets[class]
		if !ok {
			bucket = mapset.NewThreadUnsafeSet[Consumer]()
			d.buckets[class] = bucket
		}
		bucket.Add(c)
	}
	d.registered[c] = append([]ClassID(nil), classes...)
}

// Disconnect removes c from every bucket it was connected to.
// Disconnecting an unknown consumer is a no-op.
func (d *DispatcherImpl) Disconnect(c Consumer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(c)
}

func (d *DispatcherImpl) removeLocked(c Consumer) {
	classes, ok := d.registered[c]
	if !ok {
		return
	}
	for _, class := range classes {
		bucket, ok := d.buckets[class]
		if !ok {
			continue
		}
		bucket.Remove(c)
		if bucket.Cardinality() == 0 {
			delete(d.buckets, class)
		}
	}
	delete(d.registered, c)
}

// Dispatch calls Consume on every consumer interested in o's class.
func (d *DispatcherImpl) Dispatch(o *Order) {
	d.DispatchCount(o)
}

// DispatchCount is Dispatch returning the number of consumers called.
func (d *DispatcherImpl) DispatchCount(o *Order) int {
	d.mu.RLock()
	bucket, ok := d.buckets[o.Class()]
	var consumers []Consumer
	if ok {
		consumers = bucket.ToSlice()
	}
	d.mu.RUnlock()

	for _, c := range consumers {
		c.Consume(o)
	}
	return len(consumers)
}

// Consumers returns the number of consumers subscribed to class.
func (d *DispatcherImpl) Consumers(class ClassID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if bucket, ok := d.buckets[class]; ok {
		return bucket.Cardinality()
	}
	return 0
}

// Connected reports whether c is currently registered.
func (d *DispatcherImpl) Connected(c Consumer) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.registered[c]
	return ok
}
