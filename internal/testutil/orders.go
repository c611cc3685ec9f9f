package testutil

import (
	"context"
	"sync"

	"github.com/roach88/mvvplatform/internal/order"
)

// OrderFactory builds orders with ids from a private clock, so ids in a
// test start at 1 regardless of what else ran in the process.
type OrderFactory struct {
	clock *order.Clock
}

// NewOrderFactory creates a factory whose first order gets id 1.
func NewOrderFactory() *OrderFactory {
	return &OrderFactory{clock: order.NewClock()}
}

// Value returns an order that computes v.
func (f *OrderFactory) Value(class order.ClassID, v any, opts ...order.Option) *order.Order {
	return order.New(class, func(ctx context.Context) (any, error) {
		return v, nil
	}, f.with(opts)...)
}

// Failing returns an order whose compute returns err.
func (f *OrderFactory) Failing(class order.ClassID, err error, opts ...order.Option) *order.Order {
	return order.New(class, func(ctx context.Context) (any, error) {
		return nil, err
	}, f.with(opts)...)
}

// Gated returns an order that blocks in compute until release is called
// (or its context is cancelled). release is safe to call more than once.
func (f *OrderFactory) Gated(class order.ClassID, v any, opts ...order.Option) (o *order.Order, release func()) {
	gate := make(chan struct{})
	var once sync.Once
	o = order.New(class, func(ctx context.Context) (any, error) {
		select {
		case <-gate:
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, f.with(opts)...)
	return o, func() { once.Do(func() { close(gate) }) }
}

func (f *OrderFactory) with(opts []order.Option) []order.Option {
	return append([]order.Option{order.WithClock(f.clock)}, opts...)
}
