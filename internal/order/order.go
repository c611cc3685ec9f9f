package order

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/roach88/mvvplatform/internal/symbol"
)

// ClassID routes a finished order to interested consumers.
// Class ids are interned; compare them by pointer.
type ClassID = *symbol.Symbol

// Func is the work an order performs. It runs at most once.
type Func func(ctx context.Context) (any, error)

// Result is the single result slot of an order.
//
// A computed order always has a non-nil Result. Err is set when the work
// function failed (or panicked), or when the order was failed without
// running because a predecessor failed.
type Result struct {
	Value any
	Err   error
}

// OK reports whether the result carries a value rather than an error.
func (r *Result) OK() bool {
	return r != nil && r.Err == nil
}

// Order is a unit of asynchronous work with a single eventual result.
//
// Identity is the id drawn from a Clock; the class id is used only for
// routing. Predecessors are fixed at construction, so the dependency graph
// of orders is acyclic by construction.
//
// Thread-safety: Compute/Fail may race with readers of Result/Complete;
// the result slot is published atomically and Done is closed afterwards.
type Order struct {
	id            int64
	class         ClassID
	predecessors  []*Order
	multithreaded bool
	fn            Func

	claimed atomic.Bool
	result  atomic.Pointer[Result]
	done    chan struct{}
}

// Option configures an Order at construction.
type Option func(*orderConfig)

type orderConfig struct {
	predecessors  []*Order
	multithreaded bool
	clock         *Clock
}

// After declares predecessors that must be complete before this order runs.
func After(predecessors ...*Order) Option {
	return func(c *orderConfig) {
		for _, p := range predecessors {
			if p == nil {
				panic("order: nil predecessor")
			}
		}
		c.predecessors = append(c.predecessors, predecessors...)
	}
}

// Synchronous marks the order to run on the scheduling goroutine instead of
// a dedicated worker.
func Synchronous() Option {
	return func(c *orderConfig) {
		c.multithreaded = false
	}
}

// WithClock draws the order id from clock instead of the process-wide IDs.
func WithClock(clock *Clock) Option {
	return func(c *orderConfig) {
		c.clock = clock
	}
}

// New creates an order of the given class. Orders run on a worker by
// default; see Synchronous.
//
// Panics if class or fn is nil.
func New(class ClassID, fn Func, opts ...Option) *Order {
	if class == nil {
		panic("order: nil class id")
	}
	if fn == nil {
		panic("order: nil work function")
	}

	cfg := orderConfig{multithreaded: true, clock: IDs}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Order{
		id:            cfg.clock.Next(),
		class:         class,
		predecessors:  cfg.predecessors,
		multithreaded: cfg.multithreaded,
		fn:            fn,
		done:          make(chan struct{}),
	}
}

// Typed creates an order whose work returns a T. Consumers read the value
// back with Value[T].
func Typed[T any](class ClassID, fn func(ctx context.Context) (T, error), opts ...Option) *Order {
	return New(class, func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}, opts...)
}

// Value returns the typed value of a computed order.
func Value[T any](o *Order) (T, error) {
	var zero T
	res := o.Result()
	if res == nil {
		return zero, fmt.Errorf("order %d: %w", o.id, ErrNotComputed)
	}
	if res.Err != nil {
		return zero, res.Err
	}
	v, ok := res.Value.(T)
	if !ok {
		return zero, fmt.Errorf("order %d (%s): result is %T, not %T", o.id, o.class, res.Value, zero)
	}
	return v, nil
}

// ID returns the order's unique id.
func (o *Order) ID() int64 { return o.id }

// Class returns the order's class id.
func (o *Order) Class() ClassID { return o.class }

// Predecessors returns the orders that must complete before this one runs.
// The returned slice must not be modified.
func (o *Order) Predecessors() []*Order { return o.predecessors }

// Multithreaded reports whether the order should run on a dedicated worker.
func (o *Order) Multithreaded() bool { return o.multithreaded }

// Result returns the result slot; nil until the order is complete.
func (o *Order) Result() *Result { return o.result.Load() }

// Complete reports whether the result slot is filled.
func (o *Order) Complete() bool { return o.result.Load() != nil }

// Done returns a channel closed once the result slot is filled.
func (o *Order) Done() <-chan struct{} { return o.done }

// Ready reports whether every predecessor is complete.
func (o *Order) Ready() bool {
	for _, p := range o.predecessors {
		if !p.Complete() {
			return false
		}
	}
	return true
}

// FailedPredecessor returns the first complete predecessor whose result
// carries an error, or nil.
func (o *Order) FailedPredecessor() *Order {
	for _, p := range o.predecessors {
		if res := p.Result(); res != nil && res.Err != nil {
			return p
		}
	}
	return nil
}

// Compute runs the work function and fills the result slot.
//
// Panics if the order was already computed or failed: running an order
// twice is a scheduler bug. A panic inside the work function is recovered
// and recorded as a ComputeError.
func (o *Order) Compute(ctx context.Context) *Result {
	if !o.claimed.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("order %d (%s): computed twice", o.id, o.class))
	}
	res := o.run(ctx)
	o.publish(res)
	return res
}

// Fail completes the order with err without running it.
// Returns false if the order was already claimed.
func (o *Order) Fail(err error) bool {
	if !o.claimed.CompareAndSwap(false, true) {
		return false
	}
	o.publish(&Result{Err: &ComputeError{OrderID: o.id, Class: o.class.String(), Err: err}})
	return true
}

func (o *Order) run(ctx context.Context) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			res = &Result{Err: &ComputeError{
				OrderID: o.id,
				Class:   o.class.String(),
				Err:     eris.Errorf("panic in order work: %v", r),
			}}
		}
	}()

	v, err := o.fn(ctx)
	if err != nil {
		return &Result{Err: &ComputeError{OrderID: o.id, Class: o.class.String(), Err: err}}
	}
	return &Result{Value: v}
}

func (o *Order) publish(res *Result) {
	o.result.Store(res)
	close(o.done)
}

// String returns a short description for logs.
func (o *Order) String() string {
	return fmt.Sprintf("order %d (%s)", o.id, o.class)
}
