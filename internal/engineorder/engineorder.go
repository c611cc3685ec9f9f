// Package engineorder lets an engine create orders and consume their
// results.
//
// An EngineOrder is an engine (run by an engine.Handler) that is also an
// order.Consumer (fed by the order manager). Construction connects it to
// both; Close disconnects from both, so a closed EngineOrder never receives
// another result.
package engineorder

import (
	"fmt"
	"log/slog"

	"github.com/roach88/mvvplatform/internal/engine"
	"github.com/roach88/mvvplatform/internal/order"
)

// Orders is the manager surface an EngineOrder needs.
// Satisfied by *manager.Manager.
type Orders interface {
	PushOrder(o *order.Order)
	Connect(c order.Consumer)
	Disconnect(c order.Consumer)
}

// Config describes an EngineOrder.
type Config struct {
	Name    string
	Handler engine.Handler
	Orders  Orders

	// Interested lists the order classes delivered to Consume.
	Interested []order.ClassID

	// Run recomputes the engine; it typically pushes orders with Push.
	// Returning false keeps the engine dirty.
	Run func(eo *EngineOrder) bool

	// Consume receives finished orders of an interested class. Called on
	// the goroutine driving the manager.
	Consume func(eo *EngineOrder, o *order.Order)
}

// EngineOrder composes an engine with an order provider and consumer.
type EngineOrder struct {
	name       string
	engine     *engine.Engine
	orders     Orders
	interested []order.ClassID
	consume    func(eo *EngineOrder, o *order.Order)
	closed     bool
}

// New builds an EngineOrder and connects it to the handler and the
// manager. Panics if Orders, Run or Consume is missing.
func New(cfg Config) *EngineOrder {
	if cfg.Orders == nil {
		panic(fmt.Sprintf("engineorder %q: nil Orders", cfg.Name))
	}
	if cfg.Run == nil || cfg.Consume == nil {
		panic(fmt.Sprintf("engineorder %q: Run and Consume are required", cfg.Name))
	}

	eo := &EngineOrder{
		name:       cfg.Name,
		orders:     cfg.Orders,
		interested: append([]order.ClassID(nil), cfg.Interested...),
		consume:    cfg.Consume,
	}
	run := cfg.Run
	eo.engine = engine.NewEngine(cfg.Handler, cfg.Name, func(*engine.Engine) bool {
		return run(eo)
	})
	eo.orders.Connect(eo)
	return eo
}

// Engine returns the underlying engine, for Watch and Invalidate.
func (eo *EngineOrder) Engine() *engine.Engine { return eo.engine }

// Push submits o to the manager.
func (eo *EngineOrder) Push(o *order.Order) {
	if eo.closed {
		slog.Warn("order pushed by closed engine", "engine", eo.name, "order_id", o.ID())
		return
	}
	eo.orders.PushOrder(o)
}

// Consume implements order.Consumer.
func (eo *EngineOrder) Consume(o *order.Order) {
	if eo.closed {
		return
	}
	eo.consume(eo, o)
}

// InterestedOrders implements order.Consumer.
func (eo *EngineOrder) InterestedOrders() []order.ClassID {
	return eo.interested
}

// Close disconnects from the manager and the handler. Idempotent.
func (eo *EngineOrder) Close() {
	if eo.closed {
		return
	}
	eo.closed = true
	eo.orders.Disconnect(eo)
	eo.engine.Close()
}

// Closed reports whether Close was called.
func (eo *EngineOrder) Closed() bool { return eo.closed }
