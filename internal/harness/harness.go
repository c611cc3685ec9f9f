package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/mvvplatform/internal/journal"
	"github.com/roach88/mvvplatform/internal/manager"
	"github.com/roach88/mvvplatform/internal/order"
	"github.com/roach88/mvvplatform/internal/pool"
	"github.com/roach88/mvvplatform/internal/symbol"
	"github.com/roach88/mvvplatform/internal/testutil"
)

// Harness runs one scenario against a real manager and pool.
type Harness struct {
	scenario  *Scenario
	manager   *manager.Manager
	journal   *journal.Memory
	consumers []*testutil.RecordingConsumer
	orders    map[string]*order.Order
	names     map[*order.Order]string
	clock     *order.Clock
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each run gets its own manager, pool, journal and order id clock, so
// ids and error messages are identical from run to run.
//
// Execution flow:
//  1. Connect consumers
//  2. Build orders, predecessors first
//  3. Push every order not on hold, in declaration order
//  4. Drain until every order that can run has been dispatched
//  5. Kill the pool, collect outcomes, evaluate assertions
func Run(s *Scenario) (*Result, error) {
	return RunContext(context.Background(), s)
}

// RunContext is Run with a caller context; the scenario timeout applies
// on top of it.
func RunContext(ctx context.Context, s *Scenario) (*Result, error) {
	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	workers := s.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	scan, err := pool.ParseScanPolicy(s.ScanPolicy)
	if err != nil {
		return nil, err
	}
	timeout := DefaultTimeout
	if s.Timeout != "" {
		timeout, _ = time.ParseDuration(s.Timeout)
	}

	mem := journal.NewMemory()
	h := &Harness{
		scenario: s,
		journal:  mem,
		manager: manager.New(workers,
			manager.WithScanPolicy(scan),
			manager.WithJournal(mem, testutil.NewFixedSessionGenerator(s.Session)),
		),
		orders: make(map[string]*order.Order, len(s.Orders)),
		names:  make(map[*order.Order]string, len(s.Orders)),
		clock:  order.NewClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	h.connectConsumers()
	h.buildOrders()

	expected := 0
	for _, spec := range s.Orders {
		if spec.Hold {
			continue
		}
		h.manager.PushOrder(h.orders[spec.Name])
		if h.runnable(spec.Name) {
			expected++
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, drainErr := h.manager.Drain(runCtx, expected)
	discarded := h.manager.Kill()
	if drainErr != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, drainErr)
	}

	result := h.collect(ctx, discarded)
	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", s.Name,
		"pass", result.Pass,
		"orders", len(s.Orders),
		"discarded", discarded)
	return result, nil
}

func (h *Harness) connectConsumers() {
	for _, spec := range h.scenario.Consumers {
		classes := make([]order.ClassID, 0, len(spec.Interested))
		for _, name := range spec.Interested {
			classes = append(classes, symbol.Intern(name))
		}
		c := testutil.NewRecordingConsumer(spec.Name, classes...)
		h.manager.Connect(c)
		h.consumers = append(h.consumers, c)
	}
}

// buildOrders constructs every order after its predecessors. The scenario
// was validated acyclic.
func (h *Harness) buildOrders() {
	specs := make(map[string]OrderSpec, len(h.scenario.Orders))
	for _, spec := range h.scenario.Orders {
		specs[spec.Name] = spec
	}

	var build func(name string) *order.Order
	build = func(name string) *order.Order {
		if o, ok := h.orders[name]; ok {
			return o
		}
		spec := specs[name]

		opts := []order.Option{order.WithClock(h.clock)}
		for _, p := range spec.After {
			opts = append(opts, order.After(build(p)))
		}
		if spec.Multithreaded != nil && !*spec.Multithreaded {
			opts = append(opts, order.Synchronous())
		}

		o := order.New(symbol.Intern(spec.Class), work(spec), opts...)
		h.orders[name] = o
		h.names[o] = name
		return o
	}

	for _, spec := range h.scenario.Orders {
		build(spec.Name)
	}
}

// runnable reports whether the order and all its transitive predecessors
// are pushed.
func (h *Harness) runnable(name string) bool {
	for _, spec := range h.scenario.Orders {
		if spec.Name != name {
			continue
		}
		if spec.Hold {
			return false
		}
		for _, p := range spec.After {
			if !h.runnable(p) {
				return false
			}
		}
		return true
	}
	return false
}

func work(spec OrderSpec) order.Func {
	var delay time.Duration
	if spec.Delay != "" {
		delay, _ = time.ParseDuration(spec.Delay)
	}
	return func(ctx context.Context) (any, error) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if spec.Fail != "" {
			return nil, errors.New(spec.Fail)
		}
		return spec.Name, nil
	}
}

func (h *Harness) collect(ctx context.Context, discarded int) *Result {
	result := NewResult()
	result.Discarded = discarded
	result.Session = h.manager.Session()

	for _, c := range h.consumers {
		delivered := []string{}
		for _, o := range c.Received() {
			delivered = append(delivered, h.names[o])
		}
		result.Deliveries[c.Name()] = delivered
	}

	for _, spec := range h.scenario.Orders {
		o := h.orders[spec.Name]
		out := Outcome{ID: o.ID()}
		res := o.Result()
		switch {
		case spec.Hold:
			out.Status = StatusHeld
		case res == nil:
			out.Status = StatusDiscarded
		case res.Err != nil:
			out.Status = StatusFailed
			out.Error = res.Err.Error()
		default:
			out.Status = StatusSucceeded
		}
		result.Outcomes[spec.Name] = out
	}

	if events, err := h.journal.ReadSession(ctx, result.Session); err == nil {
		result.Events = events
	}
	return result
}
