// Package manager ties submission, execution and delivery together.
//
// A Manager owns a Provider (where orders are pushed), a Pool (where they
// run) and a Dispatcher (where finished orders are delivered). Delivery
// happens only inside Run, on the caller's goroutine, so consumers never
// see concurrent Consume calls from the manager.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/mvvplatform/internal/journal"
	"github.com/roach88/mvvplatform/internal/order"
	"github.com/roach88/mvvplatform/internal/pool"
)

// DefaultTick is the Loop and Drain interval when none is configured.
const DefaultTick = time.Millisecond

// Manager is the order manager backed by a worker pool.
//
// Thread-safety model:
//   - PushOrder, Connect, Disconnect: safe from any goroutine
//   - Run, Loop, Drain: must be called from exactly one goroutine
//   - Kill: safe from any goroutine, idempotent
type Manager struct {
	provider   *order.ProviderImpl
	dispatcher *order.DispatcherImpl
	pool       *pool.Pool
	journal    *journal.Log

	tick       time.Duration
	submitted  atomic.Int64
	dispatched atomic.Int64

	// Construction-only settings.
	scan     pool.ScanPolicy
	recorder journal.Recorder
	sessions journal.SessionGenerator
}

// Option configures a Manager.
type Option func(*Manager)

// WithScanPolicy sets the pool scan policy.
func WithScanPolicy(policy pool.ScanPolicy) Option {
	return func(m *Manager) {
		m.scan = policy
	}
}

// WithJournal records the lifecycle of every order to rec under a session
// token produced by gen. A nil gen defaults to UUIDv7 tokens.
func WithJournal(rec journal.Recorder, gen journal.SessionGenerator) Option {
	return func(m *Manager) {
		m.recorder = rec
		m.sessions = gen
	}
}

// WithTick sets the interval used by Loop and Drain.
func WithTick(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.tick = d
		}
	}
}

// New creates a manager with a pool of workers goroutines.
// Panics if workers < 1.
func New(workers int, opts ...Option) *Manager {
	m := &Manager{
		provider:   order.NewProvider(),
		dispatcher: order.NewDispatcher(),
		tick:       DefaultTick,
		scan:       pool.ScanDrainSync,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.recorder != nil {
		if m.sessions == nil {
			m.sessions = journal.UUIDv7Generator{}
		}
		m.journal = journal.NewLog(m.recorder, m.sessions.Generate())
	}

	m.pool = pool.New(workers,
		pool.WithScanPolicy(m.scan),
		pool.WithJournal(m.journal),
	)

	slog.Info("order manager started",
		"workers", workers,
		"scan_policy", m.scan.String(),
		"session", m.journal.Session())
	return m
}

// PushOrder queues o for the next Run.
func (m *Manager) PushOrder(o *order.Order) {
	m.provider.PushOrder(o)
}

// Connect registers a consumer for its interested classes.
func (m *Manager) Connect(c order.Consumer) {
	m.dispatcher.Connect(c)
}

// Disconnect unregisters a consumer.
func (m *Manager) Disconnect(c order.Consumer) {
	m.dispatcher.Disconnect(c)
}

// Run performs one tick: pending orders move into the pool, then every
// finished order is dispatched to its consumers. Returns the number of
// orders dispatched.
func (m *Manager) Run() int {
	for _, o := range m.provider.OrdersAndClear() {
		m.journal.Emit(journal.KindSubmitted, o, journal.NoWorker)
		if !m.pool.Push(o) {
			slog.Warn("order dropped: pool killed", "order_id", o.ID(), "class", o.Class().String())
			m.journal.Emit(journal.KindDiscarded, o, journal.NoWorker)
			continue
		}
		m.submitted.Add(1)
	}

	n := 0
	for _, o := range m.pool.FinishedOrdersAndClear() {
		consumers := m.dispatcher.DispatchCount(o)
		m.journal.Emit(journal.KindDispatched, o, journal.NoWorker)
		slog.Debug("order dispatched", "order_id", o.ID(), "class", o.Class().String(), "consumers", consumers)
		n++
	}
	m.dispatched.Add(int64(n))

	// Predecessors may have been completed outside this pool; rescan.
	if m.pool.QueuedCount() > 0 {
		m.pool.Notify()
	}
	return n
}

// Loop calls Run every tick until ctx is cancelled, then kills the pool.
// Returns ctx.Err().
func (m *Manager) Loop(ctx context.Context) error {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("order manager stopping: context cancelled")
			m.Run()
			m.Kill()
			return ctx.Err()
		case <-ticker.C:
			m.Run()
		}
	}
}

// Drain runs ticks until at least n orders have been dispatched by this
// call or ctx is done. Returns the number dispatched.
func (m *Manager) Drain(ctx context.Context, n int) (int, error) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	total := m.Run()
	for total < n {
		if m.pool.Killed() {
			return total, fmt.Errorf("drain: %d of %d orders dispatched: %w", total, n, pool.ErrKilled)
		}
		select {
		case <-ctx.Done():
			return total, fmt.Errorf("drain: %d of %d orders dispatched: %w", total, n, ctx.Err())
		case <-ticker.C:
			total += m.Run()
		}
	}
	return total, nil
}

// Kill stops the pool and discards queued orders. Idempotent.
// Returns the number of orders discarded, including orders still waiting
// in the provider.
func (m *Manager) Kill() int {
	discarded := m.pool.Kill()
	for _, o := range m.provider.OrdersAndClear() {
		m.journal.Emit(journal.KindDiscarded, o, journal.NoWorker)
		discarded++
	}
	if discarded > 0 {
		slog.Info("order manager killed", "discarded", discarded)
	}
	return discarded
}

// Session returns the journal session token, or "" when no journal is
// configured.
func (m *Manager) Session() string {
	return m.journal.Session()
}

// Stats is a point-in-time snapshot of manager counters.
type Stats struct {
	Workers    int   `json:"workers"`
	Idle       int   `json:"idle"`
	Queued     int   `json:"queued"`
	Submitted  int64 `json:"submitted"`
	Dispatched int64 `json:"dispatched"`
	Executed   int64 `json:"executed"`
}

// Stats returns current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Workers:    m.pool.WorkerCount(),
		Idle:       m.pool.IdleCount(),
		Queued:     m.pool.QueuedCount() + m.provider.Len(),
		Submitted:  m.submitted.Load(),
		Dispatched: m.dispatched.Load(),
		Executed:   m.pool.Executed(),
	}
}
