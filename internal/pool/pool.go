package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/mvvplatform/internal/journal"
	"github.com/roach88/mvvplatform/internal/order"
)

// ErrKilled is returned by operations on a pool after Kill.
var ErrKilled = errors.New("pool killed")

// ScanPolicy decides what the manager does with synchronous orders once no
// worker is idle.
type ScanPolicy int

const (
	// ScanDrainSync keeps scanning the queue when no worker is idle so that
	// ready synchronous orders still run on the manager goroutine.
	// Multithreaded orders wait for the next wake.
	ScanDrainSync ScanPolicy = iota

	// ScanStrict stops the scan as soon as no worker is idle, and does not
	// scan at all while every worker is busy. Synchronous orders queued
	// behind that point wait for a worker to come back.
	ScanStrict
)

// String returns the config spelling of the policy.
func (s ScanPolicy) String() string {
	switch s {
	case ScanDrainSync:
		return "drain-sync"
	case ScanStrict:
		return "strict"
	default:
		return fmt.Sprintf("ScanPolicy(%d)", int(s))
	}
}

// ParseScanPolicy parses "drain-sync" or "strict".
func ParseScanPolicy(s string) (ScanPolicy, error) {
	switch s {
	case "", "drain-sync":
		return ScanDrainSync, nil
	case "strict":
		return ScanStrict, nil
	default:
		return 0, fmt.Errorf("unknown scan policy %q (want drain-sync or strict)", s)
	}
}

// Option configures a Pool.
type Option func(*Pool)

// WithScanPolicy sets the scan policy (default ScanDrainSync).
func WithScanPolicy(policy ScanPolicy) Option {
	return func(p *Pool) {
		p.scan = policy
	}
}

// WithJournal records worker-side lifecycle events (started, finished,
// failed, discarded) to l.
func WithJournal(l *journal.Log) Option {
	return func(p *Pool) {
		p.journal = l
	}
}

// Pool runs orders on a fixed set of workers while honoring predecessor
// dependencies.
//
// Goroutine topology:
//   - N workers, each blocked on its own condition variable while idle
//   - 1 manager, blocked on the wake signal while there is nothing to do
//
// The manager resolves predecessors: an order is handed out only once every
// predecessor has a result. Orders whose predecessor failed are completed
// as failed without running. Orders whose predecessor never completes stay
// queued forever; the pool does not detect this.
//
// Thread-safety: Push, FinishedOrdersAndClear, Notify, Kill and the
// counters are safe for concurrent use.
type Pool struct {
	// State shared between the manager, the workers and callers.
	mu       deadlock.Mutex
	toRun    []*order.Order
	finished []*order.Order
	idle     []*worker // stack: the most recently freed worker is reused first
	killed   bool

	workers []*worker
	wake    chan struct{} // buffered, size 1: coalesces notifications

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	killOnce sync.Once
	executed atomic.Int64

	scan    ScanPolicy
	journal *journal.Log

	// afterScan runs on the manager between releasing mu and handing out
	// the scanned orders. Tests only.
	afterScan func()
}

// New starts a pool with n workers and its manager goroutine.
// Panics if n < 1.
func New(n int, opts ...Option) *Pool {
	if n < 1 {
		panic(fmt.Sprintf("pool: need at least one worker, got %d", n))
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		toRun:    make([]*order.Order, 0, 64),
		finished: make([]*order.Order, 0, 64),
		idle:     make([]*worker, 0, n),
		workers:  make([]*worker, 0, n),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < n; i++ {
		w := newWorker(i, p)
		p.workers = append(p.workers, w)
		p.idle = append(p.idle, w)
	}
	for _, w := range p.workers {
		p.group.Go(func() error {
			w.loop(p.ctx)
			return nil
		})
	}
	p.group.Go(func() error {
		p.manage()
		return nil
	})

	slog.Debug("pool started", "workers", n, "scan_policy", p.scan.String())
	return p
}

// Push queues o for execution and wakes the manager.
// Returns false if the pool has been killed.
func (p *Pool) Push(o *order.Order) bool {
	if o == nil {
		panic("pool: push of nil order")
	}

	p.mu.Lock()
	if p.killed {
		p.mu.Unlock()
		return false
	}
	p.toRun = append(p.toRun, o)
	p.mu.Unlock()

	p.Notify()
	return true
}

// Notify wakes the manager so it rescans the queue. Push and worker
// completion call it; callers only need it when a predecessor was
// completed outside this pool.
func (p *Pool) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// FinishedOrdersAndClear returns every finished order in completion order
// and empties the finished list.
func (p *Pool) FinishedOrdersAndClear() []*order.Order {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.finished) == 0 {
		return nil
	}
	drained := p.finished
	p.finished = make([]*order.Order, 0, cap(drained))
	return drained
}

// workerFinished is called by a worker goroutine once its job is computed.
func (p *Pool) workerFinished(o *order.Order, w *worker) {
	p.executed.Add(1)
	p.journal.Emit(journal.KindFinished, o, w.id)

	p.mu.Lock()
	p.finished = append(p.finished, o)
	p.idle = append(p.idle, w)
	p.mu.Unlock()

	p.Notify()
}

// manage is the manager goroutine.
func (p *Pool) manage() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}

		// Inline work can unblock orders scanned earlier in the same pass,
		// so keep scanning while passes make progress.
		for p.check() {
			if p.ctx.Err() != nil {
				return
			}
		}
	}
}

type assignment struct {
	w *worker
	o *order.Order
}

// check performs one scan of the queue in submission order.
// Returns true if it completed an order on the manager goroutine, in which
// case another pass may find newly ready dependents.
func (p *Pool) check() bool {
	p.mu.Lock()
	if p.killed || len(p.toRun) == 0 {
		p.mu.Unlock()
		return false
	}
	if p.scan == ScanStrict && len(p.idle) == 0 {
		p.mu.Unlock()
		return false
	}

	pending := p.toRun
	keep := make([]*order.Order, 0, len(pending))
	var (
		assigned []assignment
		inline   []*order.Order
		failed   []*order.Order
	)

	for i, o := range pending {
		if p.scan == ScanStrict && len(p.idle) == 0 {
			keep = append(keep, pending[i:]...)
			break
		}
		if !o.Ready() {
			keep = append(keep, o)
			continue
		}
		if fp := o.FailedPredecessor(); fp != nil {
			o.Fail(fmt.Errorf("%w: %s", order.ErrPredecessorFailed, fp))
			failed = append(failed, o)
			continue
		}
		if !o.Multithreaded() {
			inline = append(inline, o)
			continue
		}
		if len(p.idle) == 0 {
			keep = append(keep, o)
			continue
		}
		w := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		assigned = append(assigned, assignment{w: w, o: o})
	}

	p.toRun = keep
	p.finished = append(p.finished, failed...)
	hook := p.afterScan
	p.mu.Unlock()

	if hook != nil {
		hook()
	}

	for _, o := range failed {
		slog.Warn("order skipped: predecessor failed", "order_id", o.ID(), "class", o.Class().String())
		p.journal.Emit(journal.KindFinished, o, journal.NoWorker)
	}

	// Kill may have closed the workers and cancelled the context since the
	// scan. Orders that did not start go back on the queue, where Kill
	// discards them once the manager has exited.
	var unstarted []*order.Order
	for _, a := range assigned {
		if !a.w.assign(a.o) {
			unstarted = append(unstarted, a.o)
			continue
		}
		slog.Debug("order assigned", "order_id", a.o.ID(), "class", a.o.Class().String(), "worker", a.w.id)
	}

	ran := 0
	for i, o := range inline {
		if p.ctx.Err() != nil {
			unstarted = append(unstarted, inline[i:]...)
			break
		}
		p.runInline(o)
		ran++
	}

	if len(unstarted) > 0 {
		p.mu.Lock()
		p.toRun = append(unstarted, p.toRun...)
		p.mu.Unlock()
	}

	return ran > 0 || len(failed) > 0
}

// runInline computes a synchronous order on the manager goroutine.
func (p *Pool) runInline(o *order.Order) {
	p.journal.Emit(journal.KindStarted, o, journal.NoWorker)
	res := o.Compute(p.ctx)
	if res.Err != nil {
		slog.Warn("order failed", "order_id", o.ID(), "class", o.Class().String(), "error", res.Err)
	}
	p.executed.Add(1)
	p.journal.Emit(journal.KindFinished, o, journal.NoWorker)

	p.mu.Lock()
	p.finished = append(p.finished, o)
	p.mu.Unlock()
}

// Kill stops the pool: the manager exits, idle workers exit, running
// orders finish, and queued orders that never started are discarded.
// Blocks until every goroutine has exited.
//
// Idempotent: returns the number of discarded orders on the first call and
// 0 afterwards. Concurrent callers block until the first call completes.
func (p *Pool) Kill() int {
	discarded := 0
	p.killOnce.Do(func() {
		p.mu.Lock()
		p.killed = true
		p.mu.Unlock()

		p.cancel()
		for _, w := range p.workers {
			w.close()
		}
		_ = p.group.Wait()

		p.mu.Lock()
		dropped := p.toRun
		p.toRun = nil
		p.mu.Unlock()

		for _, o := range dropped {
			p.journal.Emit(journal.KindDiscarded, o, journal.NoWorker)
		}
		discarded = len(dropped)

		slog.Debug("pool killed", "discarded", discarded, "executed", p.executed.Load())
	})
	return discarded
}

// Killed reports whether Kill has been called.
func (p *Pool) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// WorkerCount returns the number of workers.
func (p *Pool) WorkerCount() int { return len(p.workers) }

// IdleCount returns the number of idle workers.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// ActiveCount returns the number of workers currently running an order.
func (p *Pool) ActiveCount() int {
	n := 0
	for _, w := range p.workers {
		if w.busy() {
			n++
		}
	}
	return n
}

// QueuedCount returns the number of orders not yet started.
func (p *Pool) QueuedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.toRun)
}

// FinishedCount returns the number of finished orders awaiting pickup.
func (p *Pool) FinishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.finished)
}

// Executed returns the number of orders computed so far (excluding orders
// failed because of a predecessor).
func (p *Pool) Executed() int64 {
	return p.executed.Load()
}
