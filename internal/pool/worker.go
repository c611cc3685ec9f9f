package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/mvvplatform/internal/journal"
	"github.com/roach88/mvvplatform/internal/order"
)

// worker owns one goroutine and a single-slot job cell.
//
// States:
//   - IDLE: job == nil, goroutine blocked in cond.Wait
//   - RUNNING: job != nil, goroutine inside Compute
//
// assign moves IDLE -> RUNNING and may only be called by the pool on a
// worker it popped from the idle stack. The goroutine moves RUNNING -> IDLE
// after Compute returns, then reports back through workerFinished.
//
// Thread-safety: all fields except id and pool are protected by mu.
type worker struct {
	id   int
	pool *Pool

	mu     sync.Mutex
	cond   *sync.Cond
	job    *order.Order
	closed bool
}

func newWorker(id int, p *Pool) *worker {
	w := &worker{id: id, pool: p}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// assign hands o to an idle worker and wakes it. Returns false without
// taking o if the worker was closed, since its goroutine may already have
// exited.
// Panics if the worker is already running: the pool handed the same worker
// out twice.
func (w *worker) assign(o *order.Order) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	if w.job != nil {
		panic(fmt.Sprintf("pool: worker %d assigned %s while running %s", w.id, o, w.job))
	}
	w.job = o
	w.cond.Signal()
	return true
}

// close asks the worker goroutine to exit. A job already assigned still
// runs to completion; later assigns are refused.
func (w *worker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.cond.Broadcast()
}

// busy reports whether the worker currently holds a job.
func (w *worker) busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.job != nil
}

// loop is the worker goroutine.
func (w *worker) loop(ctx context.Context) {
	for {
		w.mu.Lock()
		for w.job == nil && !w.closed {
			w.cond.Wait()
		}
		if w.job == nil {
			// Closed while idle.
			w.mu.Unlock()
			return
		}
		job := w.job
		w.mu.Unlock()

		w.pool.journal.Emit(journal.KindStarted, job, w.id)
		slog.Debug("worker running order", "worker", w.id, "order_id", job.ID(), "class", job.Class().String())

		res := job.Compute(ctx)
		if res.Err != nil {
			slog.Warn("order failed", "worker", w.id, "order_id", job.ID(), "class", job.Class().String(), "error", res.Err)
		}

		w.mu.Lock()
		w.job = nil
		w.mu.Unlock()

		w.pool.workerFinished(job, w)
	}
}
