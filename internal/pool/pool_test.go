package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mvvplatform/internal/journal"
	"github.com/roach88/mvvplatform/internal/order"
	"github.com/roach88/mvvplatform/internal/symbol"
)

var (
	classA = symbol.Intern("pool-test-a")
	classB = symbol.Intern("pool-test-b")
)

const (
	waitFor = 5 * time.Second
	tick    = time.Millisecond
)

// collect drains finished orders until n have been seen.
func collect(t *testing.T, p *Pool, n int) []*order.Order {
	t.Helper()
	var got []*order.Order
	require.Eventually(t, func() bool {
		got = append(got, p.FinishedOrdersAndClear()...)
		return len(got) >= n
	}, waitFor, tick)
	return got
}

func value(v any) order.Func {
	return func(ctx context.Context) (any, error) { return v, nil }
}

func TestNew_RejectsZeroWorkers(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}

func TestPool_RunsOrders(t *testing.T) {
	p := New(4)
	defer p.Kill()

	assert.Equal(t, 4, p.WorkerCount())

	const n = 50
	for i := 0; i < n; i++ {
		require.True(t, p.Push(order.New(classA, value(i))))
	}

	finished := collect(t, p, n)
	assert.Len(t, finished, n)
	for _, o := range finished {
		require.NotNil(t, o.Result())
		assert.True(t, o.Result().OK())
	}
	assert.Equal(t, int64(n), p.Executed())
}

func TestPool_PredecessorRunsFirst(t *testing.T) {
	p := New(2)
	defer p.Kill()

	release := make(chan struct{})
	var aDone atomic.Bool
	a := order.New(classA, func(ctx context.Context) (any, error) {
		<-release
		aDone.Store(true)
		return "a", nil
	})
	b := order.New(classB, func(ctx context.Context) (any, error) {
		if !aDone.Load() {
			return nil, errors.New("b ran before a")
		}
		return "b", nil
	}, order.After(a))

	// Push the dependent first: submission order must not matter.
	p.Push(b)
	p.Push(a)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, b.Complete(), "b must wait for a")
	close(release)

	finished := collect(t, p, 2)
	require.Len(t, finished, 2)
	assert.Same(t, a, finished[0])
	assert.Same(t, b, finished[1])
	assert.True(t, b.Result().OK())
}

func TestPool_FailedPredecessorFailsDependent(t *testing.T) {
	p := New(2)
	defer p.Kill()

	boom := errors.New("boom")
	var ran atomic.Bool
	a := order.New(classA, func(ctx context.Context) (any, error) { return nil, boom })
	b := order.New(classB, func(ctx context.Context) (any, error) {
		ran.Store(true)
		return nil, nil
	}, order.After(a))
	c := order.New(classB, value(1), order.After(b))

	p.Push(a)
	p.Push(b)
	p.Push(c)

	collect(t, p, 3)
	assert.False(t, ran.Load(), "dependent of a failed order never runs")
	assert.ErrorIs(t, b.Result().Err, order.ErrPredecessorFailed)
	assert.ErrorIs(t, c.Result().Err, order.ErrPredecessorFailed, "failure propagates transitively")
	assert.ErrorIs(t, a.Result().Err, boom)
}

func TestPool_SynchronousRunsOnManager(t *testing.T) {
	p := New(1)
	defer p.Kill()

	o := order.New(classA, value("sync"), order.Synchronous())
	p.Push(o)

	finished := collect(t, p, 1)
	assert.Same(t, o, finished[0])
	assert.Equal(t, "sync", o.Result().Value)
}

// With every worker blocked, drain-sync still runs synchronous orders.
func TestPool_DrainSyncRunsSyncWhileWorkersBusy(t *testing.T) {
	p := New(1)
	release := make(chan struct{})
	defer func() {
		close(release)
		p.Kill()
	}()

	blocker := order.New(classA, func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	p.Push(blocker)
	require.Eventually(t, func() bool { return p.IdleCount() == 0 }, waitFor, tick)

	inline := order.New(classB, value(1), order.Synchronous())
	p.Push(inline)

	select {
	case <-inline.Done():
	case <-time.After(waitFor):
		t.Fatal("synchronous order starved behind a busy worker")
	}
}

func TestPool_StrictPolicyWaitsForWorker(t *testing.T) {
	p := New(1, WithScanPolicy(ScanStrict))
	defer p.Kill()

	release := make(chan struct{})
	blocker := order.New(classA, func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	p.Push(blocker)
	require.Eventually(t, func() bool { return p.IdleCount() == 0 }, waitFor, tick)

	inline := order.New(classB, value(1), order.Synchronous())
	p.Push(inline)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, inline.Complete(), "strict scan does not run sync orders while no worker is idle")

	close(release)
	select {
	case <-inline.Done():
	case <-time.After(waitFor):
		t.Fatal("sync order never ran after worker freed")
	}
}

func TestPool_KillIdempotent(t *testing.T) {
	p := New(2)

	never := order.New(classA, value(1))
	gate := order.New(classB, value(2), order.After(never))
	p.Push(gate)

	assert.Equal(t, 1, p.Kill(), "queued order is discarded")
	assert.Equal(t, 0, p.Kill())
	assert.True(t, p.Killed())
	assert.False(t, p.Push(order.New(classA, value(3))), "push after kill is rejected")
	assert.False(t, gate.Complete())
}

func TestPool_KillWaitsForRunningOrder(t *testing.T) {
	p := New(1)

	started := make(chan struct{})
	var finished atomic.Bool
	o := order.New(classA, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		finished.Store(true)
		return nil, ctx.Err()
	})
	p.Push(o)
	<-started

	p.Kill()
	assert.True(t, finished.Load(), "kill returns only after in-flight compute")
	assert.ErrorIs(t, o.Result().Err, context.Canceled)
}

func TestPool_ConcurrentKill(t *testing.T) {
	p := New(3)
	for i := 0; i < 10; i++ {
		p.Push(order.New(classA, value(i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Kill()
		}()
	}
	wg.Wait()
	assert.True(t, p.Killed())
}

// killDuringHandoff arranges for the next scan to Kill the pool after the
// scan releases the lock and before it hands orders out. ready reports when
// Kill has progressed far enough.
func killDuringHandoff(t *testing.T, p *Pool, ready func() bool) <-chan int {
	killed := make(chan int, 1)
	var once sync.Once
	p.mu.Lock()
	p.afterScan = func() {
		once.Do(func() {
			go func() { killed <- p.Kill() }()
			assert.Eventually(t, ready, waitFor, tick)
		})
	}
	p.mu.Unlock()
	return killed
}

func awaitKill(t *testing.T, killed <-chan int) int {
	t.Helper()
	select {
	case n := <-killed:
		return n
	case <-time.After(waitFor):
		t.Fatal("kill did not return")
		return 0
	}
}

func TestPool_KillDuringAssignDiscardsOrder(t *testing.T) {
	mem := journal.NewMemory()
	p := New(1, WithJournal(journal.NewLog(mem, "s")))
	w := p.workers[0]

	killed := killDuringHandoff(t, p, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.closed
	})

	o := order.New(classA, value(1))
	require.True(t, p.Push(o))

	assert.Equal(t, 1, awaitKill(t, killed), "order taken by the scan is counted as discarded")
	assert.False(t, o.Complete())
	assert.Empty(t, p.FinishedOrdersAndClear())

	discarded := mem.OfKind(journal.KindDiscarded)
	require.Len(t, discarded, 1)
	assert.Equal(t, o.ID(), discarded[0].OrderID)
	assert.Empty(t, mem.OfKind(journal.KindStarted))
}

func TestPool_KillDuringInlineSkipsSyncOrders(t *testing.T) {
	mem := journal.NewMemory()
	p := New(1, WithJournal(journal.NewLog(mem, "s")))

	killed := killDuringHandoff(t, p, func() bool { return p.ctx.Err() != nil })

	var ran atomic.Int32
	a := order.New(classA, func(ctx context.Context) (any, error) {
		ran.Add(1)
		return nil, nil
	}, order.Synchronous())
	b := order.New(classB, func(ctx context.Context) (any, error) {
		ran.Add(1)
		return nil, nil
	}, order.Synchronous())

	// Queue both before waking the manager so one scan sees them.
	p.mu.Lock()
	p.toRun = append(p.toRun, a, b)
	p.mu.Unlock()
	p.Notify()

	assert.Equal(t, 2, awaitKill(t, killed))
	assert.Equal(t, int32(0), ran.Load(), "no synchronous order runs after kill")
	assert.False(t, a.Complete())
	assert.False(t, b.Complete())
	assert.Len(t, mem.OfKind(journal.KindDiscarded), 2)
}

func TestPool_JournalEvents(t *testing.T) {
	mem := journal.NewMemory()
	p := New(2, WithJournal(journal.NewLog(mem, "s")))
	defer p.Kill()

	a := order.New(classA, value(1))
	b := order.New(classB, value(2), order.Synchronous(), order.After(a))
	p.Push(a)
	p.Push(b)
	collect(t, p, 2)

	started := mem.OfKind(journal.KindStarted)
	finished := mem.OfKind(journal.KindFinished)
	require.Len(t, started, 2)
	require.Len(t, finished, 2)

	workers := map[int64]int{}
	for _, ev := range started {
		workers[ev.OrderID] = ev.Worker
	}
	assert.GreaterOrEqual(t, workers[a.ID()], 0, "multithreaded order ran on a worker")
	assert.Equal(t, journal.NoWorker, workers[b.ID()], "synchronous order ran on the manager")
}

func TestParseScanPolicy(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want ScanPolicy
	}{
		{"", ScanDrainSync},
		{"drain-sync", ScanDrainSync},
		{"strict", ScanStrict},
	} {
		got, err := ParseScanPolicy(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		if tc.in != "" {
			assert.Equal(t, tc.in, got.String())
		}
	}

	_, err := ParseScanPolicy("lazy")
	assert.Error(t, err)
}
