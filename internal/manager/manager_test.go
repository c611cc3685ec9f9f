package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mvvplatform/internal/journal"
	"github.com/roach88/mvvplatform/internal/order"
	"github.com/roach88/mvvplatform/internal/pool"
	"github.com/roach88/mvvplatform/internal/symbol"
	"github.com/roach88/mvvplatform/internal/testutil"
)

var (
	load = symbol.Intern("LOAD")
	save = symbol.Intern("SAVE")
)

func drain(t *testing.T, m *Manager, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := m.Drain(ctx, n)
	require.NoError(t, err)
	require.Equal(t, n, got)
}

func TestManager_DependentDeliveredAfterPredecessor(t *testing.T) {
	m := New(2)
	defer m.Kill()

	f := testutil.NewOrderFactory()
	loader := testutil.NewRecordingConsumer("loader", load)
	m.Connect(loader)

	a, release := f.Gated(load, "a")
	b := f.Value(load, "b", order.After(a))
	m.PushOrder(a)
	m.PushOrder(b)

	m.Run()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, m.Run(), "nothing finished while a is gated")
	release()

	drain(t, m, 2)
	assert.Equal(t, []int64{a.ID(), b.ID()}, loader.IDs())
}

func TestManager_UninterestedConsumerReceivesNothing(t *testing.T) {
	m := New(1)
	defer m.Kill()

	f := testutil.NewOrderFactory()
	saver := testutil.NewRecordingConsumer("saver", save)
	loader := testutil.NewRecordingConsumer("loader", load)
	m.Connect(saver)
	m.Connect(loader)

	m.PushOrder(f.Value(load, 1))
	drain(t, m, 1)

	assert.Equal(t, 0, saver.Count())
	assert.Equal(t, 1, loader.Count())
}

func TestManager_FinishedWithoutConsumerIsStillDrained(t *testing.T) {
	m := New(1)
	defer m.Kill()

	f := testutil.NewOrderFactory()
	m.PushOrder(f.Value(load, 1))
	drain(t, m, 1)

	assert.Equal(t, int64(1), m.Stats().Dispatched)
}

func TestManager_Disconnect(t *testing.T) {
	m := New(1)
	defer m.Kill()

	f := testutil.NewOrderFactory()
	c := testutil.NewRecordingConsumer("c", load)
	m.Connect(c)
	m.Disconnect(c)

	m.PushOrder(f.Value(load, 1))
	drain(t, m, 1)
	assert.Equal(t, 0, c.Count())
}

func TestManager_FailedOrderIsDelivered(t *testing.T) {
	m := New(2)
	defer m.Kill()

	f := testutil.NewOrderFactory()
	c := testutil.NewRecordingConsumer("c", load)
	m.Connect(c)

	boom := errors.New("boom")
	a := f.Failing(load, boom)
	b := f.Value(load, 2, order.After(a))
	m.PushOrder(a)
	m.PushOrder(b)
	drain(t, m, 2)

	received := c.Received()
	require.Len(t, received, 2)
	assert.ErrorIs(t, received[0].Result().Err, boom)
	assert.ErrorIs(t, received[1].Result().Err, order.ErrPredecessorFailed)
}

func TestManager_KillDiscardsQueued(t *testing.T) {
	m := New(1)
	f := testutil.NewOrderFactory()

	blocked, release := f.Gated(load, 1)
	defer release()
	never := f.Value(load, 2)
	dependent := f.Value(load, 3, order.After(never))

	m.PushOrder(blocked)
	m.PushOrder(dependent)
	m.Run()
	m.PushOrder(f.Value(load, 4)) // still in the provider

	release()
	assert.Equal(t, 2, m.Kill())
	assert.Equal(t, 0, m.Kill())
}

func TestManager_DrainStopsWhenKilled(t *testing.T) {
	m := New(1)
	m.Kill()

	_, err := m.Drain(context.Background(), 1)
	assert.ErrorIs(t, err, pool.ErrKilled)
}

func TestManager_DrainHonorsContext(t *testing.T) {
	m := New(1)
	defer m.Kill()

	f := testutil.NewOrderFactory()
	m.PushOrder(f.Value(load, 1, order.After(f.Value(load, 0))))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	n, err := m.Drain(ctx, 1)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_Loop(t *testing.T) {
	m := New(2, WithTick(time.Millisecond))
	f := testutil.NewOrderFactory()
	c := testutil.NewRecordingConsumer("c", load)
	m.Connect(c)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Loop(ctx) }()

	for i := 0; i < 10; i++ {
		m.PushOrder(f.Value(load, i))
	}
	require.Eventually(t, func() bool { return c.Count() == 10 }, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestManager_JournalsLifecycle(t *testing.T) {
	mem := journal.NewMemory()
	m := New(1, WithJournal(mem, testutil.NewFixedSessionGenerator("s-1")), WithScanPolicy(pool.ScanStrict))
	defer m.Kill()
	assert.Equal(t, "s-1", m.Session())

	f := testutil.NewOrderFactory()
	o := f.Value(load, 1)
	m.PushOrder(o)
	drain(t, m, 1)

	events, err := mem.ReadSession(context.Background(), "s-1")
	require.NoError(t, err)
	var kinds []journal.Kind
	for _, ev := range events {
		assert.Equal(t, o.ID(), ev.OrderID)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []journal.Kind{
		journal.KindSubmitted,
		journal.KindStarted,
		journal.KindFinished,
		journal.KindDispatched,
	}, kinds)
}

func TestManager_NoJournalHasNoSession(t *testing.T) {
	m := New(1)
	defer m.Kill()
	assert.Equal(t, "", m.Session())
}
