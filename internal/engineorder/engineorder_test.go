package engineorder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mvvplatform/internal/engine"
	"github.com/roach88/mvvplatform/internal/manager"
	"github.com/roach88/mvvplatform/internal/order"
	"github.com/roach88/mvvplatform/internal/symbol"
)

var pingClass = symbol.Intern("engineorder-test-ping")

// tickUntil drives manager, storage and handler the way an application
// frame loop would, until cond holds.
func tickUntil(t *testing.T, m *manager.Manager, h *engine.HandlerImpl, flush func(), cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		h.Run()
		m.Run()
		if flush != nil {
			flush()
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngineOrder_ConnectsAndDisconnectsSymmetrically(t *testing.T) {
	m := manager.New(1)
	defer m.Kill()
	h := engine.NewHandler()

	var got []*order.Order
	eo := New(Config{
		Name:       "ping",
		Handler:    h,
		Orders:     m,
		Interested: []order.ClassID{pingClass},
		Run: func(eo *EngineOrder) bool {
			eo.Push(order.New(pingClass, func(ctx context.Context) (any, error) { return "pong", nil }))
			return true
		},
		Consume: func(_ *EngineOrder, o *order.Order) { got = append(got, o) },
	})
	require.Equal(t, 1, h.Len())

	eo.Engine().Invalidate()
	tickUntil(t, m, h, nil, func() bool { return len(got) == 1 })
	assert.Equal(t, "pong", got[0].Result().Value)

	eo.Close()
	eo.Close()
	assert.True(t, eo.Closed())
	assert.Equal(t, 0, h.Len())

	// A result arriving after Close is not delivered.
	m.PushOrder(order.New(pingClass, func(ctx context.Context) (any, error) { return 1, nil }))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := m.Drain(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNew_Validates(t *testing.T) {
	assert.Panics(t, func() { New(Config{Name: "x"}) })

	m := manager.New(1)
	defer m.Kill()
	assert.Panics(t, func() { New(Config{Name: "x", Orders: m}) })
}

type volume struct {
	id   int
	size int
}

func TestLoader_LoadsWantedKeysOnce(t *testing.T) {
	m := manager.New(2)
	defer m.Kill()
	h := engine.NewHandler()

	keys := engine.NewResource([]int{1, 2})
	defer keys.Release()
	volumes := engine.NewStorage[int, Loaded[volume]]()

	calls := map[int]int{}
	loadCalls := make(chan int, 16)
	l := NewLoader(h, m, keys, volumes, func(ctx context.Context, id int) (volume, error) {
		loadCalls <- id
		if id == 3 {
			return volume{}, errors.New("corrupt header")
		}
		return volume{id: id, size: id * 10}, nil
	}, WithName("volumes"))
	defer l.Close()

	// Downstream engine that reacts to new volumes.
	renders := 0
	view := engine.NewEngine(h, "view", func(*engine.Engine) bool {
		renders++
		return true
	})
	view.Watch(volumes)

	keys.Notify()
	tickUntil(t, m, h, func() { volumes.Flush() }, func() bool { return volumes.Len() == 2 })

	v, ok := volumes.Get(2)
	require.True(t, ok)
	require.NoError(t, v.Err)
	assert.Equal(t, 20, v.Value.size)
	assert.Equal(t, 0, l.InFlight())

	// Rerun with the same keys: nothing is reloaded.
	keys.Notify()
	h.Run()
	assert.Equal(t, 0, l.InFlight())

	keys.SetValue([]int{1, 2, 3})
	tickUntil(t, m, h, func() { volumes.Flush() }, func() bool { return volumes.Len() == 3 })
	v, _ = volumes.Get(3)
	assert.EqualError(t, errors.Unwrap(v.Err), "corrupt header")

	close(loadCalls)
	for id := range loadCalls {
		calls[id]++
	}
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1}, calls, "each key loaded exactly once")

	h.Run()
	assert.Positive(t, renders, "storage flush notified the downstream engine")
}

func TestLoader_Forget(t *testing.T) {
	m := manager.New(1)
	defer m.Kill()
	h := engine.NewHandler()

	keys := engine.NewResource([]string{"a"})
	defer keys.Release()
	store := engine.NewStorage[string, Loaded[string]]()

	n := 0
	l := NewLoader(h, m, keys, store, func(ctx context.Context, k string) (string, error) {
		n++
		return fmt.Sprintf("%s-%d", k, n), nil
	})
	defer l.Close()

	l.Engine().Invalidate()
	tickUntil(t, m, h, nil, func() bool { return store.Len() == 1 })

	l.Forget("a")
	tickUntil(t, m, h, nil, func() bool {
		v, ok := store.Get("a")
		return ok && v.Value == "a-2"
	})
}

func TestLoader_IgnoresForeignOrders(t *testing.T) {
	m := manager.New(1)
	defer m.Kill()
	h := engine.NewHandler()

	keys := engine.NewResource([]int{})
	defer keys.Release()
	store := engine.NewStorage[int, Loaded[int]]()
	l := NewLoader(h, m, keys, store, func(ctx context.Context, k int) (int, error) { return k, nil })
	defer l.Close()

	m.PushOrder(order.New(LoadClass, func(ctx context.Context) (any, error) { return 1, nil }))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := m.Drain(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestLoader_CloseReleasesKeys(t *testing.T) {
	m := manager.New(1)
	defer m.Kill()

	keys := engine.NewResource([]int{1})
	store := engine.NewStorage[int, Loaded[int]]()
	l := NewLoader(engine.NewHandler(), m, keys, store, func(ctx context.Context, k int) (int, error) { return k, nil })

	assert.Equal(t, int64(2), keys.Refs())
	assert.Equal(t, 1, keys.Watchers())
	l.Close()
	l.Close()
	assert.Equal(t, int64(1), keys.Refs())
	assert.Equal(t, 0, keys.Watchers())
	keys.Release()
}
