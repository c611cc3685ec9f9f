package engineorder

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/mvvplatform/internal/engine"
	"github.com/roach88/mvvplatform/internal/order"
	"github.com/roach88/mvvplatform/internal/symbol"
)

// LoadClass is the default class of orders pushed by a Loader.
var LoadClass = symbol.Intern("LOAD")

// Loaded is a Storage entry: the loaded value or the load error.
type Loaded[V any] struct {
	Value V
	Err   error
}

// LoadFunc loads the value for a key on a worker.
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Loader watches a resource of wanted keys. Each run pushes one load order
// per key that is neither stored nor already in flight; each result is
// written to a Storage, which the graph goroutine flushes to notify
// downstream engines.
type Loader[K comparable, V any] struct {
	eo    *EngineOrder
	class order.ClassID
	keys  *engine.Resource[[]K]
	store *engine.Storage[K, Loaded[V]]
	load  LoadFunc[K, V]

	mu       sync.Mutex
	inflight map[K]*order.Order
	byOrder  map[*order.Order]K
}

// LoaderOption configures a Loader.
type LoaderOption func(*loaderConfig)

type loaderConfig struct {
	class order.ClassID
	name  string
}

// WithClass sets the order class (default LoadClass).
func WithClass(class order.ClassID) LoaderOption {
	return func(c *loaderConfig) { c.class = class }
}

// WithName sets the engine name used in logs.
func WithName(name string) LoaderOption {
	return func(c *loaderConfig) { c.name = name }
}

// NewLoader connects a loader to h and orders. The loader keeps its own
// handle to keys and releases it on Close.
func NewLoader[K comparable, V any](
	h engine.Handler,
	orders Orders,
	keys *engine.Resource[[]K],
	store *engine.Storage[K, Loaded[V]],
	load LoadFunc[K, V],
	opts ...LoaderOption,
) *Loader[K, V] {
	cfg := loaderConfig{class: LoadClass, name: "loader"}
	for _, opt := range opts {
		opt(&cfg)
	}

	l := &Loader[K, V]{
		class:    cfg.class,
		keys:     keys.Clone(),
		store:    store,
		load:     load,
		inflight: make(map[K]*order.Order),
		byOrder:  make(map[*order.Order]K),
	}
	l.eo = New(Config{
		Name:       cfg.name,
		Handler:    h,
		Orders:     orders,
		Interested: []order.ClassID{cfg.class},
		Run:        func(*EngineOrder) bool { return l.run() },
		Consume:    func(_ *EngineOrder, o *order.Order) { l.consume(o) },
	})
	l.eo.Engine().Watch(l.keys)
	return l
}

// Engine returns the loader's engine.
func (l *Loader[K, V]) Engine() *engine.Engine { return l.eo.Engine() }

func (l *Loader[K, V]) run() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range l.keys.Value() {
		if _, ok := l.inflight[key]; ok {
			continue
		}
		if _, ok := l.store.Get(key); ok {
			continue
		}
		k := key
		o := order.Typed(l.class, func(ctx context.Context) (V, error) {
			return l.load(ctx, k)
		})
		l.inflight[k] = o
		l.byOrder[o] = k
		l.eo.Push(o)
		slog.Debug("load order pushed", "engine", l.eo.name, "order_id", o.ID())
	}
	return true
}

func (l *Loader[K, V]) consume(o *order.Order) {
	l.mu.Lock()
	key, ok := l.byOrder[o]
	if ok {
		delete(l.byOrder, o)
		delete(l.inflight, key)
	}
	l.mu.Unlock()
	if !ok {
		// Another loader's order of the same class.
		return
	}

	v, err := order.Value[V](o)
	l.store.Put(key, Loaded[V]{Value: v, Err: err})
	if err != nil {
		slog.Warn("load failed", "engine", l.eo.name, "order_id", o.ID(), "error", err)
	}
}

// InFlight returns the number of loads pushed and not yet consumed.
func (l *Loader[K, V]) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inflight)
}

// Forget drops the stored entry for key and schedules a reload on the
// next run if the key is still wanted.
func (l *Loader[K, V]) Forget(key K) {
	l.store.Delete(key)
	l.eo.Engine().Invalidate()
}

// Close disconnects the loader and releases its key handle. Idempotent.
// Results of loads still in flight are dropped.
func (l *Loader[K, V]) Close() {
	if l.eo.Closed() {
		return
	}
	l.eo.Close()
	l.keys.Release()
}
