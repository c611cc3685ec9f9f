// Package engine implements a push-invalidate, pull-recompute graph.
//
// A Resource is a shared, reference-counted value cell. Mutating it calls
// Notify, which marks every watching Engine dirty and forwards the
// notification to linked resources. Engines never recompute on notify;
// recomputation happens when the owner calls Run (usually through a
// HandlerImpl once per tick).
//
// Thread-safety model:
//   - Resources, engines and handlers belong to one goroutine (the graph
//     goroutine) and carry no locks.
//   - Storage is the exception: it may be written from any goroutine and
//     its pending notifications are delivered by Flush on the graph
//     goroutine.
//
// Back-links between engines and resources exist for cleanup only. An
// engine watching a resource does not keep it alive.
package engine
