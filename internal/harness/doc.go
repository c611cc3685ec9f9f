// Package harness runs scheduler scenarios described in YAML.
//
// A scenario declares consumers and their interested classes, a set of
// orders with predecessors, and assertions on what each consumer received
// and how each order ended. Scenarios run against a real manager, pool and
// in-memory journal; nothing is simulated.
//
// Scenario validation rejects unknown keys, dangling references and
// predecessor cycles (Tarjan's algorithm over the after: graph).
//
// # Determinism
//
// Order ids come from a per-run clock and the journal session token is
// fixed, so outcomes and error messages are stable. Delivery order between
// independent orders depends on worker timing; golden snapshots therefore
// sort deliveries per consumer, and ordering is checked with
// delivered_order assertions instead.
//
// # Golden files
//
// Snapshots live in testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
