// Package store provides SQLite-backed durable storage for order journals.
//
// Each scheduler run is a session identified by a UUIDv7 token. Events are
// keyed by (session, seq) where seq comes from the journal's atomic clock,
// so a session reads back in the order it was emitted regardless of wall
// time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce session references
package store
