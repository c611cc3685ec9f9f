// Package pool executes orders on a fixed set of worker goroutines.
//
// A manager goroutine scans the queue in submission order whenever it is
// woken (by a push or by a worker finishing) and hands ready orders to idle
// workers. Synchronous orders are computed by the manager itself. Finished
// orders accumulate until the owner drains them with
// FinishedOrdersAndClear.
package pool
