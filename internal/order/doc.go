// Package order defines the unit of asynchronous work and the plumbing
// around it.
//
// An Order is created by a producer, pushed into a Provider, computed
// exactly once by a scheduler (see package pool), and finally handed to a
// Dispatcher which fans it out to every Consumer interested in the order's
// class id.
//
// Results are explicit: a computed order carries either a value or an
// error. Consumers never see a nil result.
package order
