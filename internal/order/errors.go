package order

import (
	"errors"
	"fmt"
)

var (
	// ErrNotComputed is returned by Value when the order has no result yet.
	ErrNotComputed = errors.New("order not computed")

	// ErrPredecessorFailed marks an order that was never run because one of
	// its predecessors completed with an error.
	ErrPredecessorFailed = errors.New("predecessor failed")
)

// ComputeError wraps a failure raised by an order's work function.
//
// The scheduler never retries; the error travels with the order to every
// interested consumer.
type ComputeError struct {
	OrderID int64
	Class   string
	Err     error
}

// Error implements the error interface.
func (e *ComputeError) Error() string {
	return fmt.Sprintf("order %d (%s): %v", e.OrderID, e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *ComputeError) Unwrap() error {
	return e.Err
}

// IsComputeError returns true if err is or wraps a ComputeError.
func IsComputeError(err error) bool {
	var ce *ComputeError
	return errors.As(err, &ce)
}
