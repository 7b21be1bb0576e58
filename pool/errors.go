package pool

import "github.com/cockroachdb/errors"

// Pool errors.
var (
	// ErrBudgetExceeded is returned when growing the pool would exceed its
	// byte budget.
	ErrBudgetExceeded = errors.New("pool: memory budget exceeded")

	// ErrTooLarge is returned for requests larger than one heap.
	ErrTooLarge = errors.New("pool: allocation larger than heap size")

	// ErrUnknownHeap is returned when freeing an allocation whose heap is
	// not part of the pool.
	ErrUnknownHeap = errors.New("pool: allocation from unknown heap")

	// ErrInvalidUsage is returned for a buffer usage no heap can serve.
	ErrInvalidUsage = errors.New("pool: invalid buffer usage")
)
