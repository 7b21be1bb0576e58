package alloc

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfSpace indicates that no free region is large enough for the request,
	// or that the node pool has no slot left to hold the split remainder.
	// The allocator is left untouched when this is returned.
	ErrOutOfSpace = errors.New("alloc: out of space")

	// ErrContractViolation is the parent of every error caused by a caller
	// presenting a handle the allocator did not hand out, or no longer owns.
	ErrContractViolation = errors.New("alloc: contract violation")

	// ErrBadHandle indicates a handle whose node index is out of range or whose
	// offset does not match the node it names.
	ErrBadHandle = errors.Wrap(ErrContractViolation, "bad allocation handle")

	// ErrDoubleFree indicates a handle whose node is not currently in use.
	ErrDoubleFree = errors.Wrap(ErrContractViolation, "allocation is not in use")

	// ErrInvalidConfig indicates unusable construction parameters.
	ErrInvalidConfig = errors.New("alloc: invalid configuration")

	// ErrCorrupt is returned by Validate when internal bookkeeping is inconsistent.
	ErrCorrupt = errors.New("alloc: corrupt state")
)
