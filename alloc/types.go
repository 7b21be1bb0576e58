package alloc

import (
	"fmt"
	"math"
)

// NoSpace is the sentinel offset and metadata of a failed allocation, and the
// null value of every node link.
const NoSpace = math.MaxUint32

// unused marks an empty link or bin head.
const unused = NoSpace

// DefaultMaxAllocs is the node pool capacity used when none is configured.
const DefaultMaxAllocs = 128 * 1024

// Allocation is the handle returned by Allocate. Offset is the start of the
// range within the heap; Metadata is the allocator's node index. Both must be
// presented unchanged to Free.
type Allocation struct {
	Offset   uint32
	Metadata uint32
}

// Failed is the handle returned alongside an error.
var Failed = Allocation{Offset: NoSpace, Metadata: NoSpace}

// Valid reports whether a is not the failure sentinel.
func (a Allocation) Valid() bool {
	return a.Metadata != NoSpace
}

func (a Allocation) String() string {
	if !a.Valid() {
		return "[no space]"
	}
	return fmt.Sprintf("[off=%d node=%d]", a.Offset, a.Metadata)
}

// StorageReport summarizes free space.
type StorageReport struct {
	// TotalFreeSpace is the sum of all free region sizes.
	TotalFreeSpace uint32

	// LargestFreeRegion is the lower bound of the largest non-empty size
	// class. An allocation of this size is guaranteed to succeed as long as
	// a node slot is available.
	LargestFreeRegion uint32
}

func (r StorageReport) String() string {
	return fmt.Sprintf("Storage[free=%d, largest=%d]", r.TotalFreeSpace, r.LargestFreeRegion)
}

// RegionCount is the number of free regions in one size class.
type RegionCount struct {
	Size  uint64 // class lower bound
	Count uint32
}

// StorageReportFull holds per-class free region counts, indexed by class.
type StorageReportFull struct {
	FreeRegions [NumClasses]RegionCount
}

// Stats holds allocator counters for instrumentation and tests.
type Stats struct {
	AllocCalls     int // Allocate calls
	AllocFailures  int // Allocate calls that returned ErrOutOfSpace
	FreeCalls      int // successful Free calls
	SplitCount     int // allocations that split off a remainder
	MergeBackward  int // frees merged with the left neighbor
	MergeForward   int // frees merged with the right neighbor
	RejectedFrees  int // Free calls refused as contract violations
	ResetCount     int
	PeakAllocCount int // highest number of simultaneously used nodes
}
