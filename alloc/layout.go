package alloc

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// header is the allocator's control block. It sits at the start of the
// memory passed to Place, followed by the node array and the free-node stack.
// Every field is a plain integer so the block may live in any memory,
// including mappings outside the Go heap.
type header struct {
	size        uint32 // heap size in bytes
	maxAllocs   uint32
	freeStorage uint32 // sum of free node sizes
	freeCount   uint32 // depth of the free-node stack
	allocCount  uint32 // live allocations
	usedBinsTop uint32
	usedBins    [numTopBins]uint8
	binIndices  [NumClasses]uint32
}

const (
	// blockAlign is the required alignment of the memory passed to Place.
	blockAlign = 4

	headerSize = (int(unsafe.Sizeof(header{})) + 7) &^ 7
	nodeSize   = int(unsafe.Sizeof(node{}))
	indexSize  = int(unsafe.Sizeof(uint32(0)))

	// maxMaxAllocs keeps every node index below NoSpace.
	maxMaxAllocs = NoSpace - 2
)

// nodeCapacity is the size of the node pool for a given allocation limit.
// The extra slot holds the free remainder when every allocation is live.
func nodeCapacity(maxAllocs uint32) int {
	return int(maxAllocs) + 1
}

// CalculateAllocatorSize returns the number of bytes Place needs to hold the
// bookkeeping of an allocator with the given allocation limit. It does not
// depend on the heap size.
func CalculateAllocatorSize(maxAllocs uint32) int {
	capacity := nodeCapacity(maxAllocs)
	return headerSize + capacity*nodeSize + capacity*indexSize
}

// Place builds an allocator for a heap of size bytes whose bookkeeping lives
// in mem. The caller keeps ownership of mem and must keep it alive and
// unmodified for as long as the allocator is used; the allocator holds no
// other state.
//
// mem must be 4-byte aligned and at least CalculateAllocatorSize(maxAllocs)
// bytes long. Existing contents are overwritten.
func Place(mem []byte, size, maxAllocs uint32) (*Allocator, error) {
	return place(mem, size, maxAllocs, nil)
}

func place(mem []byte, size, maxAllocs uint32, cfg *Config) (*Allocator, error) {
	if size == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "heap size must be positive")
	}
	if maxAllocs == 0 || maxAllocs > maxMaxAllocs {
		return nil, errors.Wrapf(ErrInvalidConfig, "max allocations %d out of range [1, %d]", maxAllocs, uint32(maxMaxAllocs))
	}

	need := CalculateAllocatorSize(maxAllocs)
	if len(mem) < need {
		return nil, errors.Wrapf(ErrInvalidConfig, "allocator block is %d bytes, need %d", len(mem), need)
	}

	base := unsafe.Pointer(unsafe.SliceData(mem))
	if uintptr(base)%blockAlign != 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "allocator block at %p is not %d-byte aligned", base, blockAlign)
	}

	capacity := nodeCapacity(maxAllocs)
	a := &Allocator{
		mem:       mem[:need],
		hdr:       (*header)(base),
		nodes:     unsafe.Slice((*node)(unsafe.Add(base, headerSize)), capacity),
		freeNodes: unsafe.Slice((*uint32)(unsafe.Add(base, headerSize+capacity*nodeSize)), capacity),
	}
	if cfg != nil {
		a.log = cfg.Logger
	}
	if a.log == nil && logAlloc {
		a.log = stderrLogger()
	}

	a.hdr.size = size
	a.hdr.maxAllocs = maxAllocs
	a.Reset()

	return a, nil
}

// alignedBlock returns a zeroed, 8-byte aligned byte slice of length n.
func alignedBlock(n int) []byte {
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), n)
}
