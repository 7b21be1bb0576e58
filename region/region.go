// Package region pairs an offset allocator with real memory: a heap mapped
// outside the Go heap whose ranges are handed out as byte slices.
//
// The allocator's bookkeeping lives in a second mapping, placed there with
// alloc.Place, so neither the heap nor its control block is scanned by the
// garbage collector.
//
// A Region is not safe for concurrent use.
package region

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/heapkit/alloc"
	"github.com/joshuapare/heapkit/internal/mmap"
)

// ErrClosed is returned by operations on a closed Region.
var ErrClosed = errors.New("region: closed")

// Block is an allocation together with its view of the heap.
type Block struct {
	alloc.Allocation

	// Data is the allocated range, with length and capacity equal to the
	// requested size. It is invalid once the block is freed or the region
	// is closed.
	Data []byte
}

// Region is a mapped heap managed by an offset allocator.
type Region struct {
	heap      []byte
	allocator *alloc.Allocator
	unmap     []func() error
	closed    bool
}

// Open maps a heap of size bytes and an allocator block for up to maxAllocs
// live allocations. A maxAllocs of 0 selects alloc.DefaultMaxAllocs.
func Open(size, maxAllocs uint32) (*Region, error) {
	if maxAllocs == 0 {
		maxAllocs = alloc.DefaultMaxAllocs
	}

	heap, unmapHeap, err := mmap.Anonymous(int(size))
	if err != nil {
		return nil, errors.Wrap(err, "region: map heap")
	}

	block, unmapBlock, err := mmap.Anonymous(alloc.CalculateAllocatorSize(maxAllocs))
	if err != nil {
		_ = unmapHeap()
		return nil, errors.Wrap(err, "region: map allocator block")
	}

	a, err := alloc.Place(block, size, maxAllocs)
	if err != nil {
		_ = unmapBlock()
		_ = unmapHeap()
		return nil, errors.Wrap(err, "region: place allocator")
	}

	return &Region{
		heap:      heap,
		allocator: a,
		unmap:     []func() error{unmapBlock, unmapHeap},
	}, nil
}

// Alloc reserves size bytes of the heap.
func (r *Region) Alloc(size uint32) (Block, error) {
	if r.closed {
		return Block{Allocation: alloc.Failed}, ErrClosed
	}
	h, err := r.allocator.Allocate(size)
	if err != nil {
		return Block{Allocation: alloc.Failed}, err
	}
	return Block{Allocation: h, Data: r.view(h.Offset, size)}, nil
}

// Bytes returns the heap range of a live allocation, or nil for the Failed
// handle and for handles that are freed or were never issued.
func (r *Region) Bytes(a alloc.Allocation) []byte {
	if r.closed || !r.allocator.Owns(a) {
		return nil
	}
	size := r.allocator.AllocationSize(a)
	if uint64(a.Offset)+uint64(size) > uint64(len(r.heap)) {
		return nil
	}
	return r.view(a.Offset, size)
}

// Free releases a block. Its Data must not be used afterwards.
func (r *Region) Free(b Block) error {
	if r.closed {
		return ErrClosed
	}
	return r.allocator.Free(b.Allocation)
}

// Allocator returns the allocator managing the heap.
func (r *Region) Allocator() *alloc.Allocator { return r.allocator }

// Size returns the heap size in bytes.
func (r *Region) Size() int { return len(r.heap) }

// Close unmaps the heap and the allocator block. Every Block's Data becomes
// invalid. Calling Close more than once is a no-op.
func (r *Region) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs error
	for _, unmap := range r.unmap {
		errs = errors.CombineErrors(errs, unmap())
	}
	r.heap = nil
	return errs
}

func (r *Region) view(offset, size uint32) []byte {
	end := int(offset) + int(size)
	return r.heap[offset:end:end]
}
