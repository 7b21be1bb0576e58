// Package alloc provides an offset allocator for suballocating a fixed-size
// heap, such as a GPU buffer or device memory block.
//
// # Overview
//
// The allocator hands out byte ranges of an abstract offset space; it never
// touches the memory those offsets describe. It uses a two-level segregated
// free list:
//
//   - 256 size classes encoded as a small float (5-bit exponent, 3-bit mantissa)
//   - a 32-bit top bitmask and 32 leaf bitmasks locate the best-fit class
//     with two bit scans
//   - every range, used or free, is a node in an address-ordered neighbor
//     list, so freeing merges with adjacent free ranges without searching
//
// Allocate and Free take a bounded number of steps regardless of heap size or
// allocation count. Once every allocation has been freed, in any order, the
// heap is again a single free region.
//
// # Usage Example
//
//	a, err := alloc.New(256<<20, 1024)
//	if err != nil {
//	    return err
//	}
//
//	h, err := a.Allocate(4096)
//	if errors.Is(err, alloc.ErrOutOfSpace) {
//	    // grow, evict, or fail the request
//	}
//
//	// use bytes [h.Offset, h.Offset+4096) of the device heap...
//
//	err = a.Free(h)
//
// # Caller-Owned Memory
//
// Place builds an allocator whose control block, node pool and free-node
// stack live in a caller-supplied byte slice of CalculateAllocatorSize bytes.
// The slice may come from the Go heap or from a memory mapping; the
// allocator keeps no other state.
//
// # Size Classes
//
// Sizes below 8 map to their own class. Above that, a class covers one
// eighth of a power of two:
//
//	Class  8: 8        Class 16: 16
//	Class  9: 9        Class 17: 18
//	Class 15: 15       Class 24: 32
//
// Requests are rounded up to a class and free regions are filed under the
// class they round down to, so the chosen region is never smaller than the
// request.
//
// # Capacity
//
// MaxAllocs bounds the node pool. Free regions between live allocations also
// take nodes, so the limit must cover the workload's worst fragmentation.
// When the pool cannot hold a split remainder, Allocate fails with
// ErrOutOfSpace even if bytes are available.
//
// # Thread Safety
//
// Allocator instances are not thread-safe. Callers must synchronize access
// externally; package pool provides a locked set of heaps.
package alloc
