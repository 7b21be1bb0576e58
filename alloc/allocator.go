package alloc

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// Config configures an allocator built by NewWithConfig.
type Config struct {
	// Size is the heap size in bytes. Required.
	Size uint32

	// MaxAllocs bounds the number of simultaneously live allocations.
	// Free regions between live allocations also occupy node slots, so the
	// limit must cover the fragmentation the workload can produce.
	// Defaults to DefaultMaxAllocs if 0.
	MaxAllocs uint32

	// Logger receives allocation tracing at debug level and contract
	// violations at warn level. When nil, tracing goes to stderr if
	// HEAPKIT_LOG_ALLOC is set and is discarded otherwise.
	Logger *slog.Logger
}

// Allocator suballocates byte ranges of a fixed-size heap.
//
// It is not safe for concurrent use. All operations complete in a bounded
// number of steps independent of heap size and allocation count.
type Allocator struct {
	mem       []byte // backing block; keeps Go-heap memory reachable
	hdr       *header
	nodes     []node
	freeNodes []uint32

	log   *slog.Logger
	stats Stats
}

// New creates an allocator for a heap of size bytes with its bookkeeping in
// Go-managed memory. A maxAllocs of 0 selects DefaultMaxAllocs.
func New(size, maxAllocs uint32) (*Allocator, error) {
	return NewWithConfig(&Config{Size: size, MaxAllocs: maxAllocs})
}

// NewWithConfig creates an allocator from cfg with its bookkeeping in
// Go-managed memory.
func NewWithConfig(cfg *Config) (*Allocator, error) {
	if cfg == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "nil config")
	}
	maxAllocs := cfg.MaxAllocs
	if maxAllocs == 0 {
		maxAllocs = DefaultMaxAllocs
	}
	if maxAllocs > maxMaxAllocs {
		return nil, errors.Wrapf(ErrInvalidConfig, "max allocations %d out of range", maxAllocs)
	}
	return place(alignedBlock(CalculateAllocatorSize(maxAllocs)), cfg.Size, maxAllocs, cfg)
}

// Size returns the heap size in bytes.
func (a *Allocator) Size() uint32 { return a.hdr.size }

// MaxAllocs returns the configured allocation limit.
func (a *Allocator) MaxAllocs() uint32 { return a.hdr.maxAllocs }

// Block returns the memory holding the allocator's bookkeeping.
func (a *Allocator) Block() []byte { return a.mem }

// SetLogger replaces the logger set by Config.Logger. A nil logger disables
// tracing.
func (a *Allocator) SetLogger(log *slog.Logger) { a.log = log }

// Stats returns a copy of the allocator counters.
func (a *Allocator) Stats() Stats { return a.stats }

// AllocCount returns the number of live allocations.
func (a *Allocator) AllocCount() int { return int(a.hdr.allocCount) }

// Reset frees every allocation at once, leaving one free region spanning the
// whole heap. Outstanding handles become invalid.
func (a *Allocator) Reset() {
	h := a.hdr
	h.freeStorage = 0
	h.allocCount = 0
	h.usedBinsTop = 0
	clear(h.usedBins[:])
	for i := range h.binIndices {
		h.binIndices[i] = unused
	}

	// Zeroed nodes read as unused, so handles that were never issued fail
	// the in-use check in Free.
	clear(a.nodes)

	// Fill the stack so that pops hand out slots 0, 1, 2, ...
	capacity := uint32(len(a.freeNodes))
	for i := range capacity {
		a.freeNodes[i] = capacity - i - 1
	}
	h.freeCount = capacity

	a.insertNodeIntoBin(h.size, 0)
	a.stats.ResetCount++
}

// Allocate reserves size bytes and returns the handle of the reserved range.
//
// The chosen free region comes from the smallest non-empty size class whose
// lower bound is at least size, so it is never smaller than the request. On
// failure Allocate returns Failed and an error matching ErrOutOfSpace, and
// the allocator is unchanged. This includes the case where the region found
// must be split but the node pool has no slot for the remainder. A region
// that fits exactly needs no new slot, so it is still handed out when the
// pool is empty.
//
// A size of 0 is accepted and yields an empty range that still occupies a
// node slot.
func (a *Allocator) Allocate(size uint32) (Allocation, error) {
	a.stats.AllocCalls++
	h := a.hdr

	class := h.findBin(RoundUp(size))
	if class == NoSpace {
		return a.outOfSpace(size, "no free region large enough")
	}

	idx := h.binIndices[class]
	n := &a.nodes[idx]
	total := n.dataSize
	remainder := total - size

	// The remainder needs a fresh node; refuse before touching anything.
	if remainder > 0 && h.freeCount == 0 {
		return a.outOfSpace(size, "node pool exhausted")
	}

	a.unlinkFromBin(idx)
	n.dataSize = size
	n.used = true
	h.allocCount++

	if remainder > 0 {
		a.stats.SplitCount++
		rem := a.insertNodeIntoBin(remainder, n.dataOffset+size)

		// Splice the remainder between this node and its old right neighbor.
		if n.neighborNext != unused {
			a.nodes[n.neighborNext].neighborPrev = rem
		}
		a.nodes[rem].neighborPrev = idx
		a.nodes[rem].neighborNext = n.neighborNext
		n.neighborNext = rem
	}

	if live := int(h.allocCount); live > a.stats.PeakAllocCount {
		a.stats.PeakAllocCount = live
	}
	if a.tracing() {
		a.log.Debug("allocate",
			slog.Uint64("size", uint64(size)),
			slog.Uint64("offset", uint64(n.dataOffset)),
			slog.Uint64("node", uint64(idx)),
			slog.Uint64("class", uint64(class)),
			slog.Uint64("remainder", uint64(remainder)))
	}

	return Allocation{Offset: n.dataOffset, Metadata: idx}, nil
}

// Free releases an allocation and merges it with free neighbors so that
// contiguous free space is always held by a single region.
//
// A handle that was not issued by this allocator, or that has already been
// freed, is rejected with an error matching ErrContractViolation and the
// allocator is unchanged. A stale handle whose node has since been reissued
// at the same offset cannot be told apart from the new allocation.
func (a *Allocator) Free(alloc Allocation) error {
	if err := a.checkHandle(alloc); err != nil {
		a.stats.RejectedFrees++
		if a.log != nil {
			a.log.Warn("rejected free", slog.String("handle", alloc.String()), slog.Any("error", err))
		}
		return err
	}
	a.stats.FreeCalls++

	idx := alloc.Metadata
	n := &a.nodes[idx]
	offset := n.dataOffset
	size := n.dataSize

	if prev := n.neighborPrev; prev != unused && !a.nodes[prev].used {
		p := &a.nodes[prev]
		offset = p.dataOffset
		size += p.dataSize
		a.removeNodeFromBin(prev)
		n.neighborPrev = p.neighborPrev
		a.stats.MergeBackward++
	}

	if next := n.neighborNext; next != unused && !a.nodes[next].used {
		nx := &a.nodes[next]
		size += nx.dataSize
		a.removeNodeFromBin(next)
		n.neighborNext = nx.neighborNext
		a.stats.MergeForward++
	}

	neighborPrev := n.neighborPrev
	neighborNext := n.neighborNext
	n.used = false
	a.hdr.allocCount--
	a.pushFreeNode(idx)

	merged := a.insertNodeIntoBin(size, offset)
	if neighborNext != unused {
		a.nodes[merged].neighborNext = neighborNext
		a.nodes[neighborNext].neighborPrev = merged
	}
	if neighborPrev != unused {
		a.nodes[merged].neighborPrev = neighborPrev
		a.nodes[neighborPrev].neighborNext = merged
	}

	if a.tracing() {
		a.log.Debug("free",
			slog.Uint64("offset", uint64(alloc.Offset)),
			slog.Uint64("node", uint64(idx)),
			slog.Uint64("merged_offset", uint64(offset)),
			slog.Uint64("merged_size", uint64(size)))
	}
	return nil
}

// AllocationSize returns the size requested for a live allocation, or 0 for
// the Failed handle and for handles Free would reject.
func (a *Allocator) AllocationSize(alloc Allocation) uint32 {
	if !a.Owns(alloc) {
		return 0
	}
	return a.nodes[alloc.Metadata].dataSize
}

// Owns reports whether alloc names a live allocation of this allocator. It
// applies the same checks as Free.
func (a *Allocator) Owns(alloc Allocation) bool {
	return a.checkHandle(alloc) == nil
}

func (a *Allocator) checkHandle(alloc Allocation) error {
	idx := alloc.Metadata
	if int64(idx) >= int64(len(a.nodes)) {
		return errors.Wrapf(ErrBadHandle, "node %d outside pool of %d", idx, len(a.nodes))
	}
	n := &a.nodes[idx]
	if !n.used {
		return errors.Wrapf(ErrDoubleFree, "node %d at offset %d", idx, alloc.Offset)
	}
	if n.dataOffset != alloc.Offset {
		return errors.Wrapf(ErrBadHandle, "node %d is at offset %d, handle says %d", idx, n.dataOffset, alloc.Offset)
	}
	return nil
}

func (a *Allocator) outOfSpace(size uint32, reason string) (Allocation, error) {
	a.stats.AllocFailures++
	if a.tracing() {
		a.log.Debug("out of space",
			slog.Uint64("size", uint64(size)),
			slog.String("reason", reason),
			slog.Uint64("free", uint64(a.hdr.freeStorage)))
	}
	return Failed, errors.Wrapf(ErrOutOfSpace, "%s for %d bytes", reason, size)
}

func (a *Allocator) tracing() bool {
	return a.log != nil && a.log.Enabled(context.Background(), slog.LevelDebug)
}
