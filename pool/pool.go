// Package pool manages growable sets of fixed-size heaps, one set per GPU
// buffer usage.
//
// Each heap is a device buffer range described by an alloc.Allocator. A Pool
// allocates from its heaps in creation order and adds a heap when every
// existing one is full, up to a byte budget. Pools are safe for concurrent
// use.
package pool

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/joshuapare/heapkit/alloc"
)

// Default pool limits.
const (
	// DefaultHeapSize is the size of each heap (64 MiB).
	DefaultHeapSize = 64 * 1024 * 1024

	// DefaultMaxAllocs is the allocation limit of each heap.
	DefaultMaxAllocs = 4096

	// DefaultBudgetBytes is the default byte budget of a pool (256 MiB).
	DefaultBudgetBytes = 256 * 1024 * 1024

	// CopyAlignment is the granularity requests are rounded up to, keeping
	// every offset aligned for buffer copies.
	CopyAlignment = 4
)

// Config holds configuration for creating a Pool.
type Config struct {
	// Usage is the buffer usage every heap in the pool is created with.
	Usage gputypes.BufferUsage

	// HeapSize is the size of each heap in bytes.
	// Defaults to DefaultHeapSize if 0.
	HeapSize uint32

	// MaxAllocs is the allocation limit of each heap.
	// Defaults to DefaultMaxAllocs if 0.
	MaxAllocs uint32

	// BudgetBytes caps the total size of all heaps.
	// Defaults to DefaultBudgetBytes if 0, and is raised to HeapSize if
	// smaller so the first heap always fits.
	BudgetBytes uint64

	// Logger receives heap growth and trim events. Optional.
	Logger *slog.Logger
}

func (c Config) normalized() Config {
	if c.HeapSize == 0 {
		c.HeapSize = DefaultHeapSize
	}
	if c.MaxAllocs == 0 {
		c.MaxAllocs = DefaultMaxAllocs
	}
	if c.BudgetBytes == 0 {
		c.BudgetBytes = DefaultBudgetBytes
	}
	if c.BudgetBytes < uint64(c.HeapSize) {
		c.BudgetBytes = uint64(c.HeapSize)
	}
	return c
}

// validateUsage applies the buffer usage rules: usage must be non-empty, and
// mappable buffers may only be combined with the matching copy usage.
func validateUsage(u gputypes.BufferUsage) error {
	if u == 0 {
		return errors.Wrap(ErrInvalidUsage, "usage is empty")
	}
	if u.Contains(gputypes.BufferUsageMapRead) && u&^(gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst) != 0 {
		return errors.Wrapf(ErrInvalidUsage, "MapRead may only be combined with CopyDst (usage %#x)", uint32(u))
	}
	if u.Contains(gputypes.BufferUsageMapWrite) && u&^(gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc) != 0 {
		return errors.Wrapf(ErrInvalidUsage, "MapWrite may only be combined with CopySrc (usage %#x)", uint32(u))
	}
	return nil
}

// Allocation identifies a range within one heap of a Pool.
type Allocation struct {
	alloc.Allocation

	// Heap is the id of the heap holding the range.
	Heap uint32

	// Size is the size reserved in the heap, rounded up to CopyAlignment.
	Size uint32
}

type heap struct {
	id        uint32
	allocator *alloc.Allocator
}

// Pool is a set of fixed-size heaps sharing one buffer usage.
//
// Pool is safe for concurrent use.
type Pool struct {
	mu sync.Mutex

	cfg        Config
	maxRequest uint32  // largest size an empty heap always satisfies
	heaps      []*heap // creation order; heaps[0] is never released
	nextID     uint32

	grows int
	trims int
}

// New creates a pool with one heap.
func New(cfg Config) (*Pool, error) {
	if err := validateUsage(cfg.Usage); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()
	p := &Pool{
		cfg:        cfg,
		maxRequest: alloc.Decode(alloc.RoundDown(cfg.HeapSize)) &^ (CopyAlignment - 1),
	}
	if _, err := p.addHeapLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// Usage returns the buffer usage of the pool's heaps.
func (p *Pool) Usage() gputypes.BufferUsage { return p.cfg.Usage }

// HeapSize returns the size of each heap.
func (p *Pool) HeapSize() uint32 { return p.cfg.HeapSize }

// MaxRequest returns the largest request Allocate accepts: the biggest
// aligned size an empty heap is guaranteed to satisfy.
func (p *Pool) MaxRequest() uint32 { return p.maxRequest }

// Allocate reserves size bytes, rounded up to CopyAlignment, in the first
// heap that can hold them, adding a heap if none can.
func (p *Pool) Allocate(size uint32) (Allocation, error) {
	if size > p.maxRequest {
		return Allocation{Allocation: alloc.Failed}, errors.Wrapf(ErrTooLarge, "%d bytes, limit %d", size, p.maxRequest)
	}
	size = (size + CopyAlignment - 1) &^ (CopyAlignment - 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, h := range p.heaps {
		a, err := h.allocator.Allocate(size)
		if err == nil {
			return Allocation{Allocation: a, Heap: h.id, Size: size}, nil
		}
		if !errors.Is(err, alloc.ErrOutOfSpace) {
			return Allocation{Allocation: alloc.Failed}, err
		}
	}

	h, err := p.addHeapLocked()
	if err != nil {
		return Allocation{Allocation: alloc.Failed}, errors.Wrapf(err, "allocate %d bytes", size)
	}
	a, err := h.allocator.Allocate(size)
	if err != nil {
		return Allocation{Allocation: alloc.Failed}, err
	}
	return Allocation{Allocation: a, Heap: h.id, Size: size}, nil
}

// Free releases an allocation. Empty heaps are kept until Trim.
func (p *Pool) Free(a Allocation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.heapLocked(a.Heap)
	if h == nil {
		return errors.Wrapf(ErrUnknownHeap, "heap %d", a.Heap)
	}
	return h.allocator.Free(a.Allocation)
}

// Trim releases every empty heap except the first and returns how many were
// released.
func (p *Pool) Trim() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.heaps[:1]
	released := 0
	for _, h := range p.heaps[1:] {
		if h.allocator.AllocCount() == 0 {
			released++
			if p.cfg.Logger != nil {
				p.cfg.Logger.Debug("pool: release heap", slog.Uint64("heap", uint64(h.id)))
			}
			continue
		}
		kept = append(kept, h)
	}
	clear(p.heaps[len(kept):])
	p.heaps = kept
	p.trims += released
	return released
}

// HeapCount returns the number of heaps.
func (p *Pool) HeapCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.heaps)
}

// Stats returns aggregated usage statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Usage:       p.cfg.Usage,
		Heaps:       len(p.heaps),
		BudgetBytes: p.cfg.BudgetBytes,
		Grows:       p.grows,
		Trims:       p.trims,
	}
	for _, h := range p.heaps {
		report := h.allocator.StorageReport()
		s.TotalBytes += uint64(h.allocator.Size())
		s.FreeBytes += uint64(report.TotalFreeSpace)
		s.LargestFreeRegion = max(s.LargestFreeRegion, report.LargestFreeRegion)
		s.Allocations += h.allocator.AllocCount()
	}
	s.UsedBytes = s.TotalBytes - s.FreeBytes
	return s
}

func (p *Pool) addHeapLocked() (*heap, error) {
	total := uint64(len(p.heaps)+1) * uint64(p.cfg.HeapSize)
	if total > p.cfg.BudgetBytes {
		return nil, errors.Wrapf(ErrBudgetExceeded, "%d heaps of %d bytes exceed budget %d",
			len(p.heaps)+1, p.cfg.HeapSize, p.cfg.BudgetBytes)
	}

	a, err := alloc.NewWithConfig(&alloc.Config{
		Size:      p.cfg.HeapSize,
		MaxAllocs: p.cfg.MaxAllocs,
		Logger:    p.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	h := &heap{id: p.nextID, allocator: a}
	p.nextID++
	p.heaps = append(p.heaps, h)
	if len(p.heaps) > 1 {
		p.grows++
	}
	if p.cfg.Logger != nil {
		p.cfg.Logger.Debug("pool: add heap",
			slog.Uint64("heap", uint64(h.id)),
			slog.Int("heaps", len(p.heaps)),
			slog.Uint64("usage", uint64(p.cfg.Usage)))
	}
	return h, nil
}

func (p *Pool) heapLocked(id uint32) *heap {
	for _, h := range p.heaps {
		if h.id == id {
			return h
		}
	}
	return nil
}

// Stats contains pool usage statistics.
type Stats struct {
	Usage gputypes.BufferUsage

	// Heaps is the number of heaps currently held.
	Heaps int

	// TotalBytes is the combined size of all heaps.
	TotalBytes uint64

	// UsedBytes and FreeBytes split TotalBytes.
	UsedBytes uint64
	FreeBytes uint64

	// LargestFreeRegion is the largest size class with a free region in
	// any heap.
	LargestFreeRegion uint32

	// Allocations is the number of live allocations.
	Allocations int

	BudgetBytes uint64
	Grows       int
	Trims       int
}

// String returns a human-readable string of pool stats.
func (s Stats) String() string {
	utilization := 0.0
	if s.TotalBytes > 0 {
		utilization = float64(s.UsedBytes) / float64(s.TotalBytes)
	}
	return fmt.Sprintf("Pool[usage=%#x, %d heaps, %.1f%% used, %d/%d MB, %d allocations]",
		uint32(s.Usage),
		s.Heaps,
		utilization*100,
		s.UsedBytes/(1024*1024),
		s.TotalBytes/(1024*1024),
		s.Allocations)
}
