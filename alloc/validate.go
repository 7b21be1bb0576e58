package alloc

import "github.com/cockroachdb/errors"

// Validate checks every structural invariant of the allocator and returns an
// error wrapping ErrCorrupt describing the first violation found:
//
//   - neighbor-ordered nodes tile [0, Size()) with no gap or overlap
//   - no two free nodes are adjacent
//   - every free node is listed in the bin of RoundDown(size), and only there
//   - bitmasks are set exactly for non-empty bins
//   - the free counter equals the sum of free node sizes
//   - the free-node stack and the live nodes partition the pool
//
// It runs in time linear in the pool size.
func (a *Allocator) Validate() error {
	h := a.hdr
	capacity := len(a.nodes)

	if int(h.freeCount) > capacity {
		return errors.Wrapf(ErrCorrupt, "free-node stack depth %d exceeds pool of %d", h.freeCount, capacity)
	}
	onStack := make([]bool, capacity)
	for i := range int(h.freeCount) {
		idx := a.freeNodes[i]
		if int(idx) >= capacity {
			return errors.Wrapf(ErrCorrupt, "free-node stack entry %d holds out-of-range node %d", i, idx)
		}
		if onStack[idx] {
			return errors.Wrapf(ErrCorrupt, "node %d is on the free-node stack twice", idx)
		}
		onStack[idx] = true
	}

	inBin := make([]bool, capacity)
	var binnedBytes uint64
	for class := range uint32(NumClasses) {
		top, leaf := splitClass(class)
		head := h.binIndices[class]
		bitSet := h.usedBins[top]&(1<<leaf) != 0
		if bitSet != (head != unused) {
			return errors.Wrapf(ErrCorrupt, "bin %d has head %d but bitmask bit is %v", class, head, bitSet)
		}

		prev := uint32(unused)
		for idx, steps := head, 0; idx != unused; idx, steps = a.nodes[idx].binListNext, steps+1 {
			if int(idx) >= capacity || steps >= capacity {
				return errors.Wrapf(ErrCorrupt, "bin %d list is malformed at node %d", class, idx)
			}
			n := &a.nodes[idx]
			switch {
			case onStack[idx]:
				return errors.Wrapf(ErrCorrupt, "node %d in bin %d is also on the free-node stack", idx, class)
			case inBin[idx]:
				return errors.Wrapf(ErrCorrupt, "node %d is listed in more than one bin", idx)
			case n.used:
				return errors.Wrapf(ErrCorrupt, "used node %d is listed in bin %d", idx, class)
			case RoundDown(n.dataSize) != class:
				return errors.Wrapf(ErrCorrupt, "node %d of size %d belongs in bin %d, found in %d", idx, n.dataSize, RoundDown(n.dataSize), class)
			case n.binListPrev != prev:
				return errors.Wrapf(ErrCorrupt, "node %d bin back-link is %d, want %d", idx, n.binListPrev, prev)
			}
			inBin[idx] = true
			binnedBytes += uint64(n.dataSize)
			prev = idx
		}
	}
	for top := range uint32(numTopBins) {
		if (h.usedBinsTop&(1<<top) != 0) != (h.usedBins[top] != 0) {
			return errors.Wrapf(ErrCorrupt, "top bitmask bit %d disagrees with leaf mask %08b", top, h.usedBins[top])
		}
	}
	if binnedBytes != uint64(h.freeStorage) {
		return errors.Wrapf(ErrCorrupt, "free counter is %d, bins hold %d bytes", h.freeStorage, binnedBytes)
	}

	live := capacity - int(h.freeCount)
	var (
		expectOffset uint64
		visited      int
		used         int
		prevIdx      = uint32(unused)
		prevFree     bool
	)
	err := a.VisitRegions(func(r Region) error {
		n := &a.nodes[r.Node]
		switch {
		case onStack[r.Node]:
			return errors.Wrapf(ErrCorrupt, "node %d is in the neighbor list and on the free-node stack", r.Node)
		case uint64(r.Offset) != expectOffset:
			return errors.Wrapf(ErrCorrupt, "node %d starts at %d, previous region ends at %d", r.Node, r.Offset, expectOffset)
		case n.neighborPrev != prevIdx:
			return errors.Wrapf(ErrCorrupt, "node %d neighbor back-link is %d, want %d", r.Node, n.neighborPrev, prevIdx)
		case r.Free && !inBin[r.Node]:
			return errors.Wrapf(ErrCorrupt, "free node %d is not in any bin", r.Node)
		case r.Free && prevFree:
			return errors.Wrapf(ErrCorrupt, "free nodes %d and %d are adjacent", prevIdx, r.Node)
		}
		if !r.Free {
			used++
		}
		expectOffset += uint64(r.Size)
		prevIdx = r.Node
		prevFree = r.Free
		visited++
		return nil
	})
	if err != nil {
		return err
	}

	if expectOffset != uint64(h.size) {
		return errors.Wrapf(ErrCorrupt, "regions cover %d bytes of a %d byte heap", expectOffset, h.size)
	}
	if visited != live {
		return errors.Wrapf(ErrCorrupt, "neighbor list has %d nodes, %d are off the free-node stack", visited, live)
	}
	if used != int(h.allocCount) {
		return errors.Wrapf(ErrCorrupt, "%d used nodes, allocation counter says %d", used, h.allocCount)
	}
	return nil
}
