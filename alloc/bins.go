package alloc

import "math/bits"

// The 256 size classes are split into 32 top bins of 8 leaf bins each. The
// top index is the exponent of the class, the leaf index its mantissa.
const (
	numTopBins        = 32
	binsPerLeaf       = 8
	topBinsIndexShift = 3
	leafBinsIndexMask = binsPerLeaf - 1

	// NumClasses is the number of size classes (leaf bins).
	NumClasses = numTopBins * binsPerLeaf
)

// splitClass returns the top and leaf bin of a size class.
func splitClass(class uint32) (top, leaf uint32) {
	return class >> topBinsIndexShift, class & leafBinsIndexMask
}

// findLowestSetBitAfter returns the index of the lowest set bit of mask at a
// position >= start, or NoSpace when there is none.
func findLowestSetBitAfter(mask, start uint32) uint32 {
	// Shifts by >= 32 yield 0, so start == 32 masks out everything.
	after := mask &^ (uint32(1)<<start - 1)
	if after == 0 {
		return NoSpace
	}
	return uint32(bits.TrailingZeros32(after))
}

// markBin records that a bin gained its first free node.
func (h *header) markBin(class uint32) {
	top, leaf := splitClass(class)
	h.usedBins[top] |= 1 << leaf
	h.usedBinsTop |= 1 << top
}

// clearBin records that a bin lost its last free node.
func (h *header) clearBin(class uint32) {
	top, leaf := splitClass(class)
	h.usedBins[top] &^= 1 << leaf
	if h.usedBins[top] == 0 {
		h.usedBinsTop &^= 1 << top
	}
}

// findBin returns the smallest non-empty class >= minClass, or NoSpace.
//
// Within minClass's own top bin only leaves at or above its mantissa qualify.
// Any later top bin holds strictly larger exponents, so its lowest leaf is
// large enough without a lower bound.
func (h *header) findBin(minClass uint32) uint32 {
	minTop, minLeaf := splitClass(minClass)

	top := minTop
	leaf := uint32(NoSpace)
	if h.usedBinsTop&(1<<top) != 0 {
		leaf = findLowestSetBitAfter(uint32(h.usedBins[top]), minLeaf)
	}

	if leaf == NoSpace {
		top = findLowestSetBitAfter(h.usedBinsTop, minTop+1)
		if top == NoSpace {
			return NoSpace
		}
		leaf = uint32(bits.TrailingZeros8(h.usedBins[top]))
	}

	return top<<topBinsIndexShift | leaf
}

// highestBin returns the largest non-empty class, or NoSpace.
func (h *header) highestBin() uint32 {
	if h.usedBinsTop == 0 {
		return NoSpace
	}
	top := uint32(31 - bits.LeadingZeros32(h.usedBinsTop))
	leaf := uint32(7 - bits.LeadingZeros8(h.usedBins[top]))
	return top<<topBinsIndexShift | leaf
}
