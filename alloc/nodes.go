package alloc

// node is the bookkeeping record for one contiguous range of the heap.
//
// Bin links thread all free nodes of one size class; neighbor links thread
// every node, used or free, in address order.
type node struct {
	dataOffset   uint32
	dataSize     uint32
	binListPrev  uint32
	binListNext  uint32
	neighborPrev uint32
	neighborNext uint32
	used         bool
}

// popFreeNode takes a slot off the free-node stack.
func (a *Allocator) popFreeNode() uint32 {
	h := a.hdr
	if h.freeCount == 0 {
		// Allocate checks capacity before splitting and Free always pushes
		// before it pops, so this is unreachable without memory corruption.
		panic("alloc: node pool exhausted")
	}
	h.freeCount--
	return a.freeNodes[h.freeCount]
}

// pushFreeNode returns a slot to the free-node stack.
func (a *Allocator) pushFreeNode(idx uint32) {
	h := a.hdr
	a.freeNodes[h.freeCount] = idx
	h.freeCount++
}

// insertNodeIntoBin creates a free node for [offset, offset+size) and links it
// at the head of its size class. Neighbor links are left unset.
func (a *Allocator) insertNodeIntoBin(size, offset uint32) uint32 {
	h := a.hdr
	class := RoundDown(size)

	head := h.binIndices[class]
	if head == unused {
		h.markBin(class)
	}

	idx := a.popFreeNode()
	a.nodes[idx] = node{
		dataOffset:   offset,
		dataSize:     size,
		binListPrev:  unused,
		binListNext:  head,
		neighborPrev: unused,
		neighborNext: unused,
	}
	if head != unused {
		a.nodes[head].binListPrev = idx
	}
	h.binIndices[class] = idx
	h.freeStorage += size

	return idx
}

// unlinkFromBin detaches a free node from its size class list and subtracts
// its size from the free counter. The slot itself is not released.
func (a *Allocator) unlinkFromBin(idx uint32) {
	h := a.hdr
	n := &a.nodes[idx]

	if n.binListPrev != unused {
		a.nodes[n.binListPrev].binListNext = n.binListNext
		if n.binListNext != unused {
			a.nodes[n.binListNext].binListPrev = n.binListPrev
		}
	} else {
		class := RoundDown(n.dataSize)
		h.binIndices[class] = n.binListNext
		if n.binListNext != unused {
			a.nodes[n.binListNext].binListPrev = unused
		}
		if h.binIndices[class] == unused {
			h.clearBin(class)
		}
	}

	n.binListPrev = unused
	n.binListNext = unused
	h.freeStorage -= n.dataSize
}

// removeNodeFromBin unlinks a free node and returns its slot to the pool.
func (a *Allocator) removeNodeFromBin(idx uint32) {
	a.unlinkFromBin(idx)
	a.pushFreeNode(idx)
}
