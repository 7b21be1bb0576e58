package alloc

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// StorageReport returns the total free space and the largest free size class
// in constant time.
func (a *Allocator) StorageReport() StorageReport {
	h := a.hdr
	r := StorageReport{TotalFreeSpace: h.freeStorage}
	if class := h.highestBin(); class != NoSpace {
		r.LargestFreeRegion = Decode(class)
	}
	return r
}

// StorageReportFull returns the number of free regions in every size class.
// It walks every free list and is meant for diagnostics.
func (a *Allocator) StorageReportFull() StorageReportFull {
	var r StorageReportFull
	for class := range uint32(NumClasses) {
		count := uint32(0)
		for idx := a.hdr.binIndices[class]; idx != unused; idx = a.nodes[idx].binListNext {
			count++
		}
		r.FreeRegions[class] = RegionCount{Size: ClassSize(class), Count: count}
	}
	return r
}

// Region is one node's range as seen by VisitRegions.
type Region struct {
	Offset uint32
	Size   uint32
	Free   bool
	Node   uint32
}

// VisitRegions calls fn for every region of the heap in address order. A
// non-nil error from fn stops the walk and is returned.
func (a *Allocator) VisitRegions(fn func(Region) error) error {
	idx := a.firstNode()
	for steps := 0; idx != unused; steps++ {
		if steps >= len(a.nodes) {
			return errors.Wrap(ErrCorrupt, "neighbor list does not terminate")
		}
		n := &a.nodes[idx]
		if err := fn(Region{Offset: n.dataOffset, Size: n.dataSize, Free: !n.used, Node: idx}); err != nil {
			return err
		}
		idx = n.neighborNext
	}
	return nil
}

// firstNode returns the node at offset 0.
func (a *Allocator) firstNode() uint32 {
	start := uint32(unused)
	if class := a.hdr.highestBin(); class != NoSpace {
		start = a.hdr.binIndices[class]
	} else {
		// Slots on the free-node stack are never marked used, so any used
		// node is live.
		for i := range a.nodes {
			if a.nodes[i].used {
				start = uint32(i)
				break
			}
		}
	}
	if start == unused {
		return unused
	}
	for steps := 0; a.nodes[start].neighborPrev != unused && steps < len(a.nodes); steps++ {
		start = a.nodes[start].neighborPrev
	}
	return start
}

// WriteDetailedMap returns a JSON description of the heap: totals followed by
// every region in address order.
func (a *Allocator) WriteDetailedMap() ([]byte, error) {
	var regions []Region
	var freeCount int
	if err := a.VisitRegions(func(r Region) error {
		regions = append(regions, r)
		if r.Free {
			freeCount++
		}
		return nil
	}); err != nil {
		return nil, err
	}

	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("size").Int(int(a.hdr.size))
	obj.Name("maxAllocations").Int(int(a.hdr.maxAllocs))
	obj.Name("freeSpace").Int(int(a.hdr.freeStorage))
	obj.Name("largestFreeRegion").Int(int(a.StorageReport().LargestFreeRegion))
	obj.Name("allocationCount").Int(int(a.hdr.allocCount))
	obj.Name("freeRegionCount").Int(freeCount)

	arr := obj.Name("regions").Array()
	for _, r := range regions {
		item := arr.Object()
		item.Name("offset").Int(int(r.Offset))
		item.Name("size").Int(int(r.Size))
		item.Name("free").Bool(r.Free)
		item.End()
	}
	arr.End()
	obj.End()

	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "alloc: write detailed map")
	}
	return w.Bytes(), nil
}
