package alloc

import (
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
	"github.com/stretchr/testify/require"
)

type span struct {
	off  uint32
	size uint32
}

// freeModel tracks free ranges ordered by offset, merging on release.
type freeModel struct {
	spans *btree.BTreeG[span]
}

func newFreeModel(size uint32) *freeModel {
	m := &freeModel{spans: btree.NewG(8, func(a, b span) bool { return a.off < b.off })}
	m.spans.ReplaceOrInsert(span{off: 0, size: size})
	return m
}

func (m *freeModel) take(t *testing.T, off, size uint32) {
	t.Helper()
	var found span
	var ok bool
	m.spans.DescendLessOrEqual(span{off: off}, func(s span) bool {
		found, ok = s, true
		return false
	})
	require.True(t, ok, "no free span at or below %d", off)
	require.Equal(t, off, found.off, "allocation must start a free span")
	require.GreaterOrEqual(t, found.size, size)

	m.spans.Delete(found)
	if found.size > size {
		m.spans.ReplaceOrInsert(span{off: off + size, size: found.size - size})
	}
}

func (m *freeModel) release(off, size uint32) {
	merged := span{off: off, size: size}
	if prev, ok := m.before(off); ok && prev.off+prev.size == off {
		m.spans.Delete(prev)
		merged.off = prev.off
		merged.size += prev.size
	}
	if next, ok := m.atOrAfter(off + size); ok && next.off == off+size {
		m.spans.Delete(next)
		merged.size += next.size
	}
	m.spans.ReplaceOrInsert(merged)
}

func (m *freeModel) before(off uint32) (s span, ok bool) {
	m.spans.DescendLessOrEqual(span{off: off}, func(item span) bool {
		if item.off < off {
			s, ok = item, true
			return false
		}
		return true
	})
	return s, ok
}

func (m *freeModel) atOrAfter(off uint32) (s span, ok bool) {
	m.spans.AscendGreaterOrEqual(span{off: off}, func(item span) bool {
		s, ok = item, true
		return false
	})
	return s, ok
}

func (m *freeModel) list() []span {
	out := make([]span, 0, m.spans.Len())
	m.spans.Ascend(func(s span) bool {
		out = append(out, s)
		return true
	})
	return out
}

// requireMatches compares the allocator's regions with the model and the
// live set.
func requireMatches(t *testing.T, a *Allocator, m *freeModel, live map[uint32]Allocation) {
	t.Helper()
	require.NoError(t, a.Validate())

	var free []span
	usedCount := 0
	require.NoError(t, a.VisitRegions(func(r Region) error {
		if r.Free {
			free = append(free, span{off: r.Offset, size: r.Size})
			return nil
		}
		usedCount++
		h, ok := live[r.Offset]
		require.True(t, ok, "unexpected used region at %d", r.Offset)
		require.Equal(t, h.Metadata, r.Node)
		return nil
	}))
	require.Equal(t, m.list(), free)
	require.Equal(t, len(live), usedCount)

	var total, largest uint32
	var regions uint32
	for _, s := range free {
		total += s.size
		largest = max(largest, Decode(RoundDown(s.size)))
	}
	for _, c := range a.StorageReportFull().FreeRegions {
		regions += c.Count
	}
	require.Equal(t, uint32(len(free)), regions)
	require.Equal(t, StorageReport{TotalFreeSpace: total, LargestFreeRegion: largest}, a.StorageReport())
}

// Test_Allocator_MatchesModel drives the allocator with a fixed-seed mix of
// allocations and frees and checks it against an ordered free-range model
// after every step.
func Test_Allocator_MatchesModel(t *testing.T) {
	const (
		heapSize  = 1 << 20
		maxAllocs = 256
	)
	a := newTestAllocator(t, heapSize, maxAllocs)
	m := newFreeModel(heapSize)
	live := make(map[uint32]Allocation)
	order := make([]uint32, 0, maxAllocs)
	rng := rand.New(rand.NewSource(7))

	for step := range 5000 {
		if len(order) < maxAllocs && (len(order) == 0 || rng.Intn(100) < 60) {
			size := uint32(1 + rng.Intn(4096))
			if rng.Intn(20) == 0 {
				size = uint32(1 + rng.Intn(64*1024))
			}

			h, err := a.Allocate(size)
			if err != nil {
				require.True(t, errors.Is(err, ErrOutOfSpace), "step %d: %v", step, err)
				nodesFree := maxAllocs + 1 - len(live) - m.spans.Len()
				if nodesFree > 0 {
					for _, s := range m.list() {
						require.Less(t, RoundDown(s.size), RoundUp(size),
							"step %d: span %+v could hold %d", step, s, size)
					}
				}
			} else {
				m.take(t, h.Offset, size)
				live[h.Offset] = h
				order = append(order, h.Offset)
			}
		} else {
			i := rng.Intn(len(order))
			off := order[i]
			order[i] = order[len(order)-1]
			order = order[:len(order)-1]

			h := live[off]
			size := a.AllocationSize(h)
			require.NoError(t, a.Free(h), "step %d", step)
			delete(live, off)
			m.release(off, size)
		}

		requireMatches(t, a, m, live)
	}

	for _, off := range order {
		require.NoError(t, a.Free(live[off]))
	}
	requireEmpty(t, a)
}
