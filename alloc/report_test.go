package alloc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type detailedMap struct {
	Size              uint32 `json:"size"`
	MaxAllocations    uint32 `json:"maxAllocations"`
	FreeSpace         uint32 `json:"freeSpace"`
	LargestFreeRegion uint32 `json:"largestFreeRegion"`
	AllocationCount   int    `json:"allocationCount"`
	FreeRegionCount   int    `json:"freeRegionCount"`
	Regions           []struct {
		Offset uint32 `json:"offset"`
		Size   uint32 `json:"size"`
		Free   bool   `json:"free"`
	} `json:"regions"`
}

func Test_Report_DetailedMap(t *testing.T) {
	a := newTestAllocator(t, 4096, 16)
	first := mustAllocate(t, a, 100)
	mustAllocate(t, a, 200)
	require.NoError(t, a.Free(first))

	data, err := a.WriteDetailedMap()
	require.NoError(t, err)

	var m detailedMap
	require.NoError(t, json.Unmarshal(data, &m))

	assert.Equal(t, uint32(4096), m.Size)
	assert.Equal(t, uint32(16), m.MaxAllocations)
	assert.Equal(t, uint32(4096-200), m.FreeSpace)
	assert.Equal(t, a.StorageReport().LargestFreeRegion, m.LargestFreeRegion)
	assert.Equal(t, 1, m.AllocationCount)
	assert.Equal(t, 2, m.FreeRegionCount)

	require.Len(t, m.Regions, 3)
	assert.Equal(t, uint32(0), m.Regions[0].Offset)
	assert.Equal(t, uint32(100), m.Regions[0].Size)
	assert.True(t, m.Regions[0].Free)
	assert.Equal(t, uint32(100), m.Regions[1].Offset)
	assert.False(t, m.Regions[1].Free)
	assert.Equal(t, uint32(300), m.Regions[2].Offset)
	assert.Equal(t, uint32(4096-300), m.Regions[2].Size)
}

func Test_Report_DetailedMapFull(t *testing.T) {
	a := newTestAllocator(t, 1024, 4)
	mustAllocate(t, a, 1024)

	data, err := a.WriteDetailedMap()
	require.NoError(t, err)

	var m detailedMap
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Zero(t, m.FreeSpace)
	assert.Zero(t, m.FreeRegionCount)
	require.Len(t, m.Regions, 1)
	assert.False(t, m.Regions[0].Free)
}

func Test_Report_Full(t *testing.T) {
	a := newTestAllocator(t, 64*1024, 32)

	var holes []Allocation
	for _, size := range []uint32{64, 64, 1000} {
		holes = append(holes, mustAllocate(t, a, size))
		mustAllocate(t, a, 8)
	}
	for _, h := range holes {
		require.NoError(t, a.Free(h))
	}

	report := a.StorageReportFull()
	assert.Equal(t, uint32(2), report.FreeRegions[RoundDown(64)].Count)
	assert.Equal(t, uint64(64), report.FreeRegions[RoundDown(64)].Size)
	assert.Equal(t, uint32(1), report.FreeRegions[RoundDown(1000)].Count)

	var total uint32
	for class, c := range report.FreeRegions {
		assert.Equal(t, ClassSize(uint32(class)), c.Size)
		total += c.Count
	}
	assert.Equal(t, uint32(4), total, "three holes plus the tail")
}

func Test_Report_LargestIsClassLowerBound(t *testing.T) {
	a := newTestAllocator(t, 1000, 4)
	report := a.StorageReport()
	assert.Equal(t, uint32(1000), report.TotalFreeSpace)
	assert.Equal(t, Decode(RoundDown(1000)), report.LargestFreeRegion)
	assert.LessOrEqual(t, report.LargestFreeRegion, uint32(1000))

	// An allocation of the reported size always fits.
	h := mustAllocate(t, a, report.LargestFreeRegion)
	require.NoError(t, a.Free(h))
}

func Test_Report_DebugLogAllocations(t *testing.T) {
	a := newTestAllocator(t, 4096, 16)
	mustAllocate(t, a, 10)
	h := mustAllocate(t, a, 20)
	mustAllocate(t, a, 30)
	require.NoError(t, a.Free(h))

	var buf bytes.Buffer
	a.DebugLogAllocations(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "offset=0 size=10")
	assert.Contains(t, lines[1], "offset=30 size=30")

	// A nil logger is a no-op.
	a.DebugLogAllocations(nil)
}

func Test_Report_VisitRegionsStops(t *testing.T) {
	a := newTestAllocator(t, 4096, 16)
	for range 4 {
		mustAllocate(t, a, 100)
	}

	stop := assert.AnError
	seen := 0
	err := a.VisitRegions(func(Region) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 2, seen)
}

func Test_Report_DebugLogAllocationsCorrupt(t *testing.T) {
	a := newTestAllocator(t, 4096, 8)
	first := mustAllocate(t, a, 10)
	second := mustAllocate(t, a, 10)

	// Close the neighbor list into a cycle.
	a.nodes[second.Metadata].neighborNext = first.Metadata
	require.ErrorIs(t, a.Validate(), ErrCorrupt)

	var buf bytes.Buffer
	a.DebugLogAllocations(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	assert.Contains(t, buf.String(), `level=ERROR msg="walk allocations"`)

	a.Reset()
	require.NoError(t, a.Validate())
}
