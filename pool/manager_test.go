package pool

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_PoolPerUsage(t *testing.T) {
	m := NewManager(Config{HeapSize: 1024, MaxAllocs: 8})

	uniform := gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	vertex := gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst

	u1, err := m.Pool(uniform)
	require.NoError(t, err)
	u2, err := m.Pool(uniform)
	require.NoError(t, err)
	require.Same(t, u1, u2)

	v, err := m.Pool(vertex)
	require.NoError(t, err)
	require.NotSame(t, u1, v)
	assert.Equal(t, vertex, v.Usage())

	_, err = m.Pool(0)
	require.True(t, errors.Is(err, ErrInvalidUsage))

	stats := m.Stats()
	require.Len(t, stats, 2)
	assert.Less(t, uint32(stats[0].Usage), uint32(stats[1].Usage))
}

func TestManager_Trim(t *testing.T) {
	m := NewManager(Config{HeapSize: 1024, MaxAllocs: 8})

	p, err := m.Pool(gputypes.BufferUsageStorage)
	require.NoError(t, err)

	a, err := p.Allocate(1024)
	require.NoError(t, err)
	b, err := p.Allocate(1024)
	require.NoError(t, err)
	require.NoError(t, p.Free(b))

	assert.Equal(t, 1, m.Trim())
	assert.Equal(t, 1, p.HeapCount())
	require.NoError(t, p.Free(a))
}
