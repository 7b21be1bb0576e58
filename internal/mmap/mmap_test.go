package mmap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestAnonymous(t *testing.T) {
	data, cleanup, err := Anonymous(64 * 1024)
	require.NoError(t, err)
	require.Len(t, data, 64*1024)
	require.Zero(t, uintptr(unsafe.Pointer(unsafe.SliceData(data)))%8)

	for _, b := range data {
		require.Zero(t, b)
	}
	data[0], data[len(data)-1] = 0xde, 0xad
	require.Equal(t, byte(0xde), data[0])
	require.Equal(t, byte(0xad), data[len(data)-1])

	require.NoError(t, cleanup())
	require.NoError(t, cleanup(), "second cleanup is a no-op")
}

func TestAnonymousZeroLength(t *testing.T) {
	data, cleanup, err := Anonymous(0)
	require.NoError(t, err)
	require.Empty(t, data)
	require.NotNil(t, cleanup)
	require.NoError(t, cleanup())
}

func TestAnonymousNegative(t *testing.T) {
	_, _, err := Anonymous(-1)
	require.Error(t, err)
}
