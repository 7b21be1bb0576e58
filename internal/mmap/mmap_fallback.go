//go:build !unix

package mmap

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Anonymous allocates size zeroed bytes on the Go heap when mmap is not
// available. The memory is 8-byte aligned.
func Anonymous(size int) ([]byte, func() error, error) {
	if size < 0 {
		return nil, nil, errors.Newf("mmap: negative size %d", size)
	}
	if size == 0 {
		return []byte{}, func() error { return nil }, nil
	}
	words := make([]uint64, (size+7)/8)
	data := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), size)
	return data, func() error { return nil }, nil
}
