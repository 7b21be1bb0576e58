//go:build unix

// Package mmap provides platform-specific helpers for mapping anonymous
// memory outside the Go heap.
package mmap

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Anonymous maps size bytes of zeroed, private read-write memory and returns
// it together with a cleanup function that unmaps it. The mapping is page
// aligned.
func Anonymous(size int) ([]byte, func() error, error) {
	if size < 0 {
		return nil, nil, errors.Newf("mmap: negative size %d", size)
	}
	if size == 0 {
		return []byte{}, func() error { return nil }, nil
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "mmap: map %d anonymous bytes", size)
	}
	unmapped := false
	cleanup := func() error {
		if unmapped {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		if err := unix.Munmap(data); err != nil && !errors.Is(err, unix.EINVAL) {
			return errors.Wrap(err, "mmap: unmap")
		}
		unmapped = true
		return nil
	}
	return data, cleanup, nil
}
