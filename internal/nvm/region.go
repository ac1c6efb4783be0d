// Package nvm provides the one concrete stand-in for the byte-addressable
// NVM mapping the allocator treats as an external collaborator (spec.md
// §1: "The memory mapping that makes NVM byte-addressable ... the
// allocator receives an opaque base pointer and a byte length"). It maps
// anonymous memory so tests, demos, and the recovery CLI have something
// real to pass as that base pointer.
package nvm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Region is a mapped byte range standing in for NVM. It is not itself
// part of the allocator's correctness story — the allocator only ever
// sees Region.Base() and Region.Size().
type Region struct {
	data []byte
}

// Map reserves size bytes of anonymous memory. The allocator treats the
// result exactly as it would treat a real NVM mapping: a base pointer and
// a length, with no knowledge of how the bytes got there.
func Map(size int) (*Region, error) {
	if size == 0 {
		return &Region{}, nil
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("nvm: mmap %d bytes: %w", size, err)
	}

	return &Region{data: data}, nil
}

// Base returns the address of byte 0 of the region.
func (r *Region) Base() uintptr {
	if len(r.data) == 0 {
		return 0
	}
	return (uintptr)(unsafe.Pointer(&r.data[0]))
}

// Size returns the region's length in bytes.
func (r *Region) Size() uint64 {
	return uint64(len(r.data))
}

// Unmap releases the region back to the operating system. The Region
// must not be used again afterwards.
func (r *Region) Unmap() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}
