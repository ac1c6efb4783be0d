package slab

import (
	"math/bits"

	"github.com/fmstephe/flib/fmath"
	"github.com/fmstephe/nvmalloc/tunables"
)

// NumClasses is the number of supported size classes.
const NumClasses = len(tunables.SizeClasses)

// ClassForSize maps a requested allocation size to the smallest size
// class whose block size is >= size (a "<=" comparison table per
// spec.md §9: an 8-byte request maps to class 8, a 9-byte request maps
// to class 16, and so on). Oversize and zero-size requests are rejected
// here rather than dispatched to a sentinel class.
//
// Every size class is a power of two in [8, 4096], so the smallest class
// >= size is just the next power of two, clamped up to 8.
func ClassForSize(size uint64) (classID int, ok bool) {
	if size == 0 || size > tunables.MaxBlockSize {
		return 0, false
	}

	rounded := uint32(fmath.NxtPowerOfTwo(int64(size)))
	if rounded < tunables.SizeClasses[0] {
		rounded = tunables.SizeClasses[0]
	}

	// All classes are powers of two starting at 8 == 1<<3.
	classID = bits.TrailingZeros32(rounded) - bits.TrailingZeros32(tunables.SizeClasses[0])
	return classID, true
}

// BlockSize returns the block size in bytes for a given class id.
func BlockSize(classID int) uint32 {
	return tunables.SizeClasses[classID]
}

// BlocksPerSlab returns the number of blocks of this class that fit in
// one slab extent.
func BlocksPerSlab(classID int) uint32 {
	return tunables.SlabSize / tunables.SizeClasses[classID]
}
