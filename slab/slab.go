// Package slab manages the blocks of one slab-sized NVM extent for a
// single size class: a bitmap of reservation state backed by a
// ring-buffer cache of pre-reserved free indices, so that most
// alloc/free calls are O(1) pointer arithmetic instead of a bitmap scan.
package slab

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/fmstephe/nvmalloc/tunables"
)

var (
	// ErrFull is returned by Alloc when the slab has no free blocks left,
	// after a refill attempt.
	ErrFull = errors.New("slab: full")

	// ErrOutOfRange is returned by Free/RestoreMark for a block index
	// outside [0, TotalBlocks).
	ErrOutOfRange = errors.New("slab: block index out of range")

	// ErrBadClass is returned by NewSlab for a classID outside the
	// supported size class table.
	ErrBadClass = errors.New("slab: unknown size class")
)

// Slab is the volatile metadata for one slab extent of one size class.
// All mutation of the bitmap, ring buffer, and allocated count happens
// under mu, held only for the duration of a single Alloc/Free/RestoreMark
// call.
type Slab struct {
	// Immutable fields, safe to read without the lock.
	baseOffset  uint64
	classID     int
	blockSize   uint32
	totalBlocks uint32

	mu sync.Mutex

	bitmap *bitset.BitSet

	ring      [tunables.CacheSize]uint32
	ringHead  int
	ringCount int

	// allocatedCount is read lock-free as a hint by IsFull/IsEmpty; every
	// mutation happens with mu held.
	allocatedCount atomic.Uint32

	// Next chains same-class slabs on one per-CPU heap list. Mutated
	// only by the CPU that owns this slab's list entry.
	Next *Slab
}

// NewSlab allocates metadata for a fresh slab of the given size class,
// covering the extent starting at baseOffset. The bitmap starts fully
// clear: no blocks are reserved.
func NewSlab(classID int, baseOffset uint64) (*Slab, error) {
	if classID < 0 || classID >= NumClasses {
		return nil, fmt.Errorf("%w: %d", ErrBadClass, classID)
	}

	totalBlocks := BlocksPerSlab(classID)

	return &Slab{
		baseOffset:  baseOffset,
		classID:     classID,
		blockSize:   BlockSize(classID),
		totalBlocks: totalBlocks,
		bitmap:      bitset.New(uint(totalBlocks)),
	}, nil
}

// Destroy releases this slab's metadata. It never touches the NVM bytes
// the slab covers — only the Space Manager's free list governs who may
// reuse that extent.
func (s *Slab) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bitmap = nil
}

func (s *Slab) BaseOffset() uint64  { return s.baseOffset }
func (s *Slab) ClassID() int        { return s.classID }
func (s *Slab) BlockSize() uint32   { return s.blockSize }
func (s *Slab) TotalBlocks() uint32 { return s.totalBlocks }

// AllocatedCount returns the number of blocks currently held by callers
// (excludes blocks sitting in the ring-buffer cache).
func (s *Slab) AllocatedCount() uint32 {
	return s.allocatedCount.Load()
}

// IsFull is a relaxed hint: allocatedCount == totalBlocks. May be
// momentarily stale under concurrent mutation; used only to decide
// whether to skip this slab during per-CPU list traversal.
func (s *Slab) IsFull() bool {
	return s.allocatedCount.Load() == s.totalBlocks
}

// IsEmpty is a relaxed hint: allocatedCount == 0. The ring buffer may
// still hold cached reservations even when IsEmpty is true.
func (s *Slab) IsEmpty() bool {
	return s.allocatedCount.Load() == 0
}

// Alloc reserves one block and returns its index. If the ring-buffer
// cache is empty it is refilled first from the bitmap (lowest-bit-first,
// up to tunables.Batch indices); Alloc fails with ErrFull only if the
// cache is still empty after that refill attempt.
func (s *Slab) Alloc() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ringCount == 0 && s.allocatedCount.Load() < s.totalBlocks {
		s.refillLocked()
	}

	if s.ringCount == 0 {
		return 0, ErrFull
	}

	idx := s.ring[s.ringHead]
	s.ringHead = (s.ringHead + 1) % tunables.CacheSize
	s.ringCount--

	s.allocatedCount.Add(1)

	return idx, nil
}

// Free returns a block to the slab. The block's bitmap bit is not
// cleared — it remains reserved-as-cached — it is simply pushed onto the
// ring-buffer tail. If the ring is already at capacity it is drained
// first (oldest cached index first) down to tunables.Batch, clearing
// each drained index's bitmap bit as it goes.
func (s *Slab) Free(blockIdx uint32) error {
	if blockIdx >= s.totalBlocks {
		return fmt.Errorf("%w: %d", ErrOutOfRange, blockIdx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ringCount == tunables.CacheSize {
		s.drainLocked()
	}

	tail := (s.ringHead + s.ringCount) % tunables.CacheSize
	s.ring[tail] = blockIdx
	s.ringCount++

	// Saturating decrement: defensive against double-free style misuse,
	// never go negative.
	for {
		cur := s.allocatedCount.Load()
		if cur == 0 {
			break
		}
		if s.allocatedCount.CompareAndSwap(cur, cur-1) {
			break
		}
	}

	return nil
}

// RestoreMark idempotently marks blockIdx as reserved, for recovery. If
// the bit is already set this is a no-op; otherwise the bit is set and
// allocatedCount incremented exactly once.
func (s *Slab) RestoreMark(blockIdx uint32) error {
	if blockIdx >= s.totalBlocks {
		return fmt.Errorf("%w: %d", ErrOutOfRange, blockIdx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bitmap.Test(uint(blockIdx)) {
		return nil
	}

	s.bitmap.Set(uint(blockIdx))
	s.allocatedCount.Add(1)

	return nil
}

// refillLocked scans the bitmap from bit 0 for clear bits, setting each
// one found and pushing it to the ring, until tunables.Batch indices
// have been pushed or the bitmap is exhausted. Caller holds mu.
func (s *Slab) refillLocked() {
	pushed := 0
	next := uint(0)

	for pushed < tunables.Batch && s.ringCount < tunables.CacheSize {
		idx, found := s.bitmap.NextClear(next)
		if !found || idx >= uint(s.totalBlocks) {
			break
		}

		s.bitmap.Set(idx)

		tail := (s.ringHead + s.ringCount) % tunables.CacheSize
		s.ring[tail] = uint32(idx)
		s.ringCount++

		next = idx + 1
		pushed++
	}
}

// drainLocked pops indices from the ring head, clearing their bitmap
// bits, until the ring holds exactly tunables.Batch entries. Caller
// holds mu.
func (s *Slab) drainLocked() {
	for s.ringCount > tunables.Batch {
		idx := s.ring[s.ringHead]
		s.ringHead = (s.ringHead + 1) % tunables.CacheSize
		s.ringCount--

		s.bitmap.Clear(uint(idx))
	}
}

// RingCount returns the number of indices currently cached in the ring
// buffer. Intended for tests and diagnostics.
func (s *Slab) RingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ringCount
}

// Popcount returns the number of set bits in the bitmap, i.e. the number
// of blocks that are either held by a caller or sitting in the ring
// buffer. Intended for tests and diagnostics.
func (s *Slab) Popcount() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bitmap.Count()
}
