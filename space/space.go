// Package space implements the segregated-fit address-space manager: an
// address-ordered list of free extents over a single contiguous offset
// range, allocated and freed in slab-sized units.
package space

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fmstephe/nvmalloc/tunables"
)

// SlabSize is the fixed extent size every allocation/free operates in.
// Re-exported from tunables so callers of this package don't need a
// second import for one constant.
const SlabSize = tunables.SlabSize

var (
	ErrTooSmall  = errors.New("space: total size smaller than slab size")
	ErrExhausted = errors.New("space: no free extent large enough")
	ErrUnaligned = errors.New("space: offset is not slab-aligned")
	ErrOverlap   = errors.New("space: extent overlaps an existing free segment")
)

// segment is one run of contiguous free bytes. Segments form an
// address-ordered doubly-linked list; no two segments in the list ever
// touch or overlap.
type segment struct {
	offset uint64
	size   uint64
	prev   *segment
	next   *segment
}

// Manager owns the free-segment list for one contiguous offset range. All
// mutation is serialized by mu; alloc_slab/free_slab/alloc_at never leave
// the list in an inconsistent state on failure.
type Manager struct {
	mu        sync.Mutex
	head      *segment
	tail      *segment
	startOff  uint64
	totalSize uint64
}

// Create builds a Manager covering [startOffset, startOffset+totalSize).
// totalSize must be at least SlabSize; if it is not an exact multiple of
// SlabSize it is truncated down to the nearest multiple, since a partial
// trailing extent can never be handed out as a whole slab.
func Create(startOffset, totalSize uint64) (*Manager, error) {
	if totalSize < SlabSize {
		return nil, ErrTooSmall
	}

	truncated := (totalSize / SlabSize) * SlabSize

	seg := &segment{offset: startOffset, size: truncated}

	return &Manager{
		head:      seg,
		tail:      seg,
		startOff:  startOffset,
		totalSize: truncated,
	}, nil
}

// TotalSize returns the (possibly truncated) size this Manager covers.
func (m *Manager) TotalSize() uint64 {
	return m.totalSize
}

// FreeBytes returns the sum of all currently-free segment sizes. Used by
// invariant checks: FreeBytes() + SlabSize*len(indexed slabs) == TotalSize().
func (m *Manager) FreeBytes() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := uint64(0)
	for s := m.head; s != nil; s = s.next {
		total += s.size
	}
	return total
}

// Segments returns a snapshot of the free list as (offset, size) pairs, in
// address order. Intended for tests and diagnostics only.
func (m *Manager) Segments() []Extent {
	m.mu.Lock()
	defer m.mu.Unlock()

	extents := []Extent{}
	for s := m.head; s != nil; s = s.next {
		extents = append(extents, Extent{Offset: s.offset, Size: s.size})
	}
	return extents
}

// Extent is a (offset, size) pair describing one free run.
type Extent struct {
	Offset uint64
	Size   uint64
}

// AllocSlab performs a first-fit scan of the free list, head to tail, and
// carves one SlabSize extent from the front of the first segment with
// size >= SlabSize.
func (m *Manager) AllocSlab() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for s := m.head; s != nil; s = s.next {
		if s.size < SlabSize {
			continue
		}

		offset := s.offset

		if s.size == SlabSize {
			m.unlink(s)
		} else {
			s.offset += SlabSize
			s.size -= SlabSize
		}

		return offset, nil
	}

	return 0, ErrExhausted
}

// FreeSlab returns a previously allocated SlabSize extent to the free
// list, inserting it at its address-sorted position and coalescing with
// an abutting predecessor and/or successor.
func (m *Manager) FreeSlab(offset uint64) error {
	if offset%SlabSize != 0 {
		return ErrUnaligned
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertFree(offset, SlabSize)
}

// AllocAt is the recovery-only targeted reservation: it requires the
// extent [offset, offset+SlabSize) to be entirely covered by one free
// segment, and carves it out — unlinking, shrinking from front/back, or
// splitting the segment as needed.
func (m *Manager) AllocAt(offset uint64) error {
	if offset%SlabSize != 0 {
		return ErrUnaligned
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	end := offset + SlabSize

	for s := m.head; s != nil; s = s.next {
		segEnd := s.offset + s.size
		if offset < s.offset || end > segEnd {
			continue
		}

		switch {
		case offset == s.offset && end == segEnd:
			// exact match
			m.unlink(s)
		case offset == s.offset:
			// head match: shrink from the front
			s.offset = end
			s.size = segEnd - end
		case end == segEnd:
			// tail match: shrink from the back
			s.size = offset - s.offset
		default:
			// interior: split into two segments around the hole
			tail := &segment{offset: end, size: segEnd - end}
			s.size = offset - s.offset

			tail.prev = s
			tail.next = s.next
			if s.next != nil {
				s.next.prev = tail
			} else {
				m.tail = tail
			}
			s.next = tail
		}

		return nil
	}

	return fmt.Errorf("%w: offset %d", ErrUnavailable, offset)
}

// ErrUnavailable is returned by AllocAt when no free segment fully
// covers the requested extent.
var ErrUnavailable = errors.New("space: extent unavailable")

// insertFree inserts (offset, size) at its address-sorted position and
// merges it with an abutting predecessor and/or successor. Preconditions
// (checked): the extent must not already be free and must not overlap an
// existing free segment; callers violating this get ErrOverlap and the
// list is left unchanged.
func (m *Manager) insertFree(offset, size uint64) error {
	end := offset + size

	var prev, next *segment
	for s := m.head; s != nil; s = s.next {
		segEnd := s.offset + s.size
		if offset < segEnd && end > s.offset {
			return fmt.Errorf("%w: offset %d", ErrOverlap, offset)
		}
		if s.offset >= end {
			next = s
			break
		}
		prev = s
	}

	mergeWithPrev := prev != nil && prev.offset+prev.size == offset
	mergeWithNext := next != nil && end == next.offset

	switch {
	case mergeWithPrev && mergeWithNext:
		prev.size += size + next.size
		m.unlink(next)
	case mergeWithPrev:
		prev.size += size
	case mergeWithNext:
		next.offset = offset
		next.size += size
	default:
		seg := &segment{offset: offset, size: size, prev: prev, next: next}
		if prev != nil {
			prev.next = seg
		} else {
			m.head = seg
		}
		if next != nil {
			next.prev = seg
		} else {
			m.tail = seg
		}
	}

	return nil
}

// unlink removes s from the list. Caller holds mu.
func (m *Manager) unlink(s *segment) {
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		m.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	} else {
		m.tail = s.prev
	}
	s.prev = nil
	s.next = nil
}
