// Package slabindex implements the concurrent offset→slab mapping used
// by Free to locate the owning slab of any address. It is a
// fixed-capacity, separate-chained hash table with no dynamic rehash —
// acceptable because the number of slabs is bounded by
// total_size/SlabSize.
package slabindex

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fmstephe/nvmalloc/slab"
	"github.com/fmstephe/nvmalloc/tunables"
)

// ErrDuplicate is returned by Insert when an entry for the given offset
// already exists. Seeing this in practice indicates a bug in the
// allocator's slow path (double-registration of a slab).
var ErrDuplicate = errors.New("slabindex: duplicate base offset")

type entry struct {
	offset uint64
	slab   *slab.Slab
	next   *entry
}

// Index is a fixed-capacity bucket-chained hash table keyed by slab
// base_offset. A single reader-writer lock guards the whole table:
// Lookup takes the shared lock, Insert/Remove take the exclusive lock.
type Index struct {
	mu       sync.RWMutex
	buckets  []*entry
	capacity uint64
}

// New builds an Index with the given fixed bucket count. A capacity <= 0
// falls back to tunables.SlabIndexCapacity.
func New(capacity int) *Index {
	if capacity <= 0 {
		capacity = tunables.SlabIndexCapacity
	}

	return &Index{
		buckets:  make([]*entry, capacity),
		capacity: uint64(capacity),
	}
}

// Insert registers s under its base offset. Fails with ErrDuplicate if
// an entry for that offset already exists; the table is left unchanged
// in that case.
func (idx *Index) Insert(offset uint64, s *slab.Slab) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	b := idx.bucket(offset)
	for e := idx.buckets[b]; e != nil; e = e.next {
		if e.offset == offset {
			return ErrDuplicate
		}
	}

	idx.buckets[b] = &entry{offset: offset, slab: s, next: idx.buckets[b]}
	return nil
}

// Lookup returns the slab registered at offset, or nil if none exists.
func (idx *Index) Lookup(offset uint64) *slab.Slab {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	b := idx.bucket(offset)
	for e := idx.buckets[b]; e != nil; e = e.next {
		if e.offset == offset {
			return e.slab
		}
	}
	return nil
}

// Remove unlinks and returns the slab registered at offset, or nil if
// none exists. Removing an entry never touches the slab's own metadata
// — ownership of the *slab.Slab stays with the allocator.
func (idx *Index) Remove(offset uint64) *slab.Slab {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	b := idx.bucket(offset)
	var prev *entry
	for e := idx.buckets[b]; e != nil; e = e.next {
		if e.offset == offset {
			if prev != nil {
				prev.next = e.next
			} else {
				idx.buckets[b] = e.next
			}
			return e.slab
		}
		prev = e
	}
	return nil
}

// Len returns the number of entries currently indexed. Intended for
// tests and diagnostics; takes the shared lock.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	count := 0
	for _, e := range idx.buckets {
		for ; e != nil; e = e.next {
			count++
		}
	}
	return count
}

// bucket hashes a slab-aligned offset to a bucket index. The offset is
// first reduced to its slab number (offset/SlabSize) — the quantity that
// actually varies across keys — then mixed through xxhash before the
// final modulo reduction, which spreads buckets better than a raw
// modulo for the sequential-multiples-of-SlabSize traffic this table
// sees.
func (idx *Index) bucket(offset uint64) uint64 {
	slabNum := offset / tunables.SlabSize

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], slabNum)

	return xxhash.Sum64(buf[:]) % idx.capacity
}
