// Package allocator is the two-level orchestrator binding the Space
// Manager, Slab, and Slab Index together: size-class dispatch, per-CPU
// heap lists for the fast path, a central heap for the slow path, and a
// recovery path that rebuilds indexed slabs from externally persisted
// (address, size) records.
package allocator

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fmstephe/nvmalloc/slab"
	"github.com/fmstephe/nvmalloc/slabindex"
	"github.com/fmstephe/nvmalloc/space"
	"github.com/fmstephe/nvmalloc/tunables"
)

// Allocator is a handle-based instance of the whole two-level allocator.
// Package-level Init/Shutdown/Allocate/Free/Restore (singleton.go) wrap
// exactly one *Allocator; nothing stops a caller from holding several
// independent instances instead.
type Allocator struct {
	cfg Config

	nvmBase uintptr
	nvmSize uint64

	// central heap: Space Manager + Slab Index + the mutex serializing
	// extent/index mutation against each other. Never held across a
	// slab-internal block alloc/free.
	centralMu sync.Mutex
	spaceMgr  *space.Manager
	index     *slabindex.Index

	cpus       []perCPUHeap
	currentCPU func() int

	stats statCounters

	// shutDown is set at the start of Shutdown, before the central heap's
	// fields are released, so that a handle-based caller who keeps a *Allocator
	// around past Shutdown gets ErrUninitialized instead of a nil-pointer
	// panic on spaceMgr/index. spec.md §7 defines Uninitialized as
	// "called before init or after shutdown" for both the singleton and
	// (per §9) any handle-based API built on the same type.
	shutDown atomic.Bool
}

// New builds a standalone Allocator over the NVM region
// [base, base+size). size is truncated down to a multiple of the slab
// size by the Space Manager (space.Create).
func New(base uintptr, size uint64, cfg Config) (*Allocator, error) {
	if base == 0 {
		return nil, fmt.Errorf("%w: null base", ErrInvalidArgument)
	}
	if size < tunables.SlabSize {
		return nil, fmt.Errorf("%w: size %d smaller than slab size %d", ErrInvalidArgument, size, uint64(tunables.SlabSize))
	}

	spaceMgr, err := space.Create(0, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	return &Allocator{
		cfg:        cfg,
		nvmBase:    base,
		nvmSize:    spaceMgr.TotalSize(),
		spaceMgr:   spaceMgr,
		index:      slabindex.New(cfg.getSlabIndexCapacity()),
		cpus:       newPerCPUHeaps(cfg.getMaxCPUs()),
		currentCPU: cfg.getCurrentCPU(),
	}, nil
}

// Allocate serves one request of size bytes: size-class dispatch, the
// current CPU's fast path, and the central-heap slow path on a list
// miss, exactly per spec.md §4.4.
func (a *Allocator) Allocate(size uint64) (uintptr, error) {
	if a.shutDown.Load() {
		return 0, ErrUninitialized
	}

	classID, ok := slab.ClassForSize(size)
	if !ok {
		return 0, fmt.Errorf("%w: size %d", ErrInvalidArgument, size)
	}

	heap := &a.cpus[clampCPU(a.currentCPU(), len(a.cpus))]

	if s := heap.firstUsable(classID); s != nil {
		if blockIdx, err := s.Alloc(); err == nil {
			a.stats.recordAlloc()
			return a.address(s, blockIdx), nil
		}
		// The IsFull hint was stale (a concurrent remote free hadn't
		// landed, or a racing allocate on the same CPU just filled it);
		// fall through to the slow path rather than retry-loop here.
	}

	s, err := a.growSlowPath(classID)
	if err != nil {
		return 0, err
	}
	heap.pushHead(classID, s)

	blockIdx, err := s.Alloc()
	if err != nil {
		return 0, fmt.Errorf("allocator: freshly created slab rejected its first allocation: %w", err)
	}

	a.stats.recordAlloc()
	return a.address(s, blockIdx), nil
}

// growSlowPath acquires a fresh extent from the Space Manager, wraps it
// in a new Slab, and registers it in the Slab Index, all under
// centralMu. Any failure after the extent is acquired rolls the extent
// back before returning.
func (a *Allocator) growSlowPath(classID int) (*slab.Slab, error) {
	a.centralMu.Lock()
	defer a.centralMu.Unlock()

	offset, err := a.spaceMgr.AllocSlab()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExhausted, err)
	}

	s, err := slab.NewSlab(classID, offset)
	if err != nil {
		_ = a.spaceMgr.FreeSlab(offset)
		return nil, fmt.Errorf("%w: %v", ErrOutOfHostMemory, err)
	}

	if err := a.index.Insert(offset, s); err != nil {
		s.Destroy()
		_ = a.spaceMgr.FreeSlab(offset)
		return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
	}

	a.stats.recordSlabCreated()
	return s, nil
}

// Free releases the block at address. Per spec.md §6 this is infallible
// externally: an address outside the managed region, or one whose slab
// isn't indexed, is treated as a caller contract violation and silently
// ignored rather than returned as an error.
func (a *Allocator) Free(address uintptr) {
	if a.shutDown.Load() {
		return
	}

	offset, ok := a.offsetOf(address)
	if !ok {
		return
	}

	slabBase := alignDown(offset, tunables.SlabSize)

	s := a.index.Lookup(slabBase)
	if s == nil {
		return
	}

	blockIdx := uint32((offset - slabBase) / uint64(s.BlockSize()))
	_ = s.Free(blockIdx)

	a.stats.recordFree()
}

// RestoreAllocation is the recovery-path operation: given an (address,
// size) record from the caller's own persisted log, it reconstructs
// whatever volatile state (Slab Index entry, Space Manager reservation,
// bitmap bit) is needed to reflect that the block was live before a
// crash. Assumed single-threaded or externally serialized, per spec.md
// §4.4.
func (a *Allocator) RestoreAllocation(address uintptr, size uint64) error {
	if a.shutDown.Load() {
		return ErrUninitialized
	}

	classID, ok := slab.ClassForSize(size)
	if !ok {
		return fmt.Errorf("%w: size %d", ErrInvalidArgument, size)
	}

	offset, ok := a.offsetOf(address)
	if !ok {
		return fmt.Errorf("%w: address outside managed region", ErrInvalidArgument)
	}

	slabBase := alignDown(offset, tunables.SlabSize)

	s, err := a.restoreSlab(slabBase, classID)
	if err != nil {
		return err
	}

	blockIdx := uint32((offset - slabBase) / uint64(s.BlockSize()))
	if err := s.RestoreMark(blockIdx); err != nil {
		return fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}

	return nil
}

// restoreSlab finds or creates the slab covering slabBase, under
// centralMu, and returns it. A mismatch between an already-indexed
// slab's size class and classID is fatal for this record (ErrMismatch)
// rather than silently accepted.
func (a *Allocator) restoreSlab(slabBase uint64, classID int) (*slab.Slab, error) {
	a.centralMu.Lock()
	defer a.centralMu.Unlock()

	if s := a.index.Lookup(slabBase); s != nil {
		if s.ClassID() != classID {
			return nil, fmt.Errorf("%w: indexed class %d, record class %d", ErrMismatch, s.ClassID(), classID)
		}
		return s, nil
	}

	if err := a.spaceMgr.AllocAt(slabBase); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s, err := slab.NewSlab(classID, slabBase)
	if err != nil {
		_ = a.spaceMgr.FreeSlab(slabBase)
		return nil, fmt.Errorf("%w: %v", ErrOutOfHostMemory, err)
	}

	if err := a.index.Insert(slabBase, s); err != nil {
		s.Destroy()
		_ = a.spaceMgr.FreeSlab(slabBase)
		return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
	}

	a.cpus[0].pushHead(classID, s)
	a.stats.recordSlabCreated()

	return s, nil
}

// ReclaimEmpty is the optional active-reclaim path sketched in spec.md
// §9: it walks cpu's chain for classID and returns every slab with no
// live caller-held blocks to the Space Manager, removing its Slab Index
// entry. A reclaimed slab's ring buffer may still hold cached indices —
// those are just bitmap-reserved bytes inside the extent being returned
// whole, not blocks anyone still holds. It must only be called by the
// thread that owns cpu's heap — it mutates that chain directly, with no
// lock protecting the chain itself, exactly like the normal Allocate
// fast path. Deferred reclaim (retaining empty slabs) remains the
// baseline: this is never invoked implicitly.
func (a *Allocator) ReclaimEmpty(cpu, classID int) int {
	heap := &a.cpus[clampCPU(cpu, len(a.cpus))]

	a.centralMu.Lock()
	defer a.centralMu.Unlock()

	var keepHead, keepTail *slab.Slab
	reclaimed := 0

	for s := heap.heads[classID].Load(); s != nil; {
		next := s.Next

		if s.IsEmpty() {
			a.index.Remove(s.BaseOffset())
			_ = a.spaceMgr.FreeSlab(s.BaseOffset())
			s.Destroy()
			reclaimed++
		} else {
			s.Next = nil
			if keepHead == nil {
				keepHead = s
			} else {
				keepTail.Next = s
			}
			keepTail = s
		}

		s = next
	}

	heap.heads[classID].Store(keepHead)

	return reclaimed
}

// Shutdown walks every per-CPU list and destroys every slab, then drops
// the Slab Index and Space Manager. Afterwards Allocate,
// RestoreAllocation and a second Shutdown return ErrUninitialized and
// Free is a no-op.
func (a *Allocator) Shutdown() error {
	if a.shutDown.Swap(true) {
		return ErrUninitialized
	}

	a.centralMu.Lock()
	defer a.centralMu.Unlock()

	for i := range a.cpus {
		for c := 0; c < slab.NumClasses; c++ {
			s := a.cpus[i].heads[c].Load()
			for s != nil {
				next := s.Next
				s.Destroy()
				s = next
			}
			a.cpus[i].heads[c].Store(nil)
		}
	}

	a.index = nil
	a.spaceMgr = nil

	return nil
}

// Stats returns a snapshot of allocator-wide counters.
func (a *Allocator) Stats() Stats {
	return a.stats.snapshot()
}

// address computes the caller-visible address for blockIdx within s.
func (a *Allocator) address(s *slab.Slab, blockIdx uint32) uintptr {
	return a.nvmBase + uintptr(s.BaseOffset()) + uintptr(blockIdx)*uintptr(s.BlockSize())
}

// offsetOf converts an external address into an in-region offset,
// reporting ok=false for anything outside [nvmBase, nvmBase+nvmSize).
func (a *Allocator) offsetOf(address uintptr) (uint64, bool) {
	if address < a.nvmBase || address >= a.nvmBase+uintptr(a.nvmSize) {
		return 0, false
	}
	return uint64(address - a.nvmBase), true
}

// alignDown rounds offset down to the nearest multiple of align.
func alignDown(offset, align uint64) uint64 {
	return offset - (offset % align)
}
