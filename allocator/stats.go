package allocator

import "sync/atomic"

// Stats is a point-in-time snapshot of allocator activity, mirroring
// the shape of pointerstore.Stats in this codebase's ancestry: simple
// counters, no locking beyond what the underlying atomics give for
// free.
type Stats struct {
	Allocs       uint64
	Frees        uint64
	Live         uint64
	SlabsCreated uint64
}

type statCounters struct {
	allocs       atomic.Uint64
	frees        atomic.Uint64
	slabsCreated atomic.Uint64
}

func (c *statCounters) recordAlloc()       { c.allocs.Add(1) }
func (c *statCounters) recordFree()        { c.frees.Add(1) }
func (c *statCounters) recordSlabCreated() { c.slabsCreated.Add(1) }

func (c *statCounters) snapshot() Stats {
	allocs := c.allocs.Load()
	frees := c.frees.Load()
	return Stats{
		Allocs:       allocs,
		Frees:        frees,
		Live:         allocs - frees,
		SlabsCreated: c.slabsCreated.Load(),
	}
}
