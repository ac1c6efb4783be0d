package allocator

import (
	"sync/atomic"

	"github.com/fmstephe/nvmalloc/slab"
	"github.com/fmstephe/nvmalloc/tunables"
)

// perCPUHeap holds one chain head per size class for a single CPU. It is
// mutated (the heads array) only by the CPU that owns it; other CPUs
// never traverse or write another CPU's heads. The pad field keeps two
// adjacent perCPUHeap entries in the cpus array off the same cache line.
//
// Heads are stored as atomic.Pointer rather than plain *slab.Slab even
// though only the owning CPU ever writes them: this gives the
// release-store/acquire-load discipline spec.md §5 calls for ("a thread
// publishing a new slab writes the slab's next_in_chain before writing
// the list head") for free. The opt-in ReclaimEmpty path also rewrites a
// chain, and like the fast path it is called only on the owning thread:
// central_mutex does not guard the chain itself.
type perCPUHeap struct {
	heads [slab.NumClasses]atomic.Pointer[slab.Slab]
	_     [tunables.CacheLine]byte
}

func newPerCPUHeaps(maxCPUs int) []perCPUHeap {
	return make([]perCPUHeap, maxCPUs)
}

// clampCPU folds an arbitrary CPU id into [0, len(cpus)) by modulo, per
// spec.md §4.4 step 2 ("clamped into [0, MAX_CPUS) via modulo on
// overflow").
func clampCPU(cpu, maxCPUs int) int {
	if cpu < 0 {
		cpu = -cpu
	}
	return cpu % maxCPUs
}

// firstUsable walks this CPU's chain for classID looking for the first
// slab that isn't (hint-)full.
func (h *perCPUHeap) firstUsable(classID int) *slab.Slab {
	for s := h.heads[classID].Load(); s != nil; s = s.Next {
		if !s.IsFull() {
			return s
		}
	}
	return nil
}

// pushHead links s as the new head of this CPU's chain for classID. The
// slab's Next pointer is written before the head, so any reader that
// observes the new head already sees a fully-linked Next.
func (h *perCPUHeap) pushHead(classID int, s *slab.Slab) {
	s.Next = h.heads[classID].Load()
	h.heads[classID].Store(s)
}
