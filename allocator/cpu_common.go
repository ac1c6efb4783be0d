package allocator

import "sync/atomic"

var cpuRoundRobin atomic.Uint64

// fallbackCPUHint is the portable default when no real CPU-affinity
// signal is available: it just round-robins. This spreads fast-path
// traffic across the per-CPU heap array instead of pinning everything
// onto heap 0, without claiming any real affinity.
func fallbackCPUHint() int {
	return int(cpuRoundRobin.Add(1))
}
