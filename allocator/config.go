package allocator

import "github.com/fmstephe/nvmalloc/tunables"

// Config mirrors the options-struct pattern used elsewhere in this
// codebase's ancestry (a zero Config is always valid; every field has a
// "<= 0 / nil means auto-detect" fallback resolved lazily by its get*
// method).
type Config struct {
	// MaxCPUs bounds the per-CPU heap array. <= 0 uses tunables.MaxCPUs.
	MaxCPUs int

	// SlabIndexCapacity is the fixed bucket count for the Slab Index.
	// <= 0 uses tunables.SlabIndexCapacity.
	SlabIndexCapacity int

	// CurrentCPU returns the calling thread's current CPU id, used to
	// select a per-CPU heap. nil uses a platform-appropriate default
	// (see cpu_linux.go / cpu_other.go). The returned value is clamped
	// into [0, MaxCPUs) by the allocator regardless of what this
	// function returns, so an approximate or even constant CurrentCPU
	// is always safe — it only affects fast-path cache locality, never
	// correctness (spec.md §5: "occasional mis-classification merely
	// produces a (still-safe) cross-CPU push").
	CurrentCPU func() int
}

func (c Config) getMaxCPUs() int {
	if c.MaxCPUs <= 0 {
		return tunables.MaxCPUs
	}
	return c.MaxCPUs
}

func (c Config) getSlabIndexCapacity() int {
	if c.SlabIndexCapacity <= 0 {
		return tunables.SlabIndexCapacity
	}
	return c.SlabIndexCapacity
}

func (c Config) getCurrentCPU() func() int {
	if c.CurrentCPU == nil {
		return currentCPUHint
	}
	return c.CurrentCPU
}
