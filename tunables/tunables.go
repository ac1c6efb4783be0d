// Package tunables holds the compile-time constants spec'd in the
// allocator's external interface (spec.md §6): slab size, size classes,
// ring-buffer cache sizing, and the default CPU/index capacity limits.
// Every other package imports these from one place so they can never
// drift out of step with each other.
package tunables

const (
	// SlabSize is the fixed extent size the Space Manager hands out and
	// the Slab subdivides into blocks.
	SlabSize = 2 * 1024 * 1024 // 2 MiB

	// CacheSize is the maximum number of block indices a Slab's ring
	// buffer may hold at once.
	CacheSize = 64

	// Batch is the refill/drain batch size: refill stops after pushing
	// this many indices, drain stops once the ring holds this many.
	Batch = CacheSize / 2

	// MaxCPUs bounds the per-CPU heap array. Current CPU ids are clamped
	// into [0, MaxCPUs) by modulo.
	MaxCPUs = 64

	// CacheLine is the padding width used to keep per-CPU heaps from
	// sharing a cache line.
	CacheLine = 64

	// SlabIndexCapacity is the default fixed bucket count for the Slab
	// Index's hash table. Chosen prime per spec.md §4.3.
	SlabIndexCapacity = 101
)

// SizeClasses are the ten supported block sizes, smallest to largest.
var SizeClasses = [10]uint32{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// MaxBlockSize is the largest single allocation the allocator will serve.
const MaxBlockSize = 4096
