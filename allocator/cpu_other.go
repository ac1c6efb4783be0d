//go:build !linux

package allocator

// currentCPUHint on non-Linux platforms (where getcpu(2) isn't
// available) falls back to a portable round-robin approximation. Like
// the Linux getcpu(2) path, this is only ever a locality hint — per
// spec.md §5 a wrong answer here never breaks correctness, only cache
// locality.
func currentCPUHint() int {
	return fallbackCPUHint()
}
