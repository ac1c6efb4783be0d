//go:build linux

package allocator

import "golang.org/x/sys/unix"

// currentCPUHint reads the CPU the calling thread is currently running
// on via the getcpu(2) syscall. It is a hint only — by the time the
// caller uses the returned heap, the OS may have already migrated the
// thread — which is exactly the "occasional mis-classification" spec.md
// §5 says is safe.
func currentCPUHint() int {
	var cpu, node int
	if err := unix.Getcpu(&cpu, &node, nil); err != nil {
		return fallbackCPUHint()
	}
	return cpu
}
