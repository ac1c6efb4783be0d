package allocator

import (
	"fmt"
	"sync"
)

// global is the package-level Allocator wrapped by Init/Shutdown/
// Allocate/Free/Restore below, matching spec.md §6's external interface
// table. Applications that want more than one independent allocator
// (tests, multi-region setups) should use New directly instead.
var (
	globalMu sync.Mutex
	global   *Allocator
)

// Init installs the package-level Allocator over [base, base+size).
// Returns ErrAlreadyInitialized if called twice without an intervening
// Shutdown.
func Init(base uintptr, size uint64, cfg Config) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		return ErrAlreadyInitialized
	}

	a, err := New(base, size, cfg)
	if err != nil {
		return err
	}

	global = a
	return nil
}

// Shutdown tears down the package-level Allocator installed by Init.
// Returns ErrUninitialized if Init was never called (or a prior
// Shutdown already ran).
func Shutdown() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global == nil {
		return ErrUninitialized
	}

	err := global.Shutdown()
	global = nil
	return err
}

// Allocate serves one request against the package-level Allocator.
func Allocate(size uint64) (uintptr, error) {
	a, err := current()
	if err != nil {
		return 0, err
	}
	return a.Allocate(size)
}

// Free releases one block against the package-level Allocator. A no-op,
// per Allocator.Free, if address isn't recognized.
func Free(address uintptr) {
	globalMu.Lock()
	a := global
	globalMu.Unlock()

	if a == nil {
		return
	}
	a.Free(address)
}

// Restore replays one recovery record against the package-level
// Allocator.
func Restore(address uintptr, size uint64) error {
	a, err := current()
	if err != nil {
		return err
	}
	return a.RestoreAllocation(address, size)
}

func current() (*Allocator, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global == nil {
		return nil, fmt.Errorf("%w: call Init first", ErrUninitialized)
	}
	return global, nil
}
