// Command nvmallocdemo maps an anonymous region, runs a small mixed
// workload through the allocator, and prints the resulting stats.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/fmstephe/nvmalloc/allocator"
	"github.com/fmstephe/nvmalloc/internal/nvm"
	"github.com/fmstephe/nvmalloc/tunables"
)

var (
	slabsFlag = flag.Int("slabs", 8, "number of slab-sized extents to map")
	opsFlag   = flag.Int("ops", 10000, "number of allocate/free operations to run")
	seedFlag  = flag.Int64("seed", 1, "PRNG seed for the workload mix")
)

func main() {
	flag.Parse()

	size := uint64(*slabsFlag) * tunables.SlabSize

	region, err := nvm.Map(int(size))
	if err != nil {
		fmt.Printf("Error mapping region: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := region.Unmap(); err != nil {
			fmt.Printf("Error unmapping region: %s\n", err)
		}
	}()

	a, err := allocator.New(region.Base(), region.Size(), allocator.Config{})
	if err != nil {
		fmt.Printf("Error constructing allocator: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Shutdown(); err != nil {
			fmt.Printf("Error during shutdown: %s\n", err)
		}
	}()

	live := make([]uintptr, 0, *opsFlag)
	rng := rand.New(rand.NewSource(*seedFlag))
	sizes := []uint64{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

	for i := 0; i < *opsFlag; i++ {
		// Free about a third of the time once something is live, else
		// allocate a randomly sized block.
		if len(live) > 0 && rng.Intn(3) == 0 {
			idx := rng.Intn(len(live))
			a.Free(live[idx])
			live[idx] = live[len(live)-1]
			live = live[:len(live)-1]
			continue
		}

		size := sizes[rng.Intn(len(sizes))]
		addr, err := a.Allocate(size)
		if err != nil {
			continue
		}
		live = append(live, addr)
	}

	for _, addr := range live {
		a.Free(addr)
	}

	stats := a.Stats()
	fmt.Printf("allocs=%d frees=%d live=%d slabs_created=%d\n",
		stats.Allocs, stats.Frees, stats.Live, stats.SlabsCreated)
}
