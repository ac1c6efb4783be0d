// Command nvmrecover replays a persisted allocation log against a freshly
// mapped region, reconstructing the volatile allocator metadata the log's
// original process would have held in memory before it stopped. The log
// format is one "offset,size" pair per line, offsets relative to the
// region's own base (not absolute addresses, since those are only valid
// within one process's mapping).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fmstephe/nvmalloc/allocator"
	"github.com/fmstephe/nvmalloc/internal/nvm"
	"github.com/fmstephe/nvmalloc/tunables"
)

var (
	pathFlag  = flag.String("path", "", "path to a recovery log of offset,size lines")
	slabsFlag = flag.Int("slabs", 64, "number of slab-sized extents to map before replay")
)

func main() {
	flag.Parse()

	if *pathFlag == "" {
		fmt.Printf("No -path flag provided. Nothing to recover.\n")
		return
	}

	f, err := os.Open(*pathFlag)
	if err != nil {
		fmt.Printf("Error opening recovery log %s: %s\n", *pathFlag, err)
		os.Exit(1)
	}
	defer f.Close()

	size := uint64(*slabsFlag) * tunables.SlabSize
	region, err := nvm.Map(int(size))
	if err != nil {
		fmt.Printf("Error mapping region: %s\n", err)
		os.Exit(1)
	}
	defer region.Unmap()

	a, err := allocator.New(region.Base(), region.Size(), allocator.Config{})
	if err != nil {
		fmt.Printf("Error constructing allocator: %s\n", err)
		os.Exit(1)
	}

	replayed, failed := replay(f, a, region.Base())
	fmt.Printf("Replayed %d records, %d failures\n", replayed, failed)

	stats := a.Stats()
	fmt.Printf("live=%d slabs_created=%d\n", stats.Live, stats.SlabsCreated)
}

// replay reads one "offset,size" record per line and replays each
// independently via RestoreAllocation: a malformed or rejected record is
// reported and skipped rather than aborting the rest of the log, since a
// partial recovery is still better than none.
func replay(f *os.File, a *allocator.Allocator, base uintptr) (replayed, failed int) {
	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			fmt.Printf("line %d: malformed record %q\n", lineNo, line)
			failed++
			continue
		}

		offset, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			fmt.Printf("line %d: bad offset %q: %s\n", lineNo, parts[0], err)
			failed++
			continue
		}

		size, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			fmt.Printf("line %d: bad size %q: %s\n", lineNo, parts[1], err)
			failed++
			continue
		}

		if err := a.RestoreAllocation(base+uintptr(offset), size); err != nil {
			fmt.Printf("line %d: restore failed: %s\n", lineNo, err)
			failed++
			continue
		}

		replayed++
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("error reading log: %s\n", err)
	}

	return replayed, failed
}
