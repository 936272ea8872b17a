package platform

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Parallelism returns the processor-derived concurrency ceiling for hashing
// work. It is the number of logical cores reported by the CPU, capped by
// GOMAXPROCS so a restricted runtime is never oversubscribed.
func Parallelism() int {
	procs := runtime.GOMAXPROCS(0)
	cores := cpuid.CPU.LogicalCores
	if cores <= 0 || cores > procs {
		cores = procs
	}
	if cores < 1 {
		return 1
	}
	return cores
}

// ReadMethod identifies how file contents are streamed into a hash.
type ReadMethod int

const (
	ReadBuffered   ReadMethod = iota
	ReadSequential            // posix_fadvise(SEQUENTIAL) applied
)

func (m ReadMethod) String() string {
	switch m {
	case ReadBuffered:
		return "buffered"
	case ReadSequential:
		return "sequential"
	default:
		return "unknown"
	}
}
