package replay

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// DefaultWorkers returns the number of physical cores, falling back to the
// logical CPU count when the topology is unknown.
func DefaultWorkers() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}
