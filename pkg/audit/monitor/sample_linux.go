//go:build linux

package monitor

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// sampleLocal reads load average and memory usage via sysinfo.
func sampleLocal() (Sample, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return Sample{}, err
	}

	cores := runtime.NumCPU()
	if cores < 1 {
		cores = 1
	}

	// Loads are fixed-point with a 16-bit fractional part.
	load1 := float64(si.Loads[0]) / 65536.0

	unit := int64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	total := int64(si.Totalram) * unit
	free := (int64(si.Freeram) + int64(si.Bufferram)) * unit

	var memPct float64
	if total > 0 {
		memPct = float64(total-free) / float64(total) * 100
	}

	return Sample{
		CPUPercent: load1 / float64(cores) * 100,
		MemPercent: memPct,
	}, nil
}
