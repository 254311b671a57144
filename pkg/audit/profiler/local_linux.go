//go:build linux

package profiler

import (
	"golang.org/x/sys/unix"
)

// readMemory reads total and available RAM via sysinfo.
func readMemory() (MemoryInfo, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return MemoryInfo{}, err
	}

	unit := int64(si.Unit)
	if unit == 0 {
		unit = 1
	}

	return MemoryInfo{
		Total:     int64(si.Totalram) * unit,
		Available: (int64(si.Freeram) + int64(si.Bufferram)) * unit,
	}, nil
}

// readLoadPercent converts the 1-minute load average into a percentage of
// the given core count.
func readLoadPercent(cores int) (float64, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0, err
	}
	if cores < 1 {
		cores = 1
	}

	// Loads are fixed-point with a 16-bit fractional part.
	load1 := float64(si.Loads[0]) / 65536.0
	return load1 / float64(cores) * 100, nil
}

// diskFreePercent reports the free-space percentage of the volume holding
// the given directory.
func diskFreePercent(dir string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	if st.Blocks == 0 {
		return 0, nil
	}
	return float64(st.Bavail) / float64(st.Blocks) * 100, nil
}
