//go:build !linux

package profiler

// defaultTotalRAM is the fallback when platform memory detection is not
// implemented. 8GB is a reasonable default for modern systems.
const defaultTotalRAM = 8 * 1024 * 1024 * 1024

// readMemory falls back to a conservative estimate on platforms without a
// sysinfo implementation.
func readMemory() (MemoryInfo, error) {
	return MemoryInfo{
		Total:     defaultTotalRAM,
		Available: defaultTotalRAM / 2,
	}, nil
}

// readLoadPercent reports zero load on platforms without load detection,
// leaving the budget calculation to the other signals.
func readLoadPercent(_ int) (float64, error) {
	return 0, nil
}

// diskFreePercent reports an uncontended default on platforms without
// statfs support. The value sits above the low-space threshold so it never
// reduces the budget on its own.
func diskFreePercent(_ string) (float64, error) {
	return 50, nil
}
