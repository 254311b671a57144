//go:build !linux

package monitor

// sampleLocal reports no pressure on platforms without a sysinfo
// implementation, leaving the configured concurrency untouched.
func sampleLocal() (Sample, error) {
	return Sample{}, nil
}
