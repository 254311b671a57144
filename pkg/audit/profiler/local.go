package profiler

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// diskProbeSize is the payload written and read back to estimate disk
// latency. Small enough to be cheap, large enough to leave the page cache
// out of the write path when O_SYNC is honored.
const diskProbeSize = 256 * 1024

// LocalProber measures the host the orchestrator itself runs on. Remote
// management transports provide their own Prober implementations; the local
// prober covers self-audit and serves as the reference implementation.
type LocalProber struct {
	// ProbeDir is where the disk latency probe file is written.
	// Empty uses the OS temp directory.
	ProbeDir string
}

// CPU reports logical core count from the runtime. Physical core count and
// speed are platform-specific and may be zero.
func (p *LocalProber) CPU(_ context.Context, _, _ string) (CPUInfo, error) {
	return CPUInfo{Logical: runtime.NumCPU()}, nil
}

// Memory reports total and available RAM.
func (p *LocalProber) Memory(_ context.Context, _, _ string) (MemoryInfo, error) {
	return readMemory()
}

// Load reports system load as a percentage of available cores.
func (p *LocalProber) Load(_ context.Context, _, _ string) (float64, error) {
	return readLoadPercent(runtime.NumCPU())
}

// Network reports the local host as reachable with zero latency.
func (p *LocalProber) Network(_ context.Context, _, _ string) (NetworkInfo, error) {
	return NetworkInfo{Reachable: true}, nil
}

// Disk measures write and read latency with a synced probe file and reports
// free space on the probe volume.
func (p *LocalProber) Disk(ctx context.Context, _, _ string) (DiskInfo, error) {
	dir := p.ProbeDir
	if dir == "" {
		dir = os.TempDir()
	}

	var info DiskInfo
	free, err := diskFreePercent(dir)
	if err != nil {
		return info, err
	}
	info.FreePercent = free

	payload := make([]byte, diskProbeSize)
	if _, err := rand.Read(payload); err != nil {
		return info, err
	}

	path := filepath.Join(dir, ".fleetaudit-probe")
	defer os.Remove(path)

	start := time.Now()
	if err := writeSynced(path, payload); err != nil {
		return info, err
	}
	info.WriteLatency = time.Since(start)

	if err := ctx.Err(); err != nil {
		return info, err
	}

	start = time.Now()
	if _, err := os.ReadFile(path); err != nil {
		return info, err
	}
	info.ReadLatency = time.Since(start)

	return info, nil
}

// writeSynced writes data and flushes it to stable storage so the measured
// latency reflects the device, not the page cache.
func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
