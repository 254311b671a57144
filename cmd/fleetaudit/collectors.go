package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// defaultTasks returns the built-in local inventory collectors. They audit
// the host fleetaudit runs on; remote collection plugs in through the same
// CollectorTask contract.
func defaultTasks() []types.CollectorTask {
	return []types.CollectorTask{
		{
			Name: "host-info",
			Run:  collectHostInfo,
		},
		{
			Name: "os-release",
			Run:  collectOSRelease,
		},
		{
			Name:      "packages",
			Run:       collectPackages,
			DependsOn: []string{"os-release"},
			Variants: map[types.PerformanceTier]types.CollectorFunc{
				types.TierLow: collectPackagesLight,
			},
			Fallback: []types.PerformanceTier{types.TierLow},
		},
		{
			Name: "processes",
			Run:  collectProcesses,
		},
	}
}

// collectHostInfo reports basic identity facts about the host.
func collectHostInfo(_ context.Context, _ types.Target, hint types.CapabilityHint) (*types.TaskOutput, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("reading hostname: %w", err)
	}
	return &types.TaskOutput{
		Data: map[string]any{
			"hostname": hostname,
			"os":       runtime.GOOS,
			"arch":     runtime.GOARCH,
			"cores":    hint.LogicalCores,
		},
	}, nil
}

// collectOSRelease parses /etc/os-release into key/value pairs.
func collectOSRelease(ctx context.Context, _ types.Target, _ types.CapabilityHint) (*types.TaskOutput, error) {
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return nil, fmt.Errorf("opening os-release: %w", err)
	}
	defer f.Close()

	fields := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		fields[key] = strings.Trim(value, `"`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading os-release: %w", err)
	}
	return &types.TaskOutput{Data: fields}, nil
}

// dpkgStatusPath is the package database consulted by the packages
// collectors.
const dpkgStatusPath = "/var/lib/dpkg/status"

// collectPackages counts installed packages from the dpkg database.
func collectPackages(ctx context.Context, _ types.Target, _ types.CapabilityHint) (*types.TaskOutput, error) {
	f, err := os.Open(dpkgStatusPath)
	if err != nil {
		return nil, fmt.Errorf("opening package database: %w", err)
	}
	defer f.Close()

	var installed int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasPrefix(scanner.Text(), "Package: ") {
			installed++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading package database: %w", err)
	}
	return &types.TaskOutput{
		Data: map[string]any{"manager": "dpkg", "installed": installed},
	}, nil
}

// collectPackagesLight is the Low-tier packages variant: it confirms the
// package database exists without parsing it.
func collectPackagesLight(_ context.Context, _ types.Target, _ types.CapabilityHint) (*types.TaskOutput, error) {
	info, err := os.Stat(dpkgStatusPath)
	if err != nil {
		return nil, fmt.Errorf("checking package database: %w", err)
	}
	return &types.TaskOutput{
		Data: map[string]any{
			"manager":       "dpkg",
			"database_size": info.Size(),
		},
		Warnings: []string{"package list skipped on low-capacity target"},
	}, nil
}

// collectProcesses counts running processes from /proc.
func collectProcesses(ctx context.Context, _ types.Target, _ types.CapabilityHint) (*types.TaskOutput, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("reading process table: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var count int
	for _, entry := range entries {
		if _, err := strconv.Atoi(entry.Name()); err == nil {
			count++
		}
	}
	return &types.TaskOutput{
		Data: map[string]any{"running": count},
	}, nil
}
