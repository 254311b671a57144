package profiler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/fleetaudit/pkg/audit/logging"
	"github.com/jamesainslie/fleetaudit/pkg/audit/profcache"
	"github.com/jamesainslie/fleetaudit/pkg/audit/retry"
	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// ProfileCache is the subset of the profile cache the profiler needs.
type ProfileCache interface {
	Get(host string) (*types.CapabilityProfile, error)
	Put(profile *types.CapabilityProfile) error
}

// Options configures a Profiler.
type Options struct {
	// Prober performs the measurements. Required.
	Prober Prober

	// Cache stores measured profiles. Nil disables caching.
	Cache ProfileCache

	// Retry wraps each sub-measurement; transient probe failures are
	// retried before being recorded as warnings.
	Retry retry.Policy

	// Refresh bypasses the cache and forces fresh measurement.
	Refresh bool

	// Clock is replaceable for tests. Nil uses time.Now.
	Clock func() time.Time
}

// Profiler measures capability profiles for audit targets.
type Profiler struct {
	opts Options
	log  *logging.Logger
}

// New creates a Profiler. It panics if opts.Prober is nil, since a profiler
// without a prober cannot measure anything.
func New(opts Options) *Profiler {
	if opts.Prober == nil {
		panic("profiler: nil Prober")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Profiler{
		opts: opts,
		log:  logging.Get("profiler"),
	}
}

// Profile measures the target's capability profile, serving from cache when
// a fresh entry exists. Each sub-measurement failure is recorded as a
// warning on the profile, never a fatal error; the only error return is
// ErrUnreachable for remote targets that fail the network probe.
func (p *Profiler) Profile(ctx context.Context, target types.Target) (*types.CapabilityProfile, error) {
	if !p.opts.Refresh && p.opts.Cache != nil {
		if cached, err := p.opts.Cache.Get(target.Host); err == nil {
			p.log.Debug("profile served from cache", "host", target.Host)
			return cached, nil
		} else if !errors.Is(err, profcache.ErrNotFound) {
			p.log.Warn("profile cache read failed", "host", target.Host, "error", err)
		}
	}

	profile := &types.CapabilityProfile{
		Host:       target.Host,
		Reachable:  true,
		ProfiledAt: p.opts.Clock(),
	}

	// Reachability goes first: an unreachable remote target short-circuits
	// the remaining probes, which would all fail the same way.
	if target.Remote {
		var net NetworkInfo
		err := p.opts.Retry.Execute(ctx, func() error {
			var probeErr error
			net, probeErr = p.opts.Prober.Network(ctx, target.Host, target.CredentialRef)
			return probeErr
		})
		if err != nil || !net.Reachable {
			p.log.Warn("target unreachable", "host", target.Host, "error", err)
			return nil, fmt.Errorf("profiling %s: %w", target.Host, ErrUnreachable)
		}
		profile.NetworkLatency = net.Latency
	}

	p.measureCPU(ctx, target, profile)
	p.measureMemory(ctx, target, profile)
	p.measureDisk(ctx, target, profile)
	p.measureLoad(ctx, target, profile)

	if p.opts.Cache != nil {
		if err := p.opts.Cache.Put(profile); err != nil {
			p.log.Warn("profile cache write failed", "host", target.Host, "error", err)
		}
	}

	p.log.Info("profiled target",
		"host", target.Host,
		"cores", profile.LogicalCores,
		"ram", types.FormatSize(profile.TotalRAM),
		"warnings", len(profile.Warnings))

	return profile, nil
}

func (p *Profiler) measureCPU(ctx context.Context, target types.Target, profile *types.CapabilityProfile) {
	p.measure(ctx, "cpu", profile, func() error {
		info, err := p.opts.Prober.CPU(ctx, target.Host, target.CredentialRef)
		if err != nil {
			return err
		}
		profile.LogicalCores = info.Logical
		profile.PhysicalCores = info.Physical
		profile.CPUSpeedMHz = info.SpeedMHz
		return nil
	})
}

func (p *Profiler) measureMemory(ctx context.Context, target types.Target, profile *types.CapabilityProfile) {
	p.measure(ctx, "memory", profile, func() error {
		info, err := p.opts.Prober.Memory(ctx, target.Host, target.CredentialRef)
		if err != nil {
			return err
		}
		profile.TotalRAM = info.Total
		profile.AvailableRAM = info.Available
		return nil
	})
}

func (p *Profiler) measureDisk(ctx context.Context, target types.Target, profile *types.CapabilityProfile) {
	p.measure(ctx, "disk", profile, func() error {
		info, err := p.opts.Prober.Disk(ctx, target.Host, target.CredentialRef)
		if err != nil {
			return err
		}
		profile.DiskReadLatency = info.ReadLatency
		profile.DiskWriteLatency = info.WriteLatency
		profile.DiskFreePercent = info.FreePercent
		return nil
	})
}

func (p *Profiler) measureLoad(ctx context.Context, target types.Target, profile *types.CapabilityProfile) {
	p.measure(ctx, "load", profile, func() error {
		load, err := p.opts.Prober.Load(ctx, target.Host, target.CredentialRef)
		if err != nil {
			return err
		}
		profile.SystemLoadPercent = load
		return nil
	})
}

// measure runs one sub-measurement under the retry policy and records any
// terminal failure as a profile warning.
func (p *Profiler) measure(ctx context.Context, name string, profile *types.CapabilityProfile, fn func() error) {
	if err := p.opts.Retry.Execute(ctx, fn); err != nil {
		profile.Warnings = append(profile.Warnings, fmt.Sprintf("%s probe failed: %v", name, err))
		p.log.Debug("probe failed", "host", profile.Host, "probe", name, "error", err)
	}
}
