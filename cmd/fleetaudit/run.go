package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/fleetaudit/pkg/audit/batch"
	"github.com/jamesainslie/fleetaudit/pkg/audit/budget"
	"github.com/jamesainslie/fleetaudit/pkg/audit/config"
	"github.com/jamesainslie/fleetaudit/pkg/audit/engine"
	"github.com/jamesainslie/fleetaudit/pkg/audit/logging"
	"github.com/jamesainslie/fleetaudit/pkg/audit/monitor"
	"github.com/jamesainslie/fleetaudit/pkg/audit/output"
	"github.com/jamesainslie/fleetaudit/pkg/audit/profcache"
	"github.com/jamesainslie/fleetaudit/pkg/audit/profiler"
	"github.com/jamesainslie/fleetaudit/pkg/audit/retry"
	"github.com/jamesainslie/fleetaudit/pkg/audit/scheduler"
	"github.com/jamesainslie/fleetaudit/pkg/audit/stream"
	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// runAudit is the root command handler: a fresh fleet run.
func runAudit(_ *cobra.Command, _ []string) error {
	return executeRun(false)
}

// executeRun drives a full fleet audit. With resume set it continues from
// the existing checkpoint; otherwise any stale checkpoint is discarded.
func executeRun(resume bool) error {
	cfg, err := loadEffectiveConfig()
	if err != nil {
		printError("%v", err)
		return err
	}

	if err := setupLogging(cfg); err != nil {
		printError("initializing logging: %v", err)
		return err
	}
	defer func() { _ = logging.Close() }()

	if cfg.TargetsFile == "" {
		err := errors.New("no targets file specified (use --targets)")
		printError("%v", err)
		return err
	}
	targets, err := loadTargets(cfg.TargetsFile)
	if err != nil {
		printError("%v", err)
		return err
	}
	printVerbose("Loaded %d targets from %s", len(targets), cfg.TargetsFile)

	runID, err := prepareCheckpoint(cfg, resume)
	if err != nil {
		printError("%v", err)
		return err
	}

	if err := config.EnsureDataDir(); err != nil {
		printError("%v", err)
		return err
	}
	if err := config.EnsureStateDir(); err != nil {
		printError("%v", err)
		return err
	}

	cache, err := profcache.Open(cfg.Cache.Path,
		profcache.WithTTL(time.Duration(cfg.Cache.TTLHours)*time.Hour))
	if err != nil {
		printError("opening profile cache: %v", err)
		return err
	}
	defer func() { _ = cache.Close() }()

	delay, _ := cfg.Retry.Delay() // validated at load time
	retryPolicy := retry.Policy{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: delay,
	}

	prof := profiler.New(profiler.Options{
		Prober:  &profiler.LocalProber{},
		Cache:   cache,
		Retry:   retryPolicy,
		Refresh: viper.GetBool("refresh_profiles"),
	})

	mon := monitor.New(monitor.Options{})
	mon.Start()
	defer mon.Stop()

	flushInterval, _ := cfg.Stream.Interval() // validated at load time
	sink, err := stream.NewWriter(cfg.Stream.Path, stream.Options{
		BufferSize:    cfg.Stream.FlushCount,
		FlushInterval: flushInterval,
	})
	if err != nil {
		printError("opening results file: %v", err)
		return err
	}

	eng, err := engine.New(engine.Options{
		Profiler: prof,
		Tasks:    defaultTasks(),
		Limits:   budget.Limits{Ceiling: cfg.Budget.MaxParallel},
		Scheduler: scheduler.Options{
			Limiter:         mon,
			Retry:           retryPolicy,
			ForceSequential: viper.GetBool("sequential"),
			DryRun:          viper.GetBool("dry_run"),
		},
		Sink: sink,
	})
	if err != nil {
		printError("%v", err)
		return err
	}

	runner, err := batch.NewRunner(eng, batch.Options{
		BatchSize:          cfg.Run.BatchSize,
		PipelineDepth:      cfg.Run.PipelineDepth,
		CheckpointInterval: cfg.Run.CheckpointInterval,
		CheckpointPath:     cfg.Run.CheckpointPath,
		RunID:              runID,
	})
	if err != nil {
		printError("%v", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := runner.Run(ctx, targets)

	resultsPath, finErr := sink.Finalize()
	if finErr != nil {
		printError("finalizing results file: %v", finErr)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			printError("run interrupted; resume with: fleetaudit resume -t %s", cfg.TargetsFile)
		} else {
			printError("%v", runErr)
		}
		return runErr
	}

	printVerbose("Results streamed to %s (%d records)", resultsPath, sink.Stats().Records)

	return renderResult(result)
}

// loadEffectiveConfig loads file/env configuration and applies flag
// overrides from the global viper.
func loadEffectiveConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if path := viper.GetString("targets_file"); path != "" {
		cfg.TargetsFile = path
	}
	if v := viper.GetInt("run.batch_size"); v > 0 {
		cfg.Run.BatchSize = v
	}
	if v := viper.GetInt("run.pipeline_depth"); v > 0 {
		cfg.Run.PipelineDepth = v
	}
	if v := viper.GetInt("run.checkpoint_interval"); v > 0 {
		cfg.Run.CheckpointInterval = v
	}
	if v := viper.GetInt("budget.max_parallel"); v > 0 {
		cfg.Budget.MaxParallel = v
	}
	if path := viper.GetString("stream.path"); path != "" {
		cfg.Stream.Path = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging initializes the logging subsystem from the configuration.
func setupLogging(cfg *config.Config) error {
	level := cfg.Logging.Level
	consoleLevel := ""
	if getVerbose() {
		level = "debug"
		consoleLevel = "debug"
	}
	return logging.Init(logging.Config{
		Level:        level,
		Path:         cfg.Logging.Path,
		Components:   cfg.Logging.Components,
		ConsoleLevel: consoleLevel,
	})
}

// prepareCheckpoint resolves the run ID and checkpoint state. Fresh runs
// discard any stale checkpoint; resumed runs require one and keep its run
// ID so the continued run aggregates under the same identity.
func prepareCheckpoint(cfg *config.Config, resume bool) (string, error) {
	cp, err := batch.LoadCheckpoint(cfg.Run.CheckpointPath)

	if resume {
		if errors.Is(err, batch.ErrNoCheckpoint) {
			return "", fmt.Errorf("no checkpoint to resume at %s", cfg.Run.CheckpointPath)
		}
		if err != nil {
			return "", fmt.Errorf("reading checkpoint: %w", err)
		}
		printVerbose("Resuming run %s (last completed batch %d)", cp.RunID, cp.LastCompletedBatch)
		return cp.RunID, nil
	}

	if err == nil {
		printVerbose("Discarding stale checkpoint for run %s", cp.RunID)
		if rmErr := os.Remove(cfg.Run.CheckpointPath); rmErr != nil {
			return "", fmt.Errorf("removing stale checkpoint: %w", rmErr)
		}
	}
	return uuid.New().String(), nil
}

// renderResult formats the aggregated result for the terminal.
func renderResult(result *types.AggregatedResult) error {
	format := viper.GetString("output")
	if viper.GetBool("json") {
		format = "json"
	}

	formatter, err := output.Get(format)
	if err != nil {
		printError("%v", err)
		return err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, result); err != nil {
		printError("formatting output: %v", err)
		return err
	}
	fmt.Print(buf.String())

	if result.Summary.TargetsFailed > 0 {
		return fmt.Errorf("%d of %d targets failed", result.Summary.TargetsFailed, result.Summary.Targets)
	}
	return nil
}
