package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/fleetaudit/pkg/audit/batch"
)

// RunConfig configures batching and checkpointing for a fleet run.
type RunConfig struct {
	BatchSize          int    `mapstructure:"batch_size"`
	PipelineDepth      int    `mapstructure:"pipeline_depth"`
	CheckpointInterval int    `mapstructure:"checkpoint_interval"`
	CheckpointPath     string `mapstructure:"checkpoint_path"`
}

// BudgetConfig configures budget computation.
type BudgetConfig struct {
	// MaxParallel caps the parallel job count regardless of how capable
	// a target looks.
	MaxParallel int `mapstructure:"max_parallel"`
}

// CacheConfig configures the capability profile cache.
type CacheConfig struct {
	Path     string `mapstructure:"path"`
	TTLHours int    `mapstructure:"ttl_hours"`
}

// RetryConfig configures the retry policy for transient failures.
type RetryConfig struct {
	MaxRetries   int    `mapstructure:"max_retries"`
	InitialDelay string `mapstructure:"initial_delay"`
}

// Delay parses the configured initial retry delay.
func (c RetryConfig) Delay() (time.Duration, error) {
	return time.ParseDuration(c.InitialDelay)
}

// StreamConfig configures the streaming result writer.
type StreamConfig struct {
	Path          string `mapstructure:"path"`
	FlushCount    int    `mapstructure:"flush_count"`
	FlushInterval string `mapstructure:"flush_interval"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Components map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	TargetsFile string        `mapstructure:"targets_file"`
	Run         RunConfig     `mapstructure:"run"`
	Budget      BudgetConfig  `mapstructure:"budget"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Retry       RetryConfig   `mapstructure:"retry"`
	Stream      StreamConfig  `mapstructure:"stream"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/fleetaudit/config.yaml
//   - $HOME/.config/fleetaudit/config.yaml
//
// Environment variables are prefixed with FLEETAUDIT_
// (e.g., FLEETAUDIT_RUN_BATCH_SIZE).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "fleetaudit"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "fleetaudit"))

	v.SetEnvPrefix("FLEETAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyPathDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers the default value for every configuration key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("targets_file", "")

	v.SetDefault("run.batch_size", DefaultBatchSize)
	v.SetDefault("run.pipeline_depth", DefaultPipelineDepth)
	v.SetDefault("run.checkpoint_interval", DefaultCheckpointInterval)
	v.SetDefault("run.checkpoint_path", "") // Empty means use default XDG path

	v.SetDefault("budget.max_parallel", DefaultMaxParallel)

	v.SetDefault("cache.path", "") // Empty means use default XDG path
	v.SetDefault("cache.ttl_hours", DefaultProfileTTLHours)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", "2s")

	v.SetDefault("stream.path", "") // Empty means use default XDG path
	v.SetDefault("stream.flush_count", 50)
	v.SetDefault("stream.flush_interval", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.components", map[string]string{
		"batch":     "info",
		"engine":    "info",
		"profiler":  "info",
		"scheduler": "info",
	})
}

// applyPathDefaults fills empty path fields with their XDG defaults.
func applyPathDefaults(cfg *Config) {
	if cfg.Run.CheckpointPath == "" {
		cfg.Run.CheckpointPath = DefaultCheckpointPath()
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath()
	}
	if cfg.Stream.Path == "" {
		cfg.Stream.Path = DefaultResultsPath()
	}
}

// Validate checks the configuration against the allowed ranges.
func (c *Config) Validate() error {
	if c.Run.BatchSize < batch.MinBatchSize || c.Run.BatchSize > batch.MaxBatchSize {
		return fmt.Errorf("run.batch_size %d out of range [%d,%d]", c.Run.BatchSize, batch.MinBatchSize, batch.MaxBatchSize)
	}
	if c.Run.PipelineDepth < batch.MinPipelineDepth || c.Run.PipelineDepth > batch.MaxPipelineDepth {
		return fmt.Errorf("run.pipeline_depth %d out of range [%d,%d]", c.Run.PipelineDepth, batch.MinPipelineDepth, batch.MaxPipelineDepth)
	}
	if c.Run.CheckpointInterval < batch.MinCheckpointInterval || c.Run.CheckpointInterval > batch.MaxCheckpointInterval {
		return fmt.Errorf("run.checkpoint_interval %d out of range [%d,%d]", c.Run.CheckpointInterval, batch.MinCheckpointInterval, batch.MaxCheckpointInterval)
	}
	if c.Budget.MaxParallel < 1 {
		return fmt.Errorf("budget.max_parallel must be at least 1, got %d", c.Budget.MaxParallel)
	}
	if c.Cache.TTLHours < 1 {
		return fmt.Errorf("cache.ttl_hours must be at least 1, got %d", c.Cache.TTLHours)
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1, got %d", c.Retry.MaxRetries)
	}
	if _, err := time.ParseDuration(c.Retry.InitialDelay); err != nil {
		return fmt.Errorf("retry.initial_delay: %w", err)
	}
	if _, err := time.ParseDuration(c.Stream.FlushInterval); err != nil {
		return fmt.Errorf("stream.flush_interval: %w", err)
	}
	return nil
}

// Interval parses the configured stream flush interval.
func (c StreamConfig) Interval() (time.Duration, error) {
	return time.ParseDuration(c.FlushInterval)
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "fleetaudit"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "fleetaudit"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/fleetaudit/ for the profile cache and
// results files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "fleetaudit")
}

// StateDir returns $XDG_STATE_HOME/fleetaudit/ for log and checkpoint files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "fleetaudit")
}

// DefaultCachePath returns the default profile cache database path.
func DefaultCachePath() string {
	return filepath.Join(DataDir(), "profiles.db")
}

// DefaultResultsPath returns the default streaming results file path.
func DefaultResultsPath() string {
	return filepath.Join(DataDir(), "results.jsonl")
}

// DefaultCheckpointPath returns the default checkpoint file path.
func DefaultCheckpointPath() string {
	return filepath.Join(StateDir(), "checkpoint.json")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "fleetaudit.log")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}
