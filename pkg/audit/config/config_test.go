package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultBatchSize, cfg.Run.BatchSize)
	assert.Equal(t, DefaultPipelineDepth, cfg.Run.PipelineDepth)
	assert.Equal(t, DefaultCheckpointInterval, cfg.Run.CheckpointInterval)
	assert.Equal(t, DefaultMaxParallel, cfg.Budget.MaxParallel)
	assert.Equal(t, DefaultProfileTTLHours, cfg.Cache.TTLHours)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)

	// Empty paths are filled with XDG defaults.
	assert.NotEmpty(t, cfg.Run.CheckpointPath)
	assert.NotEmpty(t, cfg.Cache.Path)
	assert.NotEmpty(t, cfg.Stream.Path)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "fleetaudit")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	content := []byte(`
run:
  batch_size: 25
  pipeline_depth: 3
budget:
  max_parallel: 4
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), content, 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Run.BatchSize)
	assert.Equal(t, 3, cfg.Run.PipelineDepth)
	assert.Equal(t, 4, cfg.Budget.MaxParallel)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultCheckpointInterval, cfg.Run.CheckpointInterval)
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "fleetaudit")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"),
		[]byte("run:\n  batch_size: 500\n"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Run: RunConfig{
				BatchSize:          10,
				PipelineDepth:      2,
				CheckpointInterval: 1,
			},
			Budget: BudgetConfig{MaxParallel: 8},
			Cache:  CacheConfig{TTLHours: 24},
			Retry:  RetryConfig{MaxRetries: 3, InitialDelay: "2s"},
			Stream: StreamConfig{FlushInterval: "5s"},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"batch size zero", func(c *Config) { c.Run.BatchSize = 0 }},
		{"batch size too large", func(c *Config) { c.Run.BatchSize = 101 }},
		{"pipeline depth too large", func(c *Config) { c.Run.PipelineDepth = 6 }},
		{"checkpoint interval zero", func(c *Config) { c.Run.CheckpointInterval = 0 }},
		{"max parallel zero", func(c *Config) { c.Budget.MaxParallel = 0 }},
		{"ttl zero", func(c *Config) { c.Cache.TTLHours = 0 }},
		{"retries zero", func(c *Config) { c.Retry.MaxRetries = 0 }},
		{"bad delay", func(c *Config) { c.Retry.InitialDelay = "soon" }},
		{"bad flush interval", func(c *Config) { c.Stream.FlushInterval = "often" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mod(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRetryDelay(t *testing.T) {
	c := RetryConfig{InitialDelay: "2s"}
	d, err := c.Delay()
	require.NoError(t, err)
	assert.Equal(t, "2s", d.String())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expanded, err := ExpandPath("~/audits")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "audits"), expanded)

	unchanged, err := ExpandPath("/var/lib/fleetaudit")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/fleetaudit", unchanged)
}
