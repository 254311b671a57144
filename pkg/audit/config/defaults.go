// Package config provides configuration management for the fleetaudit
// orchestrator.
package config

// Default configuration values for fleetaudit.
const (
	// DefaultBatchSize is the number of targets processed per batch.
	DefaultBatchSize = 10

	// DefaultPipelineDepth is the number of batches allowed in flight.
	DefaultPipelineDepth = 2

	// DefaultCheckpointInterval is how many completed batches between
	// checkpoint writes.
	DefaultCheckpointInterval = 1

	// DefaultMaxParallel is the ceiling on per-target parallel jobs.
	DefaultMaxParallel = 8

	// DefaultProfileTTLHours is how long cached capability profiles
	// stay valid.
	DefaultProfileTTLHours = 24

	// DefaultConfigDir is the default configuration directory path.
	DefaultConfigDir = "~/.config/fleetaudit"
)
