package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/fleetaudit/pkg/audit/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage fleetaudit configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Displays the configuration after merging defaults, the config file, environment variables, and flags.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadEffectiveConfig()
		if err != nil {
			return err
		}

		configDir, err := config.ConfigDir()
		if err != nil {
			return err
		}

		fmt.Printf("Config directory:     %s\n", configDir)
		fmt.Printf("Targets file:         %s\n", orUnset(cfg.TargetsFile))
		fmt.Println()
		fmt.Printf("Batch size:           %d\n", cfg.Run.BatchSize)
		fmt.Printf("Pipeline depth:       %d\n", cfg.Run.PipelineDepth)
		fmt.Printf("Checkpoint interval:  %d\n", cfg.Run.CheckpointInterval)
		fmt.Printf("Checkpoint path:      %s\n", cfg.Run.CheckpointPath)
		fmt.Println()
		fmt.Printf("Max parallel jobs:    %d\n", cfg.Budget.MaxParallel)
		fmt.Printf("Profile cache:        %s (TTL %dh)\n", cfg.Cache.Path, cfg.Cache.TTLHours)
		fmt.Printf("Retries:              %d (initial delay %s)\n", cfg.Retry.MaxRetries, cfg.Retry.InitialDelay)
		fmt.Printf("Results file:         %s\n", cfg.Stream.Path)
		fmt.Println()
		fmt.Printf("Log level:            %s\n", cfg.Logging.Level)
		fmt.Printf("Log path:             %s\n", orDefault(cfg.Logging.Path, config.DefaultLogPath()))
		return nil
	},
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
