package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/fleetaudit/pkg/audit/config"
	"github.com/jamesainslie/fleetaudit/pkg/audit/profcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the capability profile cache",
	Long: `Commands for managing the cached capability profiles.

Profiles are cached so repeat runs against the same fleet skip the
measurement phase. Entries expire after the configured TTL (24 hours by
default) and can be cleared manually here.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show profile cache statistics",
	RunE: func(_ *cobra.Command, _ []string) error {
		cachePath := cachePathFromConfig()

		if _, err := os.Stat(cachePath); os.IsNotExist(err) {
			fmt.Println("Cache: empty (no cache database)")
			fmt.Printf("Cache location: %s\n", cachePath)
			return nil
		}

		cache, err := profcache.Open(cachePath)
		if err != nil {
			return fmt.Errorf("opening profile cache: %w", err)
		}
		defer func() { _ = cache.Close() }()

		count, err := cache.Count()
		if err != nil {
			return fmt.Errorf("counting profiles: %w", err)
		}

		fmt.Printf("Cache location: %s\n", cachePath)
		fmt.Printf("Cached profiles: %d\n", count)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached profiles",
	Long:  `Removes every cached capability profile. The next run will re-measure all targets.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cachePath := cachePathFromConfig()

		if _, err := os.Stat(cachePath); os.IsNotExist(err) {
			fmt.Println("Cache is already empty.")
			return nil
		}

		cache, err := profcache.Open(cachePath)
		if err != nil {
			return fmt.Errorf("opening profile cache: %w", err)
		}
		defer func() { _ = cache.Close() }()

		if err := cache.Clear(); err != nil {
			return fmt.Errorf("clearing profile cache: %w", err)
		}

		fmt.Println("Cache cleared.")
		return nil
	},
}

// cachePathFromConfig resolves the cache path, preferring configuration and
// falling back to the XDG default.
func cachePathFromConfig() string {
	if cfg, err := config.Load(); err == nil && cfg.Cache.Path != "" {
		return cfg.Cache.Path
	}
	return config.DefaultCachePath()
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
