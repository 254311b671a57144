package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "fleetaudit",
		Short: "Audit a fleet of hosts within their measured capacity",
		Long: `Fleetaudit profiles each target host, derives a safe concurrency budget
from the measurements, and runs the audit collector tasks within that
budget. Progress is checkpointed so interrupted runs resume without
repeating completed work.

Examples:
  fleetaudit -t hosts.txt              # Audit the fleet listed in hosts.txt
  fleetaudit -t hosts.txt --dry-run    # Show what would run, invoke nothing
  fleetaudit -t hosts.txt -o json      # Machine-readable report
  fleetaudit resume -t hosts.txt       # Continue an interrupted run
  fleetaudit cache stats               # Inspect the profile cache`,
		RunE: runAudit,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/fleetaudit/config.yaml)")
	rootCmd.PersistentFlags().StringP("targets", "t", "", "targets file (one host per line)")
	rootCmd.PersistentFlags().IntP("batch-size", "b", 0, "targets per batch (0=use config)")
	rootCmd.PersistentFlags().Int("pipeline-depth", 0, "batches in flight at once (0=use config)")
	rootCmd.PersistentFlags().Int("checkpoint-interval", 0, "batches between checkpoints (0=use config)")
	rootCmd.PersistentFlags().IntP("max-parallel", "p", 0, "cap on per-target parallel jobs (0=use config)")
	rootCmd.PersistentFlags().Bool("sequential", false, "run tasks one at a time regardless of budget")
	rootCmd.PersistentFlags().BoolP("dry-run", "d", false, "record what would run without invoking collectors")
	rootCmd.PersistentFlags().Bool("refresh-profiles", false, "ignore cached capability profiles")
	rootCmd.PersistentFlags().StringP("output", "o", "pretty", "output format: pretty, plain, json")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "shorthand for --output json")
	rootCmd.PersistentFlags().String("results", "", "streaming results file (default: XDG data dir)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	// Bind flags to viper
	_ = viper.BindPFlag("targets_file", rootCmd.PersistentFlags().Lookup("targets"))
	_ = viper.BindPFlag("run.batch_size", rootCmd.PersistentFlags().Lookup("batch-size"))
	_ = viper.BindPFlag("run.pipeline_depth", rootCmd.PersistentFlags().Lookup("pipeline-depth"))
	_ = viper.BindPFlag("run.checkpoint_interval", rootCmd.PersistentFlags().Lookup("checkpoint-interval"))
	_ = viper.BindPFlag("budget.max_parallel", rootCmd.PersistentFlags().Lookup("max-parallel"))
	_ = viper.BindPFlag("sequential", rootCmd.PersistentFlags().Lookup("sequential"))
	_ = viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
	_ = viper.BindPFlag("refresh_profiles", rootCmd.PersistentFlags().Lookup("refresh-profiles"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("stream.path", rootCmd.PersistentFlags().Lookup("results"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			viper.AddConfigPath(filepath.Join(xdgConfigHome, "fleetaudit"))
		}

		homeDir, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(homeDir, ".config", "fleetaudit"))
		}
	}

	viper.SetEnvPrefix("FLEETAUDIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
