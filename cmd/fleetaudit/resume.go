package main

import (
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue an interrupted fleet run",
	Long: `Resume picks up the checkpoint left by an interrupted run and continues
from the first unfinished batch. Completed batches are never re-executed;
their counters are restored from the checkpoint so the final report matches
an uninterrupted run.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return executeRun(true)
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
