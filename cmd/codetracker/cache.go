package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cacheFormat string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the persisted snapshot cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show snapshot cache counters",
	Long: `Show how many parsed snapshots are persisted for this repository.

Examples:
  codetracker cache stats
  codetracker cache stats --format json`,
	Args: cobra.NoArgs,
	RunE: runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every persisted snapshot",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheStatsCmd.Flags().StringVar(&cacheFormat, "format", "text", "Output format (json, yaml, text)")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	format, err := ParseOutputFormat(cacheFormat)
	if err != nil {
		return err
	}

	ctx, stop := commandContext()
	defer stop()

	t, err := openTracker(ctx)
	if err != nil {
		return err
	}
	stats := t.Stats()
	if err := t.Close(ctx); err != nil {
		return err
	}
	return writeOutput(os.Stdout, stats, format)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext()
	defer stop()

	t, err := openTracker(ctx)
	if err != nil {
		return err
	}
	n := t.Stats().Loaded
	if err := t.ClearCache(ctx); err != nil {
		return err
	}
	if err := t.Close(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Cleared %d cached snapshots\n", n)
	return nil
}
