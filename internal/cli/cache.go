package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bucktownnz/release/internal/cache"
	"github.com/bucktownnz/release/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the stage cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached entry counts per stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cacheFileStore(cmd)
		if err != nil {
			return err
		}
		stats, err := store.Stats()
		if err != nil {
			return fmt.Errorf("read cache stats: %w", err)
		}
		if len(stats) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty.")
			return nil
		}
		stages := make([]string, 0, len(stats))
		for stage := range stats {
			stages = append(stages, stage)
		}
		sort.Strings(stages)
		total := 0
		for _, stage := range stages {
			fmt.Fprintf(cmd.OutOrStdout(), "%-14s %d\n", stage, stats[stage])
			total += stats[stage]
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-14s %d\n", "total", total)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached stage entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cacheFileStore(cmd)
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared cache at %s\n", store.Dir())
		return nil
	},
}

func cacheFileStore(cmd *cobra.Command) (*cache.FileStore, error) {
	dir, _ := cmd.Flags().GetString("cache-dir")
	if dir == "" {
		dir = config.DefaultCacheDir
	}
	store, err := cache.NewFileStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open file cache: %w", err)
	}
	return store, nil
}

func init() {
	cacheCmd.PersistentFlags().String("cache-dir", "", "stage cache directory")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
