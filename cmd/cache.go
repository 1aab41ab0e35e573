package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cacheRefreshForce bool
	cacheJSON         bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the source cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cache entry of every source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initScreener(ctx, cfg, "cache")
		if err != nil {
			return err
		}
		defer env.Close()

		status := env.Screener.CacheStatus(ctx)
		if cacheJSON {
			return writeJSON(cmd.OutOrStdout(), status)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tSTATE\tRECORDS\tLAST REFRESHED\tEXPIRES")
		for _, s := range status {
			state, refreshed, expires := "missing", "-", "-"
			if s.Present {
				state = "fresh"
				if s.Stale {
					state = "stale"
				}
				refreshed = s.LastRefreshed.Format(time.RFC3339)
				expires = s.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.SourceID, state, s.Records, refreshed, expires)
		}
		return tw.Flush()
	},
}

var cacheRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch stale or missing sources into the cache",
	Long:  "Fetches every source whose cache entry is stale or missing. --force refetches fresh entries and retries suspended sources.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initScreener(ctx, cfg, "cache")
		if err != nil {
			return err
		}
		defer env.Close()

		results := env.Screener.Refresh(ctx, cacheRefreshForce)
		failed := 0
		for _, r := range results {
			if r.Error != "" {
				failed++
			}
		}
		zap.L().Info("cache refresh complete",
			zap.Int("sources", len(results)),
			zap.Int("failed", failed),
			zap.Bool("force", cacheRefreshForce),
		)
		return writeJSON(cmd.OutOrStdout(), results)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initScreener(ctx, cfg, "cache")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Screener.ClearCache(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
		return nil
	},
}

func init() {
	cacheRefreshCmd.Flags().BoolVar(&cacheRefreshForce, "force", false, "refetch sources even when their cache entry is fresh")
	cacheStatusCmd.Flags().BoolVar(&cacheJSON, "json", false, "print status as JSON")

	cacheCmd.AddCommand(cacheStatusCmd, cacheRefreshCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
