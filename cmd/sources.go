package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sanction-watch/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List and test the configured sanctions sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known source and whether it is enabled",
	RunE: func(cmd *cobra.Command, _ []string) error {
		enabled := make(map[string]bool)
		for _, id := range cfg.EnabledSources() {
			enabled[id] = true
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tNAME\tPRIMARY\tENABLED\tURL")
		for _, k := range source.Kinds() {
			d, _ := source.Lookup(k)
			on := enabled[string(k)]
			if d.RequiresAPIKey && cfg.APIKey == "" {
				on = false
			}
			url := d.DefaultURL
			if sc, ok := cfg.Sources[string(k)]; ok && sc.URL != "" {
				url = sc.URL
			}
			fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", k, d.Name, d.Primary, on, url)
		}
		return tw.Flush()
	},
}

var sourcesTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Fetch every enabled source once and report record counts",
	Long:  "Downloads and parses every enabled source without touching the cache. Exits non-zero if any source fails.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initScreener(ctx, cfg, "check")
		if err != nil {
			return err
		}
		defer env.Close()

		results := source.Probe(ctx, env.Adapters)

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tRECORDS\tELAPSED\tERROR")
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.SourceID, r.Records, r.Elapsed.Round(time.Millisecond), r.Error)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if failed > 0 {
			return eris.Errorf("%d of %d sources failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd, sourcesTestCmd)
	rootCmd.AddCommand(sourcesCmd)
}
