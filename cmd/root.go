package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sanction-watch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sanction-watch",
	Short: "Screen names against sanctions lists",
	Long:  "Checks vessel, person and company names against OpenSanctions and the OFAC, UK, EU and UN lists, with a local cache that keeps screening available when a source is down.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
