package main

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sanction-watch/internal/model"
	"github.com/sells-group/sanction-watch/internal/screen"
)

var checkType string

var checkCmd = &cobra.Command{
	Use:   "check NAME",
	Short: "Screen a single name",
	Long: `Screens one name against every configured source and prints the result as JSON.

Examples:
  sanction-watch check "M/V OCEAN STAR" --type vessel
  sanction-watch check "ACME TRADING LLC"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		q, err := model.NewQuery(args[0], checkType)
		if err != nil {
			return eris.Wrap(err, "check: parse --type")
		}

		env, err := initScreener(ctx, cfg, "check")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Screener.CheckSingle(ctx, q)
		if err != nil && !errors.Is(err, screen.ErrNoSourceAvailable) {
			return err
		}
		if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
			return werr
		}

		zap.L().Info("check complete",
			zap.String("name", q.Name),
			zap.String("status", string(res.OverallStatus)),
			zap.Int("matches", len(res.Matches)),
			zap.Strings("failed_sources", res.FailedSources),
		)
		return err
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkType, "type", "auto", "entity type: vessel, person, company or auto")
	rootCmd.AddCommand(checkCmd)
}
