package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sanction-watch/internal/fetcher"
	"github.com/sells-group/sanction-watch/internal/model"
	"github.com/sells-group/sanction-watch/internal/screen"
)

var (
	bulkInput      string
	bulkNameColumn string
	bulkTypeColumn string
	bulkSheet      string
	bulkLimit      int
	bulkFormat     string
)

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Screen every row of a CSV or XLSX file",
	Long: `Reads names (and optionally entity types) from a CSV or XLSX file and screens
them as one batch. Results keep the input order; rows that cannot be screened
come back inconclusive with a reason.

Examples:
  sanction-watch bulk --input fleet.csv --name-column "Vessel Name" --type-column Type
  sanction-watch bulk --input counterparties.xlsx --sheet Q3 --format csv > results.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		queries, err := readQueries(ctx, bulkInput, bulkNameColumn, bulkTypeColumn, bulkSheet)
		if err != nil {
			return err
		}
		if bulkLimit > 0 && bulkLimit < len(queries) {
			queries = queries[:bulkLimit]
		}
		zap.L().Info("bulk input parsed", zap.String("input", bulkInput), zap.Int("queries", len(queries)))

		env, err := initScreener(ctx, cfg, "check")
		if err != nil {
			return err
		}
		defer env.Close()

		batchID := uuid.NewString()
		results := env.Screener.CheckBulk(screen.WithBatchID(ctx, batchID), queries)

		switch bulkFormat {
		case "csv":
			return writeResultsCSV(cmd.OutOrStdout(), results)
		default:
			return writeJSON(cmd.OutOrStdout(), bulkResponse{BatchID: batchID, Results: results})
		}
	},
}

// bulkResponse is the JSON shape of a batch, shared with the HTTP API.
type bulkResponse struct {
	BatchID string                   `json:"batch_id"`
	Results []model.AggregatedResult `json:"results"`
}

// readQueries loads one query per data row. The first row is the header.
// A row with an unrecognized type is kept so the batch still yields one
// result per row.
func readQueries(ctx context.Context, path, nameCol, typeCol, sheet string) ([]model.Query, error) {
	if path == "" {
		return nil, eris.New("bulk: --input is required")
	}

	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		r, err := fetcher.ReadXLSXFile(path, fetcher.XLSXOptions{SheetName: sheet})
		if err != nil {
			return nil, eris.Wrap(err, "bulk: read input")
		}
		rows = r
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "bulk: open input")
		}
		defer f.Close()
		r, err := fetcher.CollectCSV(ctx, f, fetcher.CSVOptions{TrimSpace: true, LazyQuotes: true})
		if err != nil {
			return nil, eris.Wrap(err, "bulk: read input")
		}
		rows = r
	}

	return queriesFromRows(rows, nameCol, typeCol)
}

func queriesFromRows(rows [][]string, nameCol, typeCol string) ([]model.Query, error) {
	if len(rows) == 0 {
		return nil, eris.New("bulk: input is empty")
	}
	idx := fetcher.HeaderIndex(rows[0])
	nameAt := fetcher.Column(idx, nameCol)
	if nameAt < 0 {
		return nil, eris.Errorf("bulk: name column %q not found in header %v", nameCol, rows[0])
	}
	typeAt := -1
	if typeCol != "" {
		typeAt = fetcher.Column(idx, typeCol)
	}

	queries := make([]model.Query, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		name := fetcher.Cell(row, nameAt)
		rawType := fetcher.Cell(row, typeAt)
		t, err := model.ParseDeclaredType(rawType)
		if err != nil {
			t = model.EntityType(rawType)
		}
		queries = append(queries, model.Query{Name: name, DeclaredType: t})
	}
	return queries, nil
}

// writeResultsCSV writes one summary line per result: the best match only.
func writeResultsCSV(w io.Writer, results []model.AggregatedResult) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"row", "name", "type", "status", "matches", "top_match", "top_score", "top_source", "failed_sources", "reason"})
	for i, r := range results {
		var topName, topScore, topSource string
		if len(r.Matches) > 0 {
			m := r.Matches[0]
			topName = m.MatchedName
			topScore = strconv.FormatFloat(m.Score, 'f', 4, 64)
			topSource = m.SourceID
		}
		_ = cw.Write([]string{
			strconv.Itoa(i + 1),
			r.Query.Name,
			string(r.Query.DeclaredType),
			string(r.OverallStatus),
			strconv.Itoa(len(r.Matches)),
			topName,
			topScore,
			topSource,
			strings.Join(r.FailedSources, ";"),
			r.Reason,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "bulk: write csv")
	}
	return nil
}

func init() {
	bulkCmd.Flags().StringVarP(&bulkInput, "input", "i", "", "CSV or XLSX file to screen")
	bulkCmd.Flags().StringVar(&bulkNameColumn, "name-column", "name", "header of the column holding names")
	bulkCmd.Flags().StringVar(&bulkTypeColumn, "type-column", "type", "header of the column holding entity types (optional)")
	bulkCmd.Flags().StringVar(&bulkSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	bulkCmd.Flags().IntVar(&bulkLimit, "limit", 0, "screen at most this many rows (0 = all)")
	bulkCmd.Flags().StringVar(&bulkFormat, "format", "json", "output format: json or csv")
	rootCmd.AddCommand(bulkCmd)
}
