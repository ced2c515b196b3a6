package main

import (
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/keying-qc/internal/aggregate"
	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/report"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print quality statistics for a project",
	Long:  "Computes version-aware quality statistics for the calendar days --from..--to (GMT+7) and prints them as a table, JSON or an XLSX workbook.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		projectID, _ := cmd.Flags().GetString("project")
		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		levelStr, _ := cmd.Flags().GetString("level")
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")

		from, to, err := statsRange(fromStr, toStr, time.Now())
		if err != nil {
			return err
		}
		level, err := model.ParseReportLevel(levelStr)
		if err != nil {
			return err
		}
		if format == report.FormatXLSX && outPath == "" {
			return eris.New("--format xlsx requires --out")
		}

		env, err := initEnv(ctx, "config", false)
		if err != nil {
			return err
		}
		defer env.Close()

		rows, err := env.Aggregator().GetQualityStats(ctx, projectID, from, to, level)
		if err != nil {
			return eris.Wrap(err, "stats")
		}

		var out io.Writer = os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return eris.Wrap(err, "stats: create output")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		return report.Write(out, format, rows)
	},
}

// statsRange parses the day flags. An empty --to means --from; an empty
// --from means today in GMT+7.
func statsRange(fromStr, toStr string, now time.Time) (time.Time, time.Time, error) {
	if fromStr == "" {
		fromStr = now.In(aggregate.Zone).Format(aggregate.DateLayout)
	}
	if toStr == "" {
		toStr = fromStr
	}
	from, err := aggregate.ParseDate(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := aggregate.ParseDate(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, eris.Errorf("--to %s is before --from %s", toStr, fromStr)
	}
	return from, to, nil
}

func init() {
	statsCmd.Flags().String("project", "", "project id (required)")
	statsCmd.Flags().String("from", "", "first day, YYYY-MM-DD (default today)")
	statsCmd.Flags().String("to", "", "last day, YYYY-MM-DD (default --from)")
	statsCmd.Flags().String("level", "", "report level: document, field, record, line_item, character (default all)")
	statsCmd.Flags().String("format", report.FormatTable, "output format: table, json, xlsx")
	statsCmd.Flags().String("out", "", "write to file instead of stdout")
	_ = statsCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(statsCmd)
}
