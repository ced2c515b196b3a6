package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/keying-qc/internal/job"
	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs, project checkpoints and failed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := initEnv(ctx, "config", false)
		if err != nil {
			return err
		}
		defer env.Close()

		last, err := env.Runs.LastSuccess(ctx, job.Name)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		runs, err := env.Runs.ListRecent(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		projects, err := env.Store.ListProjects(ctx, false)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		cps := make([]model.Checkpoint, 0, len(projects))
		for _, p := range projects {
			cp, err := env.Checkpoints.Get(ctx, p.ID)
			if err != nil {
				return eris.Wrap(err, "status")
			}
			cps = append(cps, cp)
		}
		failed, err := env.Store.CountFailed(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		formatStatus(os.Stdout, last, runs, projects, cps, failed)
		return nil
	},
}

func formatStatus(out io.Writer, last *time.Time, runs []store.RunEntry, projects []model.Project, cps []model.Checkpoint, failed int) {
	lastStr := "never"
	if last != nil {
		lastStr = last.Format(time.RFC3339)
	}
	_, _ = fmt.Fprintf(out, "Last successful run: %s\n", lastStr)
	_, _ = fmt.Fprintf(out, "Failed documents:    %d\n\n", failed)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROJECT\tACTIVE\tLAST_DOC\tLAST_COMPLETED")
	_, _ = fmt.Fprintln(w, "-------\t------\t--------\t--------------")
	for i, p := range projects {
		cp := cps[i]
		completed := "-"
		if !cp.LastCompletedAt.IsZero() {
			completed = cp.LastCompletedAt.Format("2006-01-02 15:04:05")
		}
		lastDoc := cp.LastDocID
		if lastDoc == "" {
			lastDoc = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", p.ID, p.Active, lastDoc, completed)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintln(out)

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tDURATION\tPROCESSED\tFAILED\tERROR")
	_, _ = fmt.Fprintln(w, "---\t------\t-------\t--------\t---------\t------\t-----")
	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		errMsg := r.Error
		if len(errMsg) > 50 {
			errMsg = errMsg[:47] + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.DocumentsProcessed,
			r.DocumentsFailed,
			errMsg,
		)
	}
	_ = w.Flush()
}

func init() {
	statusCmd.Flags().Int("limit", 10, "number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}
