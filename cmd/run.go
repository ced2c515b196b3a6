package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/keying-qc/internal/job"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass",
	Long:  "Reconciles documents completed since each project's checkpoint and persists mistakes and keying effort.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "run", true)
		if err != nil {
			return err
		}
		defer env.Close()

		runner := env.Runner(nil)

		projectID, _ := cmd.Flags().GetString("project")
		if docID, _ := cmd.Flags().GetString("doc"); docID != "" {
			if projectID == "" {
				return eris.New("--doc requires --project")
			}
			return runDocument(cmd, env, projectID, docID)
		}
		if reset, _ := cmd.Flags().GetBool("reset-checkpoint"); reset {
			if projectID == "" {
				return eris.New("--reset-checkpoint requires --project")
			}
			if err := env.Checkpoints.Reset(ctx, projectID); err != nil {
				return err
			}
		}

		if projectID != "" {
			p, err := env.Store.GetProject(ctx, projectID)
			if err != nil {
				return eris.Wrapf(err, "run: project %s", projectID)
			}
			ps := runner.RunProject(ctx, *p)
			formatSummary(os.Stdout, []job.ProjectSummary{ps})
			return ps.Err
		}

		sum, err := runner.Run(ctx)
		if sum != nil {
			formatSummary(os.Stdout, sum.Projects)
		}
		return err
	},
}

// runDocument reprocesses a single document with the project's active
// configuration and writes its results immediately.
func runDocument(cmd *cobra.Command, env *appEnv, projectID, docID string) error {
	ctx := cmd.Context()

	p, err := env.Store.GetProject(ctx, projectID)
	if err != nil {
		return eris.Wrapf(err, "run: project %s", projectID)
	}
	doc, err := env.Source.Get(ctx, projectID, docID)
	if err != nil {
		return eris.Wrapf(err, "run: document %s", docID)
	}

	w, err := job.NewProcessor(env.Patterns, env.Configs, env.Store).ReconcileAndPersist(ctx, doc, *p)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d mistake rows, %d effort rows written\n", docID, w.Mistakes, w.Effort)
	return nil
}

func formatSummary(out io.Writer, projects []job.ProjectSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROJECT\tPROCESSED\tFAILED\tRETRIED\tMISTAKES\tEFFORT\tERROR")
	_, _ = fmt.Fprintln(w, "-------\t---------\t------\t-------\t--------\t------\t-----")

	for _, p := range projects {
		errMsg := ""
		if p.Err != nil {
			errMsg = p.Err.Error()
			if len(errMsg) > 60 {
				errMsg = errMsg[:57] + "..."
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			p.ProjectID,
			p.Processed,
			p.Failed,
			p.Retried,
			p.Written.Mistakes,
			p.Written.Effort,
			errMsg,
		)
	}
	_ = w.Flush()
}

func init() {
	runCmd.Flags().String("project", "", "process a single project")
	runCmd.Flags().String("doc", "", "reprocess a single document (requires --project)")
	runCmd.Flags().Bool("reset-checkpoint", false, "reprocess the project from the beginning")
	rootCmd.AddCommand(runCmd)
}
