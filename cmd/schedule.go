package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/keying-qc/internal/api"
	"github.com/sells-group/keying-qc/internal/job"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run reconciliation periodically",
	Long:  "Runs reconciliation every job.interval, never overlapping; a run exceeding job.timeout is abandoned. With --serve, also hosts the HTTP API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "schedule", true)
		if err != nil {
			return err
		}
		defer env.Close()

		runner := env.Runner(newMetrics())
		trigger, err := job.NewTrigger(func(ctx context.Context) error {
			_, err := runner.Run(ctx)
			return err
		}, cfg.Job.Interval, cfg.Job.Timeout)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			trigger.Start(gctx)
			return nil
		})

		if withAPI, _ := cmd.Flags().GetBool("serve"); withAPI {
			handler := newRouter(env, prometheus.DefaultGatherer)
			g.Go(func() error {
				return api.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.Server.Port), handler)
			})
		}

		err = g.Wait()
		zap.L().Info("scheduler exited")
		return err
	},
}

func init() {
	scheduleCmd.Flags().Bool("serve", false, "also serve the HTTP API")
	rootCmd.AddCommand(scheduleCmd)
}
