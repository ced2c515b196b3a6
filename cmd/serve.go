package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/keying-qc/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quality statistics API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnv(ctx, "serve", false)
		if err != nil {
			return err
		}
		defer env.Close()

		handler := newRouter(env, prometheus.DefaultGatherer)
		if err := api.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port), handler); err != nil {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(env *appEnv, gatherer prometheus.Gatherer) http.Handler {
	return api.NewRouter(api.Options{
		Stats:          env.Aggregator(),
		Configs:        env.Configs,
		Mistakes:       env.Store,
		Runs:           env.Runs,
		Health:         env.Store,
		Gatherer:       gatherer,
		APIToken:       cfg.Server.APIToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
