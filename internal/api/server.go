// Package api serves quality statistics, configuration history and mistake
// workflow updates over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/store"
)

// Stats computes quality statistics.
type Stats interface {
	GetQualityStats(ctx context.Context, projectID string, from, to time.Time, level model.ReportLevel) ([]model.StatRow, error)
}

// ConfigHistory lists configuration versions.
type ConfigHistory interface {
	FieldHistory(ctx context.Context, projectID string) ([]model.FieldConfiguration, error)
	ThresholdHistory(ctx context.Context, projectID string) ([]model.ProjectThreshold, error)
}

// Mistakes updates mistake workflow state.
type Mistakes interface {
	SetMistakeStatus(ctx context.Context, projectID, docID string, expectedRevision, index int, status model.MistakeStatus, errorType *string) (int, error)
}

// Runs lists recent job runs.
type Runs interface {
	ListRecent(ctx context.Context, limit int) ([]store.RunEntry, error)
}

// Pinger checks backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	Stats          Stats
	Configs        ConfigHistory
	Mistakes       Mistakes
	Runs           Runs
	Health         Pinger
	Gatherer       prometheus.Gatherer // nil disables /metrics
	APIToken       string              // empty disables authentication
	AllowedOrigins []string
}

// Server holds the handler dependencies.
type Server struct {
	opts Options
	log  *zap.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	s := &Server{opts: opts, log: zap.L().With(zap.String("component", "api"))}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/runs", s.listRuns)
		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Use(projectID)
			r.Get("/quality-stats", s.qualityStats)
			r.Get("/field-configurations", s.fieldHistory)
			r.Get("/thresholds", s.thresholdHistory)
			r.Patch("/documents/{docID}/mistakes/{index}", s.setMistakeStatus)
		})
	})
	return r
}

// ListenAndServe serves handler on addr until ctx is done, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		zap.L().Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	zap.L().Info("shutting down server")
	return srv.Shutdown(shutdownCtx)
}
