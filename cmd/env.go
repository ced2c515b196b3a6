package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keying-qc/internal/aggregate"
	"github.com/sells-group/keying-qc/internal/job"
	"github.com/sells-group/keying-qc/internal/pattern"
	"github.com/sells-group/keying-qc/internal/resilience"
	"github.com/sells-group/keying-qc/internal/source"
	"github.com/sells-group/keying-qc/internal/store"
)

// appEnv holds the initialized dependencies shared by commands.
type appEnv struct {
	Store       *store.PostgresStore
	Configs     *store.ConfigStore
	Checkpoints *store.CheckpointStore
	Runs        *store.RunLog
	Patterns    *pattern.Resolver
	Source      source.Source // nil unless requested
}

func (e *appEnv) Close() {
	if e.Source != nil {
		if err := e.Source.Close(context.Background()); err != nil {
			zap.L().Warn("close source", zap.Error(err))
		}
	}
	_ = e.Store.Close()
}

func (e *appEnv) Aggregator() *aggregate.Aggregator {
	return aggregate.New(e.Store, e.Configs, e.Patterns)
}

func (e *appEnv) Runner(metrics *job.Metrics) *job.Runner {
	return job.NewRunner(e.Source, e.Store, e.Configs, e.Checkpoints, e.Runs, e.Patterns, metrics, job.Options{
		BatchSize:          cfg.Job.BatchSize,
		ProjectConcurrency: cfg.Job.ProjectConcurrency,
		MaxRetries:         cfg.Job.MaxRetries,
		RetryBase:          cfg.Job.RetryBase,
		RetryMax:           cfg.Job.RetryMax,
		RetryLimit:         cfg.Job.RetryLimit,
	})
}

func retryConfig(name string) resilience.RetryConfig {
	rc := resilience.NewRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff)
	rc.OnRetry = resilience.RetryLogger("cmd", name)
	return rc
}

// initEnv validates the config for mode and connects to Postgres, plus the
// capture store when withSource is set.
func initEnv(ctx context.Context, mode string, withSource bool) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := resilience.DoVal(ctx, retryConfig("connect postgres"), func(ctx context.Context) (*store.PostgresStore, error) {
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	env := &appEnv{
		Store:       st,
		Configs:     store.NewConfigStore(st.Pool()),
		Checkpoints: store.NewCheckpointStore(st.Pool()),
		Runs:        store.NewRunLog(st.Pool()),
		Patterns:    pattern.NewResolver(pattern.NewPostgresSource(st.Pool()), cfg.Pattern.CacheTTL),
	}

	if withSource {
		src, err := resilience.DoVal(ctx, retryConfig("connect mongo"), func(ctx context.Context) (*source.MongoSource, error) {
			return source.NewMongo(ctx, source.MongoConfig{
				URI:            cfg.Source.URI,
				Database:       cfg.Source.Database,
				BatchSize:      cfg.Source.BatchSize,
				ConnectTimeout: cfg.Source.ConnectTimeout,
				MaxPoolSize:    cfg.Source.MaxPoolSize,
			})
		})
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "init source")
		}
		env.Source = src
	}

	return env, nil
}

// newMetrics registers job metrics with the default registry.
func newMetrics() *job.Metrics {
	return job.NewMetrics(prometheus.DefaultRegisterer)
}
