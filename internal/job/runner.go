package job

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/pattern"
	"github.com/sells-group/keying-qc/internal/resilience"
	"github.com/sells-group/keying-qc/internal/source"
	"github.com/sells-group/keying-qc/internal/store"
)

// Name identifies the reconciliation job in the run log.
const Name = "reconcile"

// Store is the persistence the runner needs.
type Store interface {
	store.ResultWriter
	ListProjects(ctx context.Context, activeOnly bool) ([]model.Project, error)
	EnsureProjectTables(ctx context.Context, projectID string) error
	EnqueueFailed(ctx context.Context, entry resilience.DLQEntry) error
	DueFailed(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementFailedRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveFailed(ctx context.Context, id string) error
}

// Checkpoints tracks per-project progress.
type Checkpoints interface {
	Get(ctx context.Context, projectID string) (model.Checkpoint, error)
	Advance(ctx context.Context, cp model.Checkpoint) error
}

// RunRecorder records job runs.
type RunRecorder interface {
	Start(ctx context.Context, job string) (int64, error)
	Complete(ctx context.Context, runID int64, result *store.RunResult) error
	Fail(ctx context.Context, runID int64, errMsg string) error
}

// Options tune a run.
type Options struct {
	BatchSize          int
	ProjectConcurrency int
	MaxRetries         int
	RetryBase          time.Duration
	RetryMax           time.Duration
	RetryLimit         int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = store.DefaultBatchSize
	}
	if o.ProjectConcurrency <= 0 {
		o.ProjectConcurrency = 4
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 5 * time.Minute
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 6 * time.Hour
	}
	if o.RetryLimit <= 0 {
		o.RetryLimit = 100
	}
	return o
}

// ProjectSummary is the outcome of one project within a run.
type ProjectSummary struct {
	ProjectID string
	Processed int64
	Failed    int64
	Retried   int
	Written   store.Written
	Err       error
}

// Summary is the outcome of a run.
type Summary struct {
	RunID          int64
	Projects       []ProjectSummary
	Processed      int64
	Failed         int64
	ProjectsFailed int
	Written        store.Written
}

// Runner executes reconciliation over every active project.
type Runner struct {
	src         source.Source
	st          Store
	versions    VersionSource
	checkpoints Checkpoints
	runs        RunRecorder
	patterns    PatternProvider
	metrics     *Metrics
	opts        Options
	now         func() time.Time
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(src source.Source, st Store, versions VersionSource, checkpoints Checkpoints,
	runs RunRecorder, patterns PatternProvider, metrics *Metrics, opts Options) *Runner {
	return &Runner{
		src:         src,
		st:          st,
		versions:    versions,
		checkpoints: checkpoints,
		runs:        runs,
		patterns:    patterns,
		metrics:     metrics,
		opts:        opts.withDefaults(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run processes every active project. Per-document and per-project failures
// are logged and counted; only bookkeeping failures and cancellation fail the
// run.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	log := zap.L().With(zap.String("component", "job.runner"))
	start := time.Now()
	r.metrics.setRunning(true)
	defer r.metrics.setRunning(false)

	runID, err := r.runs.Start(ctx, Name)
	if err != nil {
		r.metrics.runFinished(store.RunFailed, time.Since(start).Seconds())
		return nil, eris.Wrap(err, "job: start run")
	}

	sum, err := r.run(ctx)
	sum.RunID = runID
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		log.Error("run failed", zap.Int64("run_id", runID), zap.Error(err))
		if logErr := r.runs.Fail(context.WithoutCancel(ctx), runID, err.Error()); logErr != nil {
			log.Error("failed to record run failure", zap.Error(logErr))
		}
		r.metrics.runFinished(store.RunFailed, time.Since(start).Seconds())
		return sum, err
	}

	if err := r.runs.Complete(ctx, runID, &store.RunResult{
		DocumentsProcessed: sum.Processed,
		DocumentsFailed:    sum.Failed,
		ProjectsFailed:     sum.ProjectsFailed,
		Metadata: map[string]any{
			"projects":         len(sum.Projects),
			"mistakes_written": sum.Written.Mistakes,
			"effort_written":   sum.Written.Effort,
		},
	}); err != nil {
		log.Error("failed to record run completion", zap.Error(err))
	}
	r.metrics.runFinished(store.RunComplete, time.Since(start).Seconds())

	log.Info("run complete",
		zap.Int64("run_id", runID),
		zap.Int("projects", len(sum.Projects)),
		zap.Int("projects_failed", sum.ProjectsFailed),
		zap.Int64("processed", sum.Processed),
		zap.Int64("failed", sum.Failed),
		zap.Int("mistakes_written", sum.Written.Mistakes),
		zap.Int("effort_written", sum.Written.Effort),
		zap.Duration("elapsed", time.Since(start)),
	)
	return sum, nil
}

func (r *Runner) run(ctx context.Context) (*Summary, error) {
	sum := &Summary{}

	projects, err := r.st.ListProjects(ctx, true)
	if err != nil {
		return sum, eris.Wrap(err, "job: list projects")
	}

	results := make([]ProjectSummary, len(projects))
	var g errgroup.Group
	g.SetLimit(r.opts.ProjectConcurrency)
	for i, p := range projects {
		g.Go(func() error {
			results[i] = r.RunProject(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	for _, ps := range results {
		sum.Projects = append(sum.Projects, ps)
		sum.Processed += ps.Processed
		sum.Failed += ps.Failed
		sum.Written.Add(ps.Written)
		if ps.Err != nil {
			sum.ProjectsFailed++
		}
	}
	return sum, nil
}

// RunProject processes one project: retries due failed documents, then
// streams new documents since the checkpoint. The checkpoint advances after
// every flushed batch.
func (r *Runner) RunProject(ctx context.Context, p model.Project) ProjectSummary {
	ps := ProjectSummary{ProjectID: p.ID}
	log := zap.L().With(zap.String("component", "job.runner"), zap.String("project_id", p.ID))

	ps.Err = r.runProject(ctx, p, &ps, log)
	if ps.Err != nil {
		log.Error("project failed", zap.Error(ps.Err),
			zap.Int64("processed", ps.Processed), zap.Int64("failed", ps.Failed))
		return ps
	}
	log.Info("project complete",
		zap.Int64("processed", ps.Processed),
		zap.Int64("failed", ps.Failed),
		zap.Int("retried", ps.Retried),
		zap.Int("mistakes_written", ps.Written.Mistakes),
		zap.Int("effort_written", ps.Written.Effort),
	)
	return ps
}

func (r *Runner) runProject(ctx context.Context, p model.Project, ps *ProjectSummary, log *zap.Logger) error {
	if err := r.st.EnsureProjectTables(ctx, p.ID); err != nil {
		return err
	}
	stamp, err := r.versions.ActiveVersions(ctx, p.ID)
	if err != nil {
		return eris.Wrapf(err, "job: active versions for %s", p.ID)
	}
	pats := r.patterns.Get(ctx)

	r.retryFailed(ctx, p, stamp, pats, ps, log)

	cp, err := r.checkpoints.Get(ctx, p.ID)
	if err != nil {
		return err
	}

	bw := store.NewBatchWriter(r.st, p.ID, r.opts.BatchSize, func(ctx context.Context, last store.DocumentResult) error {
		return r.checkpoints.Advance(ctx, model.Checkpoint{
			ProjectID:       p.ID,
			LastBatchID:     last.BatchID,
			LastDocID:       last.DocID,
			LastCompletedAt: last.CompletedAt,
		})
	})

	streamErr := r.src.Stream(ctx, p.ID, cp, func(ctx context.Context, doc *model.SourceDocument) error {
		res, err := Process(doc, p, stamp, pats)
		if err != nil {
			ps.Failed++
			r.metrics.document(p.ID, "failed")
			log.Warn("document failed", zap.String("doc_id", doc.ID), zap.Error(err))
			r.enqueueFailed(ctx, p.ID, doc.ID, err, log)
			return nil
		}
		ps.Processed++
		r.metrics.document(p.ID, "processed")
		return bw.Add(ctx, res)
	})

	// Results already buffered are valid even when the stream broke.
	flushErr := bw.Flush(ctx)
	ps.Written.Add(bw.Written())
	r.metrics.wrote(p.ID, bw.Written().Mistakes, bw.Written().Effort)

	if streamErr != nil {
		return eris.Wrapf(streamErr, "job: stream %s", p.ID)
	}
	return flushErr
}

func (r *Runner) enqueueFailed(ctx context.Context, projectID, docID string, cause error, log *zap.Logger) {
	now := r.now()
	err := r.st.EnqueueFailed(ctx, resilience.DLQEntry{
		ProjectID:   projectID,
		DocID:       docID,
		Error:       cause.Error(),
		ErrorType:   resilience.ClassifyError(cause),
		MaxRetries:  r.opts.MaxRetries,
		NextRetryAt: resilience.NextRetry(now, 0, r.opts.RetryBase, r.opts.RetryMax),
	})
	if err != nil {
		log.Error("failed to enqueue failed document", zap.String("doc_id", docID), zap.Error(err))
	}
}

// retryFailed reprocesses documents of the project whose retry time has come.
// Each success is written immediately and removed from the queue.
func (r *Runner) retryFailed(ctx context.Context, p model.Project, stamp model.VersionStamp, pats pattern.Patterns, ps *ProjectSummary, log *zap.Logger) {
	due, err := r.st.DueFailed(ctx, resilience.DLQFilter{ProjectID: p.ID, Limit: r.opts.RetryLimit})
	if err != nil {
		log.Error("failed to list due failed documents", zap.Error(err))
		return
	}

	for _, e := range due {
		w, err := r.retryOne(ctx, p, stamp, pats, e)
		switch {
		case errors.Is(err, source.ErrNotFound):
			log.Info("failed document no longer exists", zap.String("doc_id", e.DocID))
			err = r.st.RemoveFailed(ctx, e.ID)
		case err != nil:
			next := resilience.NextRetry(r.now(), e.RetryCount+1, r.opts.RetryBase, r.opts.RetryMax)
			log.Warn("retry failed", zap.String("doc_id", e.DocID), zap.Int("attempt", e.RetryCount+1), zap.Error(err))
			err = r.st.IncrementFailedRetry(ctx, e.ID, next, err.Error())
		default:
			ps.Retried++
			ps.Written.Add(w)
			r.metrics.document(p.ID, "retried")
			r.metrics.wrote(p.ID, w.Mistakes, w.Effort)
			err = r.st.RemoveFailed(ctx, e.ID)
		}
		if err != nil {
			log.Error("failed to update failed document queue", zap.String("doc_id", e.DocID), zap.Error(err))
		}
	}
}

func (r *Runner) retryOne(ctx context.Context, p model.Project, stamp model.VersionStamp, pats pattern.Patterns, e resilience.DLQEntry) (store.Written, error) {
	doc, err := r.src.Get(ctx, p.ID, e.DocID)
	if err != nil {
		return store.Written{}, err
	}
	res, err := Process(doc, p, stamp, pats)
	if err != nil {
		return store.Written{}, err
	}
	return r.st.WriteResults(ctx, p.ID, []store.DocumentResult{res})
}
