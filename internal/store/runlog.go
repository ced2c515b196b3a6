package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/keying-qc/internal/db"
)

// Run statuses recorded in qc.job_runs.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// RunEntry represents a row in qc.job_runs.
type RunEntry struct {
	ID                 int64          `json:"id"`
	Job                string         `json:"job"`
	Status             string         `json:"status"`
	StartedAt          time.Time      `json:"started_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	DocumentsProcessed int64          `json:"documents_processed"`
	DocumentsFailed    int64          `json:"documents_failed"`
	ProjectsFailed     int            `json:"projects_failed"`
	Error              string         `json:"error,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// RunResult holds the outcome of a job run, passed to Complete.
type RunResult struct {
	DocumentsProcessed int64          `json:"documents_processed"`
	DocumentsFailed    int64          `json:"documents_failed"`
	ProjectsFailed     int            `json:"projects_failed"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// RunLog provides read/write access to the qc.job_runs table.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog backed by the given pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// LastSuccess returns the start time of the most recent successful run of a
// job, or nil when it never succeeded.
func (l *RunLog) LastSuccess(ctx context.Context, job string) (*time.Time, error) {
	var t time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT started_at FROM qc.job_runs
		 WHERE job = $1 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		job,
	).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "runlog: last success for %s", job)
	}
	return &t, nil
}

// Start records the beginning of a run and returns its ID.
func (l *RunLog) Start(ctx context.Context, job string) (int64, error) {
	var id int64
	err := l.pool.QueryRow(ctx,
		`INSERT INTO qc.job_runs (job, status, started_at)
		 VALUES ($1, 'running', now()) RETURNING id`,
		job,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "runlog: start %s", job)
	}
	return id, nil
}

// Complete marks a run as finished.
func (l *RunLog) Complete(ctx context.Context, runID int64, result *RunResult) error {
	if result == nil {
		result = &RunResult{}
	}
	var metaJSON []byte
	if result.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(result.Metadata)
		if err != nil {
			return eris.Wrap(err, "runlog: marshal metadata")
		}
	}

	_, err := l.pool.Exec(ctx,
		`UPDATE qc.job_runs
		 SET status = 'complete', completed_at = now(), documents_processed = $1,
		     documents_failed = $2, projects_failed = $3, metadata = $4
		 WHERE id = $5`,
		result.DocumentsProcessed, result.DocumentsFailed, result.ProjectsFailed, metaJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %d", runID)
	}
	return nil
}

// Fail marks a run as failed with an error message.
func (l *RunLog) Fail(ctx context.Context, runID int64, errMsg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE qc.job_runs
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %d", runID)
	}
	return nil
}

// ListRecent returns the most recent runs, newest first.
func (l *RunLog) ListRecent(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, job, status, started_at, completed_at, documents_processed,
		        documents_failed, projects_failed, error, metadata
		 FROM qc.job_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list recent")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var errStr *string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Job, &e.Status, &e.StartedAt, &e.CompletedAt,
			&e.DocumentsProcessed, &e.DocumentsFailed, &e.ProjectsFailed, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if errStr != nil {
			e.Error = *errStr
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "runlog: list recent iterate")
}
