package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/keying-qc/internal/db"
	"github.com/sells-group/keying-qc/internal/model"
)

// CheckpointStore tracks incremental progress per project in qc.checkpoints.
type CheckpointStore struct {
	pool db.Pool
}

// NewCheckpointStore creates a CheckpointStore.
func NewCheckpointStore(pool db.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Get returns the project's checkpoint. A project never processed gets a zero
// checkpoint, which selects every document.
func (c *CheckpointStore) Get(ctx context.Context, projectID string) (model.Checkpoint, error) {
	cp := model.Checkpoint{ProjectID: projectID}
	err := c.pool.QueryRow(ctx,
		`SELECT last_batch_id, last_doc_id, last_completed_at, updated_at
		 FROM qc.checkpoints WHERE project_id = $1`,
		projectID,
	).Scan(&cp.LastBatchID, &cp.LastDocID, &cp.LastCompletedAt, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cp, nil
		}
		return cp, eris.Wrapf(err, "checkpoint: get %s", projectID)
	}
	return cp, nil
}

// Advance moves the checkpoint forward. It never moves it backwards.
func (c *CheckpointStore) Advance(ctx context.Context, cp model.Checkpoint) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO qc.checkpoints (project_id, last_batch_id, last_doc_id, last_completed_at, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (project_id) DO UPDATE SET
		   last_batch_id = EXCLUDED.last_batch_id,
		   last_doc_id = EXCLUDED.last_doc_id,
		   last_completed_at = EXCLUDED.last_completed_at,
		   updated_at = now()
		 WHERE (qc.checkpoints.last_completed_at, qc.checkpoints.last_doc_id)
		    <= (EXCLUDED.last_completed_at, EXCLUDED.last_doc_id)`,
		cp.ProjectID, cp.LastBatchID, cp.LastDocID, cp.LastCompletedAt,
	)
	return eris.Wrapf(err, "checkpoint: advance %s", cp.ProjectID)
}

// Reset clears a project's checkpoint so the next run reprocesses everything.
func (c *CheckpointStore) Reset(ctx context.Context, projectID string) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM qc.checkpoints WHERE project_id = $1`, projectID)
	return eris.Wrapf(err, "checkpoint: reset %s", projectID)
}
