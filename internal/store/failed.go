package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/keying-qc/internal/resilience"
)

// EnqueueFailed records a document that failed processing. A document already
// queued for the project is updated in place.
func (s *PostgresStore) EnqueueFailed(ctx context.Context, entry resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastFailedAt.IsZero() {
		entry.LastFailedAt = now
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO qc.failed_documents
		 (id, project_id, doc_id, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (project_id, doc_id) DO UPDATE SET
		   error = $4, error_type = $5, next_retry_at = $8, last_failed_at = $10`,
		entry.ID, entry.ProjectID, entry.DocID, entry.Error, entry.ErrorType,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue failed document")
}

// DueFailed returns failed documents whose retry time has passed and which
// have retries left.
func (s *PostgresStore) DueFailed(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, project_id, doc_id, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM qc.failed_documents
	          WHERE next_retry_at <= now() AND retry_count < max_retries`
	args := []any{}
	argIdx := 1

	if filter.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: due failed documents")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.DocID, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failed document")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: due failed documents iterate")
}

// IncrementFailedRetry records another failed attempt.
func (s *PostgresStore) IncrementFailedRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE qc.failed_documents
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment failed retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: failed document %s", id)
	}
	return nil
}

// RemoveFailed drops an entry once its document processed successfully.
func (s *PostgresStore) RemoveFailed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM qc.failed_documents WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove failed document")
}

// CountFailed returns the number of queued failed documents.
func (s *PostgresStore) CountFailed(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM qc.failed_documents`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count failed documents")
}
