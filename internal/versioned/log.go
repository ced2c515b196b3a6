// Package versioned stores append-only, per-project configuration versions
// with a single active pointer.
package versioned

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keying-qc/internal/db"
)

// ErrNotFound is returned when a project has no matching version.
var ErrNotFound = errors.New("versioned: version not found")

// Entry is one immutable version of a project's configuration body.
type Entry[T any] struct {
	ProjectID string    `json:"project_id"`
	Version   int       `json:"version"`
	IsActive  bool      `json:"is_active"`
	Body      T         `json:"body"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MutateFunc computes the next body from the current active entry, which is
// nil when the project has no version yet.
type MutateFunc[T any] func(current *Entry[T]) (T, error)

// Log is a versioned configuration table with columns
// (project_id, version, is_active, body, created_by, created_at).
type Log[T any] struct {
	pool  db.Pool
	table string
}

// NewLog creates a Log over a schema-qualified table.
func NewLog[T any](pool db.Pool, table string) *Log[T] {
	return &Log[T]{pool: pool, table: table}
}

// Table returns the backing table name.
func (l *Log[T]) Table() string {
	return l.table
}

func (l *Log[T]) selectSQL(where string) string {
	return fmt.Sprintf(
		`SELECT project_id, version, is_active, body, COALESCE(created_by, ''), created_at FROM %s WHERE %s`,
		db.SanitizeTable(l.table), where,
	)
}

// Current returns the active version for a project.
func (l *Log[T]) Current(ctx context.Context, projectID string) (*Entry[T], error) {
	e, err := scanEntry[T](l.pool.QueryRow(ctx,
		l.selectSQL(`project_id = $1 AND is_active`), projectID))
	if err != nil {
		return nil, l.wrap(err, "current", projectID)
	}
	return e, nil
}

// At returns a specific version. Version 0 resolves to the active version.
func (l *Log[T]) At(ctx context.Context, projectID string, version int) (*Entry[T], error) {
	if version == 0 {
		return l.Current(ctx, projectID)
	}
	e, err := scanEntry[T](l.pool.QueryRow(ctx,
		l.selectSQL(`project_id = $1 AND version = $2`), projectID, version))
	if err != nil {
		return nil, l.wrap(err, fmt.Sprintf("version %d", version), projectID)
	}
	return e, nil
}

// History returns every version of a project, newest first.
func (l *Log[T]) History(ctx context.Context, projectID string) ([]Entry[T], error) {
	rows, err := l.pool.Query(ctx,
		l.selectSQL(`project_id = $1 ORDER BY version DESC`), projectID)
	if err != nil {
		return nil, eris.Wrapf(err, "versioned: history %s for %s", l.table, projectID)
	}
	defer rows.Close()

	var out []Entry[T]
	for rows.Next() {
		e, err := scanEntry[T](rows)
		if err != nil {
			return nil, eris.Wrapf(err, "versioned: scan %s", l.table)
		}
		out = append(out, *e)
	}
	return out, eris.Wrapf(rows.Err(), "versioned: iterate %s", l.table)
}

// Append creates the next version from the active one inside one transaction:
// the active row is locked, deactivated, and replaced by a new active row with
// the next version number. Any error leaves the log unchanged.
func (l *Log[T]) Append(ctx context.Context, projectID, actor string, mutate MutateFunc[T]) (*Entry[T], error) {
	var created *Entry[T]

	err := db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		current, err := scanEntry[T](tx.QueryRow(ctx,
			l.selectSQL(`project_id = $1 AND is_active FOR UPDATE`), projectID))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(err, "versioned: lock active %s for %s", l.table, projectID)
		}

		body, err := mutate(current)
		if err != nil {
			return err
		}
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "versioned: marshal body")
		}

		var next int
		if err := tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT COALESCE(MAX(version), 0) + 1 FROM %s WHERE project_id = $1`, db.SanitizeTable(l.table)),
			projectID,
		).Scan(&next); err != nil {
			return eris.Wrapf(err, "versioned: next version %s for %s", l.table, projectID)
		}

		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET is_active = false WHERE project_id = $1 AND is_active`, db.SanitizeTable(l.table)),
			projectID,
		); err != nil {
			return eris.Wrapf(err, "versioned: deactivate %s for %s", l.table, projectID)
		}

		var createdAt time.Time
		if err := tx.QueryRow(ctx,
			fmt.Sprintf(`INSERT INTO %s (project_id, version, is_active, body, created_by, created_at)
			 VALUES ($1, $2, true, $3, $4, now()) RETURNING created_at`, db.SanitizeTable(l.table)),
			projectID, next, bodyJSON, actor,
		).Scan(&createdAt); err != nil {
			return eris.Wrapf(err, "versioned: insert %s v%d for %s", l.table, next, projectID)
		}

		created = &Entry[T]{
			ProjectID: projectID,
			Version:   next,
			IsActive:  true,
			Body:      body,
			CreatedBy: actor,
			CreatedAt: createdAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("configuration version created",
		zap.String("component", "versioned"),
		zap.String("table", l.table),
		zap.String("project_id", projectID),
		zap.Int("version", created.Version),
		zap.String("actor", actor),
	)
	return created, nil
}

func (l *Log[T]) wrap(err error, what, projectID string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "versioned: %s %s for %s", l.table, what, projectID)
	}
	return eris.Wrapf(err, "versioned: %s %s for %s", l.table, what, projectID)
}

func scanEntry[T any](row pgx.Row) (*Entry[T], error) {
	var e Entry[T]
	var body []byte
	if err := row.Scan(&e.ProjectID, &e.Version, &e.IsActive, &body, &e.CreatedBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &e.Body); err != nil {
			return nil, eris.Wrap(err, "versioned: unmarshal body")
		}
	}
	return &e, nil
}
