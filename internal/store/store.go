// Package store persists reconciliation results, project configuration and
// job bookkeeping in Postgres.
package store

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/resilience"
)

// Sentinel errors for mistake workflow updates.
var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: revision conflict")
)

// Tables names the physical storage of one project's results.
type Tables struct {
	Mistakes string
	Keying   string
}

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,48}$`)

// ValidateProjectID rejects ids that cannot name a table.
func ValidateProjectID(projectID string) error {
	if !projectIDPattern.MatchString(projectID) {
		return eris.Errorf("store: invalid project id %q", projectID)
	}
	return nil
}

// Collections returns the per-project result tables. It is the only place the
// naming convention lives.
func Collections(projectID string) Tables {
	return Tables{
		Mistakes: "qc.mistake_details_" + projectID,
		Keying:   "qc.keying_amount_" + projectID,
	}
}

// DocumentResult is the processed output of one source document.
type DocumentResult struct {
	DocID       string
	BatchID     string
	CompletedAt time.Time
	Mistakes    *model.MistakeReport // nil when the document has no mistakes
	Keying      *model.KeyingAmountDocument
}

// Written counts what a write persisted: mistake records and keying documents.
type Written struct {
	Mistakes int `json:"mistakes_written"`
	Effort   int `json:"effort_written"`
}

// Add accumulates another write count.
func (w *Written) Add(o Written) {
	w.Mistakes += o.Mistakes
	w.Effort += o.Effort
}

// ResultWriter persists processed documents for a project.
type ResultWriter interface {
	WriteResults(ctx context.Context, projectID string, results []DocumentResult) (Written, error)
}

// ResultReader loads persisted results by imported date range [from, to).
type ResultReader interface {
	ListKeyingAmounts(ctx context.Context, projectID string, from, to time.Time) ([]model.KeyingAmountDocument, error)
	ListMistakeReports(ctx context.Context, projectID string, from, to time.Time) ([]model.MistakeReport, error)
}

// ProjectStore reads and writes project definitions.
type ProjectStore interface {
	ListProjects(ctx context.Context, activeOnly bool) ([]model.Project, error)
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	UpsertProject(ctx context.Context, p model.Project) error
	EnsureProjectTables(ctx context.Context, projectID string) error
}

// FailedDocuments tracks documents whose processing failed for retry.
type FailedDocuments interface {
	EnqueueFailed(ctx context.Context, entry resilience.DLQEntry) error
	DueFailed(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementFailedRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveFailed(ctx context.Context, id string) error
	CountFailed(ctx context.Context) (int, error)
}

// Store is the full persistence surface used by the job and the API.
type Store interface {
	ResultWriter
	ResultReader
	ProjectStore
	FailedDocuments

	SetMistakeStatus(ctx context.Context, projectID, docID string, expectedRevision, index int, status model.MistakeStatus, errorType *string) (int, error)

	Ping(ctx context.Context) error
	Close() error
}
