// Package source reads completed documents from the capture store.
package source

import (
	"context"
	"errors"

	"github.com/sells-group/keying-qc/internal/model"
)

// StatusCompleted is the document status selected for reconciliation.
const StatusCompleted = "completed"

// ErrNotFound is returned when a document does not exist in the source.
var ErrNotFound = errors.New("source: document not found")

// DocumentFunc receives each streamed document. Returning an error stops the
// stream and is returned from Stream.
type DocumentFunc func(ctx context.Context, doc *model.SourceDocument) error

// Source yields completed documents of a project.
type Source interface {
	// Stream calls fn for every completed document ordered after the
	// checkpoint by (completed_at, _id) ascending.
	Stream(ctx context.Context, projectID string, since model.Checkpoint, fn DocumentFunc) error

	// Get loads a single document regardless of the checkpoint.
	Get(ctx context.Context, projectID, docID string) (*model.SourceDocument, error)

	Close(ctx context.Context) error
}

// CollectionName returns the collection holding a project's documents.
func CollectionName(projectID string) string {
	return "documents_" + projectID
}
