// Package job drives reconciliation: per-document processing, the periodic
// multi-project run and its trigger.
package job

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keying-qc/internal/effort"
	"github.com/sells-group/keying-qc/internal/mistake"
	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/pattern"
	"github.com/sells-group/keying-qc/internal/reconcile"
	"github.com/sells-group/keying-qc/internal/store"
)

// PatternProvider returns the current step-name patterns.
type PatternProvider interface {
	Get(ctx context.Context) pattern.Patterns
}

// VersionSource returns the configuration versions active for a project.
type VersionSource interface {
	ActiveVersions(ctx context.Context, projectID string) (model.VersionStamp, error)
}

// Process reconciles one document and derives its mistakes and keying
// effort. It performs no I/O. Documents without mistakes yield a nil
// Mistakes report.
func Process(doc *model.SourceDocument, project model.Project, stamp model.VersionStamp, pats pattern.Patterns) (res store.DocumentResult, err error) {
	if doc == nil {
		return res, eris.New("job: nil document")
	}
	if doc.BatchID == "" {
		return res, eris.Errorf("job: document %s has no batch id", doc.ID)
	}
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("job: document %s: %v", doc.ID, r)
		}
	}()

	multiRow := model.NewSet(project.MultiRowSections)
	notCount := model.NewSet(project.FieldNotCount)

	rec := reconcile.Reconcile(doc.KeyedData, doc.History, multiRow)

	mistakes := mistake.Detect(doc.ID, rec, mistake.Options{
		MultiRowSections: multiRow,
		FieldNotCount:    notCount,
		Patterns:         pats,
	})

	keying := effort.Compute(doc.ID, rec, effort.Options{
		MultiRowSections: multiRow,
		FieldNotCount:    notCount,
		Patterns:         pats,
	}, doc.FinalData)
	keying.BatchID = doc.BatchID
	keying.ImportedDate = doc.ImportedDate
	keying.FieldConfigVersion = stamp.FieldConfigVersion
	keying.ThresholdVersion = stamp.ThresholdVersion

	res = store.DocumentResult{
		DocID:       doc.ID,
		BatchID:     doc.BatchID,
		CompletedAt: doc.CompletedAt,
		Keying:      &keying,
	}
	if len(mistakes) > 0 {
		res.Mistakes = &model.MistakeReport{
			DocID:              doc.ID,
			BatchID:            doc.BatchID,
			ImportedDate:       doc.ImportedDate,
			FieldConfigVersion: stamp.FieldConfigVersion,
			ThresholdVersion:   stamp.ThresholdVersion,
			Mistakes:           mistakes,
		}
	}
	return res, nil
}

// Processor persists single documents immediately.
type Processor struct {
	patterns PatternProvider
	versions VersionSource
	writer   store.ResultWriter
}

// NewProcessor creates a Processor.
func NewProcessor(patterns PatternProvider, versions VersionSource, writer store.ResultWriter) *Processor {
	return &Processor{patterns: patterns, versions: versions, writer: writer}
}

// ReconcileAndPersist processes one document with the project's active
// configuration versions and writes the results.
func (p *Processor) ReconcileAndPersist(ctx context.Context, doc *model.SourceDocument, project model.Project) (store.Written, error) {
	stamp, err := p.versions.ActiveVersions(ctx, project.ID)
	if err != nil {
		return store.Written{}, eris.Wrapf(err, "job: active versions for %s", project.ID)
	}

	res, err := Process(doc, project, stamp, p.patterns.Get(ctx))
	if err != nil {
		return store.Written{}, err
	}

	w, err := p.writer.WriteResults(ctx, project.ID, []store.DocumentResult{res})
	if err != nil {
		return w, eris.Wrapf(err, "job: persist %s", doc.ID)
	}
	return w, nil
}
