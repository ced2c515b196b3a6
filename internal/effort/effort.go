// Package effort computes keying effort per step and per document.
package effort

import (
	"strings"
	"unicode/utf8"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/pattern"
	"github.com/sells-group/keying-qc/internal/reconcile"
)

// MultiValueSep separates implicit lines embedded in one final field value.
const MultiValueSep = "`"

// Options configures effort accounting for one project.
type Options struct {
	MultiRowSections model.Set
	FieldNotCount    model.Set
	Patterns         pattern.Patterns
}

// Compute returns the keying effort of one reconciled document. Step details
// come from the reconciled steps; document totals are computed independently
// from finalData. Callers fill batch, date and version fields.
func Compute(docID string, res *reconcile.Result, opts Options, finalData []model.Row) model.KeyingAmountDocument {
	doc := model.KeyingAmountDocument{DocID: docID}

	if res != nil && len(res.Steps) > 0 {
		checked := opts.Patterns.IsApproval(res.Final().Name)
		doc.Details = make([]model.KeyingDetail, 0, len(res.Steps))
		for _, step := range res.Steps {
			d := stepDetail(step, opts)
			d.IsQc = checked && !opts.Patterns.IsQC(step.Name)
			doc.Details = append(doc.Details, d)
		}
	}

	t := DocumentTotals(finalData, opts.FieldNotCount)
	doc.TotalFieldDocument = t.Fields
	doc.TotalCharacterDocument = t.Characters
	doc.TotalLineDocument = t.Lines
	doc.TotalRecordDocument = t.Records
	return doc
}

func stepDetail(step *reconcile.Step, opts Options) model.KeyingDetail {
	keyer, _ := step.Fallback()
	d := model.KeyingDetail{
		TaskKeyerName: step.Name,
		UserNameKeyer: keyer,
		TotalRecords:  len(step.Records),
	}

	for _, rec := range step.Records {
		for _, section := range rec.SectionOrder {
			e := rec.Sections[section]
			if e.CreatedTime.After(d.CapturedKeyerAt) {
				d.CapturedKeyerAt = e.CreatedTime
			}

			rows := e.Data
			multi := opts.MultiRowSections.Has(section)
			if multi {
				d.TotalLines += len(rows)
			} else if len(rows) > 1 {
				rows = rows[:1]
			}

			lineField := model.LineIDField(section)
			for _, row := range rows {
				for field, v := range row {
					if opts.FieldNotCount.Has(field) || (multi && field == lineField) {
						continue
					}
					d.TotalField++
					d.TotalCharacter += utf8.RuneCountInString(v.Text)
				}
			}
		}
	}
	return d
}

// Totals are the document-level effort counts.
type Totals struct {
	Fields     int
	Characters int
	Lines      int
	Records    int
}

// DocumentTotals counts effort over the final data. A value holding n
// separators counts as n+1 fields; its characters are counted without the
// separators. Within a row, values sharing a separator count form one line
// group contributing n+1 lines.
func DocumentTotals(finalData []model.Row, fieldNotCount model.Set) Totals {
	var t Totals
	for _, row := range finalData {
		if len(row) == 0 {
			continue
		}
		t.Records++

		groups := make(map[int]bool)
		for field, v := range row {
			if fieldNotCount.Has(field) {
				continue
			}
			n := strings.Count(v.Text, MultiValueSep)
			t.Fields += n + 1
			t.Characters += utf8.RuneCountInString(strings.ReplaceAll(v.Text, MultiValueSep, ""))
			groups[n] = true
		}
		for n := range groups {
			t.Lines += n + 1
		}
	}
	return t
}
