// Package mistake compares every intermediate keying step of a document with
// its final step and reports field-level discrepancies.
package mistake

import (
	"slices"
	"strconv"
	"time"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/pattern"
	"github.com/sells-group/keying-qc/internal/reconcile"
)

// Options configures detection for one project.
type Options struct {
	MultiRowSections model.Set
	FieldNotCount    model.Set
	Patterns         pattern.Patterns
}

// side is one half of a comparison: a row and the operator who keyed it.
type side struct {
	row   model.Row
	keyer string
	at    time.Time
}

// stepSide resolves entries of one step, substituting the step fallback for
// data the step never captured.
type stepSide struct {
	step  *reconcile.Step
	keyer string
	at    time.Time
}

func newStepSide(s *reconcile.Step) stepSide {
	k, at := s.Fallback()
	return stepSide{step: s, keyer: k, at: at}
}

func (s stepSide) absent() side {
	return side{keyer: s.keyer, at: s.at}
}

func (s stepSide) present(e *reconcile.SectionEntry, row model.Row) side {
	return side{row: row, keyer: e.Keyer, at: e.CreatedTime}
}

// Detect returns the discrepancies between each non-final step and the final
// step of a reconciled document. Records absent from a step count as not yet
// entered. The result is nil when the document has fewer than two steps.
func Detect(docID string, res *reconcile.Result, opts Options) []model.MistakeRecord {
	if res == nil || len(res.Steps) < 2 {
		return nil
	}

	final := res.Final()
	foundAt := model.FoundAtVerify
	if opts.Patterns.IsApproval(final.Name) {
		foundAt = model.FoundAtQC
	}

	d := detector{
		docID:   docID,
		opts:    opts,
		final:   newStepSide(final),
		foundAt: foundAt,
	}

	ids := res.RecordIDs()
	for _, step := range res.Steps[:len(res.Steps)-1] {
		cur := newStepSide(step)
		for _, id := range ids {
			d.compareRecord(cur, id)
		}
	}
	return d.out
}

type detector struct {
	docID   string
	opts    Options
	final   stepSide
	foundAt model.ErrorFoundAt
	out     []model.MistakeRecord
}

func (d *detector) compareRecord(cur stepSide, id string) {
	curRec := cur.step.Record(id)
	finRec := d.final.step.Record(id)

	for _, section := range unionSections(curRec, finRec) {
		ce := curRec.Section(section)
		fe := finRec.Section(section)

		if d.opts.MultiRowSections.Has(section) {
			d.compareLines(cur, id, section, ce, fe)
			continue
		}

		a, b := cur.absent(), d.final.absent()
		if row := ce.FirstRow(); row != nil {
			a = cur.present(ce, row)
		}
		if row := fe.FirstRow(); row != nil {
			b = d.final.present(fe, row)
		}
		d.compareRows(cur.step.Name, id, section, "", a, b)
	}
}

func (d *detector) compareLines(cur stepSide, id, section string, ce, fe *reconcile.SectionEntry) {
	field := model.LineIDField(section)
	curRows, curOrder := indexLines(ce, field)
	finRows, finOrder := indexLines(fe, field)

	order := curOrder
	for _, lid := range finOrder {
		if _, ok := curRows[lid]; !ok {
			order = append(order, lid)
		}
	}

	for _, lid := range order {
		a, b := cur.absent(), d.final.absent()
		if row, ok := curRows[lid]; ok {
			a = cur.present(ce, row)
		}
		if row, ok := finRows[lid]; ok {
			b = d.final.present(fe, row)
		}
		d.compareRows(cur.step.Name, id, section, lid, a, b)
	}
}

func (d *detector) compareRows(stepName, id, section, lineID string, a, b side) {
	lineField := ""
	if lineID != "" {
		lineField = model.LineIDField(section)
	}

	for _, field := range unionFields(a.row, b.row) {
		if field == lineField || d.opts.FieldNotCount.Has(field) {
			continue
		}
		kv, fv := a.row.Text(field), b.row.Text(field)
		if kv == fv {
			continue
		}
		d.out = append(d.out, model.MistakeRecord{
			DocID:           d.docID,
			TaskKeyerName:   stepName,
			TaskFinalName:   d.final.step.Name,
			SystemRecordID:  id,
			Section:         section,
			LineID:          lineID,
			FieldName:       field,
			ValueKeyer:      kv,
			ValueFinal:      fv,
			UserNameKeyer:   a.keyer,
			UserNameFinal:   b.keyer,
			CapturedKeyerAt: a.at,
			CapturedFinalAt: b.at,
			Status:          model.MistakeStatusWaitQC,
			ErrorFoundAt:    d.foundAt,
		})
	}
}

// indexLines maps rows of a multi-row section by line id. Rows without an id
// are keyed by position.
func indexLines(e *reconcile.SectionEntry, field string) (map[string]model.Row, []string) {
	rows := make(map[string]model.Row)
	if e == nil {
		return rows, nil
	}
	var order []string
	for i, row := range e.Data {
		lid := row.Text(field)
		if lid == "" {
			lid = strconv.Itoa(i)
		}
		if _, dup := rows[lid]; !dup {
			order = append(order, lid)
		}
		rows[lid] = row
	}
	return rows, order
}

func unionSections(a, b *reconcile.LogicalRecord) []string {
	var out []string
	if a != nil {
		out = append(out, a.SectionOrder...)
	}
	if b != nil {
		for _, s := range b.SectionOrder {
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}

func unionFields(a, b model.Row) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, r := range []model.Row{a, b} {
		for f := range r {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	slices.Sort(out)
	return out
}
