// Package reconcile maps raw per-step keyed entries of one document onto
// stable logical records across every keying, rework and QC pass.
package reconcile

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/sells-group/keying-qc/internal/model"
)

// Strategy selects how raw entries are assigned to logical records.
type Strategy int

const (
	// HistoryBased assigns ids recorded in the document history.
	HistoryBased Strategy = iota
	// PositionBased pairs entries by their order in the document (legacy data).
	PositionBased
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case HistoryBased:
		return "history"
	case PositionBased:
		return "position"
	default:
		return "unknown"
	}
}

// SelectStrategy picks the identity strategy for a document. History is only
// usable when its first record carries capture metadata.
func SelectStrategy(history []model.HistoryRecord) Strategy {
	if len(history) == 0 || len(history[0].Captures) == 0 {
		return PositionBased
	}
	return HistoryBased
}

// SectionEntry is the data one operator captured for one section of a record.
type SectionEntry struct {
	Data        []model.Row
	Keyer       string
	CreatedTime time.Time
}

// FirstRow returns data[0], or nil when the entry holds no rows.
func (e *SectionEntry) FirstRow() model.Row {
	if e == nil || len(e.Data) == 0 {
		return nil
	}
	return e.Data[0]
}

// LogicalRecord groups the sections captured for one system record in one step.
type LogicalRecord struct {
	SystemRecordID string
	Sections       map[string]*SectionEntry
	SectionOrder   []string
}

// Section returns the entry for a section, or nil.
func (r *LogicalRecord) Section(name string) *SectionEntry {
	if r == nil {
		return nil
	}
	return r.Sections[name]
}

// Step is one keying pass with its records in first-seen order.
type Step struct {
	Name    string
	Records []*LogicalRecord
	byID    map[string]*LogicalRecord
}

// Record returns the record with the given id, or nil.
func (s *Step) Record(id string) *LogicalRecord {
	if s == nil {
		return nil
	}
	return s.byID[id]
}

// Fallback returns the operator and time used for data absent from this
// step: those of the first section of the first record.
func (s *Step) Fallback() (string, time.Time) {
	if s == nil || len(s.Records) == 0 {
		return "", time.Time{}
	}
	r := s.Records[0]
	if len(r.SectionOrder) == 0 {
		return "", time.Time{}
	}
	e := r.Sections[r.SectionOrder[0]]
	return e.Keyer, e.CreatedTime
}

// Result is the reconciled structure of one document.
type Result struct {
	Strategy Strategy
	Steps    []*Step
}

// Final returns the last (authoritative) step, or nil.
func (r *Result) Final() *Step {
	if r == nil || len(r.Steps) == 0 {
		return nil
	}
	return r.Steps[len(r.Steps)-1]
}

// RecordIDs returns the union of record ids over all steps, in first-seen order.
func (r *Result) RecordIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, s := range r.Steps {
		for _, rec := range s.Records {
			if !seen[rec.SystemRecordID] {
				seen[rec.SystemRecordID] = true
				ids = append(ids, rec.SystemRecordID)
			}
		}
	}
	return ids
}

// Reconcile builds the step → record → section structure for one document.
// Input entries are not modified.
func Reconcile(entries []model.KeyedEntry, history []model.HistoryRecord, multiRow model.Set) *Result {
	strategy := SelectStrategy(history)

	assigned := make([]model.KeyedEntry, len(entries))
	for i, e := range entries {
		assigned[i] = cloneEntry(e)
	}

	switch strategy {
	case HistoryBased:
		assignFromHistory(assigned, history, multiRow)
	default:
		assignByPosition(assigned, multiRow)
	}

	return &Result{
		Strategy: strategy,
		Steps:    group(assigned, stepNames(assigned)),
	}
}

type groupKey struct {
	taskID, taskDefKey, section string
}

func keyOf(e model.KeyedEntry) groupKey {
	return groupKey{e.TaskID, e.TaskDefKey, e.Section}
}

type slot struct {
	recordID string
	lineIDs  []string
}

func assignFromHistory(entries []model.KeyedEntry, history []model.HistoryRecord, multiRow model.Set) {
	lookup := make(map[groupKey][]slot)
	for _, h := range history {
		for _, c := range h.Captures {
			k := groupKey{c.TaskID, c.TaskDefKey, c.Section}
			lookup[k] = append(lookup[k], slot{recordID: c.SystemRecordID, lineIDs: c.LineIDs})
		}
	}

	consumed := make(map[groupKey]int)
	for i := range entries {
		k := keyOf(entries[i])
		slots := lookup[k]
		if len(slots) == 0 {
			continue
		}
		idx := consumed[k]
		if idx >= len(slots) {
			idx = len(slots) - 1
		}
		consumed[k]++

		s := slots[idx]
		entries[i].SystemRecordID = s.recordID
		if multiRow.Has(entries[i].Section) {
			backfillLineIDs(&entries[i], s.lineIDs)
		}
	}

	// Entries with no history slot fall back to their position in the group.
	pos := make(map[groupKey]int)
	for i := range entries {
		if entries[i].SystemRecordID != "" {
			continue
		}
		k := keyOf(entries[i])
		entries[i].SystemRecordID = positionalID(pos[k])
		pos[k]++
		if multiRow.Has(entries[i].Section) {
			backfillLineIDs(&entries[i], nil)
		}
	}
}

func assignByPosition(entries []model.KeyedEntry, multiRow model.Set) {
	pos := make(map[groupKey]int)
	for i := range entries {
		k := keyOf(entries[i])
		entries[i].SystemRecordID = positionalID(pos[k])
		pos[k]++
		if multiRow.Has(entries[i].Section) {
			backfillLineIDs(&entries[i], nil)
		}
	}
}

func positionalID(i int) string {
	return "pos_" + strconv.Itoa(i)
}

// backfillLineIDs fills empty line-id fields from lineIDs by row index, or
// from the row index itself when no id is known.
func backfillLineIDs(e *model.KeyedEntry, lineIDs []string) {
	field := model.LineIDField(e.Section)
	for i, row := range e.Data {
		if row.Text(field) != "" {
			continue
		}
		id := strconv.Itoa(i)
		if i < len(lineIDs) && lineIDs[i] != "" {
			id = lineIDs[i]
		}
		if row == nil {
			row = model.Row{}
			e.Data[i] = row
		}
		row[field] = model.FieldValue{Text: id}
	}
}

// stepNames returns the step each entry belongs to, splitting rework passes
// into their own steps.
func stepNames(entries []model.KeyedEntry) []string {
	type defGroup struct {
		count    int
		sections map[string]bool
		taskIDs  []string
	}
	groups := make(map[string]*defGroup)
	for _, e := range entries {
		g, ok := groups[e.TaskDefKey]
		if !ok {
			g = &defGroup{sections: make(map[string]bool)}
			groups[e.TaskDefKey] = g
		}
		g.count++
		g.sections[e.Section] = true
		if !slices.Contains(g.taskIDs, e.TaskID) {
			g.taskIDs = append(g.taskIDs, e.TaskID)
		}
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		g := groups[e.TaskDefKey]
		names[i] = e.TaskDefKey
		if g.count <= len(g.sections) {
			continue
		}
		for n, id := range g.taskIDs {
			if id == e.TaskID && n > 0 {
				names[i] = ReworkStepName(n, e.TaskDefKey)
				break
			}
		}
	}
	return names
}

// ReworkStepName names the n-th rework pass of a step.
func ReworkStepName(n int, taskDefKey string) string {
	return fmt.Sprintf("rework_%d_%s", n, taskDefKey)
}

func group(entries []model.KeyedEntry, names []string) []*Step {
	var steps []*Step
	byName := make(map[string]*Step)

	for i, e := range entries {
		st, ok := byName[names[i]]
		if !ok {
			st = &Step{Name: names[i], byID: make(map[string]*LogicalRecord)}
			byName[names[i]] = st
			steps = append(steps, st)
		}

		rec, ok := st.byID[e.SystemRecordID]
		if !ok {
			rec = &LogicalRecord{
				SystemRecordID: e.SystemRecordID,
				Sections:       make(map[string]*SectionEntry),
			}
			st.byID[e.SystemRecordID] = rec
			st.Records = append(st.Records, rec)
		}

		if _, exists := rec.Sections[e.Section]; !exists {
			rec.SectionOrder = append(rec.SectionOrder, e.Section)
		}
		rec.Sections[e.Section] = &SectionEntry{
			Data:        e.Data,
			Keyer:       e.Keyer,
			CreatedTime: e.CreatedTime,
		}
	}
	return steps
}

func cloneEntry(e model.KeyedEntry) model.KeyedEntry {
	out := e
	out.Data = make([]model.Row, len(e.Data))
	for i, row := range e.Data {
		if row == nil {
			continue
		}
		cp := make(model.Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Data[i] = cp
	}
	return out
}
