package model

import (
	"strings"
	"time"
)

// FieldValue is one captured value of a field.
type FieldValue struct {
	Text string `json:"text" bson:"text"`
}

// Row maps field names to captured values.
type Row map[string]FieldValue

// Text returns the captured text for a field, or "" when absent.
func (r Row) Text(field string) string {
	if r == nil {
		return ""
	}
	return r[field].Text
}

// KeyedEntry is one capture event for one section of one logical record,
// produced by one operator during one step.
type KeyedEntry struct {
	TaskID         string    `json:"task_id" bson:"taskId"`
	TaskDefKey     string    `json:"task_def_key" bson:"taskDefKey"`
	Section        string    `json:"section" bson:"section"`
	SystemRecordID string    `json:"system_record_id,omitempty" bson:"systemRecordId,omitempty"` // assigned by the reconciler
	Data           []Row     `json:"data" bson:"data"`
	Keyer          string    `json:"keyer" bson:"keyer"`
	CreatedTime    time.Time `json:"created_time" bson:"createdtime"`
}

// CaptureMeta records which system record (and which line ids) a raw capture
// was assigned to during its original pass.
type CaptureMeta struct {
	Key            string   `json:"key" bson:"key"` // raw UUID-prefixed capture key
	TaskID         string   `json:"task_id" bson:"taskId"`
	TaskDefKey     string   `json:"task_def_key" bson:"taskDefKey"`
	Section        string   `json:"section" bson:"section"`
	SystemRecordID string   `json:"system_record_id" bson:"system_record_id"`
	LineIDs        []string `json:"line_ids,omitempty" bson:"line_ids,omitempty"`
}

// HistoryRecord is one entry of a document's history.
type HistoryRecord struct {
	Action      string        `json:"action" bson:"action"`
	TaskID      string        `json:"task_id" bson:"taskId"`
	TaskDefKey  string        `json:"task_def_key" bson:"taskDefKey"`
	CreatedTime time.Time     `json:"created_time" bson:"createdtime"`
	Captures    []CaptureMeta `json:"captures,omitempty" bson:"keyed_captures,omitempty"`
}

// SourceDocument is a completed document read from the capture store.
type SourceDocument struct {
	ID           string          `json:"id" bson:"_id"`
	ProjectID    string          `json:"project_id" bson:"project_id"`
	BatchID      string          `json:"batch_id" bson:"batch_id"`
	BatchName    string          `json:"batch_name,omitempty" bson:"batch_name,omitempty"`
	Status       string          `json:"status" bson:"status"`
	ImportedDate time.Time       `json:"imported_date" bson:"imported_date"`
	CompletedAt  time.Time       `json:"completed_at" bson:"completed_at"`
	KeyedData    []KeyedEntry    `json:"keyed_data" bson:"keyed_data"`
	FinalData    []Row           `json:"final_data" bson:"final_data"`
	History      []HistoryRecord `json:"document_history,omitempty" bson:"document_history,omitempty"`
}

// LineIDField returns the per-row line identifier field of a multi-row section.
func LineIDField(section string) string {
	return strings.ToLower(section) + "_line_id"
}

// Set is a lookup of names (sections, excluded fields).
type Set map[string]bool

// NewSet builds a Set from names.
func NewSet(names []string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Has reports whether name is in the set. A nil set contains nothing.
func (s Set) Has(name string) bool {
	return s[name]
}
