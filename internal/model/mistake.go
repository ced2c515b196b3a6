package model

import "time"

// MistakeStatus is the workflow state of a detected mistake.
type MistakeStatus string

const (
	MistakeStatusWaitQC       MistakeStatus = "WAIT_QC"
	MistakeStatusWaitPM       MistakeStatus = "WAIT_PM"
	MistakeStatusRejectedByPM MistakeStatus = "REJECTED_BY_PM"
	MistakeStatusApprovedByPM MistakeStatus = "APPROVED_BY_PM"
	MistakeStatusDone         MistakeStatus = "DONE"
)

// Valid reports whether s is a known workflow status.
func (s MistakeStatus) Valid() bool {
	switch s {
	case MistakeStatusWaitQC, MistakeStatusWaitPM, MistakeStatusRejectedByPM,
		MistakeStatusApprovedByPM, MistakeStatusDone:
		return true
	}
	return false
}

// ErrorFoundAt tells which kind of pass surfaced a mistake.
type ErrorFoundAt string

const (
	FoundAtQC     ErrorFoundAt = "qc"
	FoundAtVerify ErrorFoundAt = "verify"
)

// Error types assigned by reviewers that do not count against keyers.
const (
	ErrorTypeNotError   = "not_error"
	ErrorTypeSuggestion = "suggestion"
)

// MistakeRecord is one field-level discrepancy between a keying step and the
// final step of a document.
type MistakeRecord struct {
	DocID           string        `json:"doc_id"`
	TaskKeyerName   string        `json:"task_keyer_name"`
	TaskFinalName   string        `json:"task_final_name"`
	SystemRecordID  string        `json:"system_record_id"`
	Section         string        `json:"section"`
	LineID          string        `json:"line_id,omitempty"`
	FieldName       string        `json:"field_name"`
	ValueKeyer      string        `json:"value_keyer"`
	ValueFinal      string        `json:"value_final"`
	UserNameKeyer   string        `json:"user_name_keyer"`
	UserNameFinal   string        `json:"user_name_final"`
	CapturedKeyerAt time.Time     `json:"captured_keyer_at"`
	CapturedFinalAt time.Time     `json:"captured_final_at"`
	ErrorType       *string       `json:"error_type"`
	Status          MistakeStatus `json:"status"`
	ErrorFoundAt    ErrorFoundAt  `json:"error_found_at"`
}

// LocationKey identifies the field location a mistake refers to.
func (m MistakeRecord) LocationKey() string {
	return m.DocID + "\x00" + m.FieldName + "\x00" + m.SystemRecordID + "\x00" + m.LineID
}

// MistakeReport is the per-document row holding all mistakes of a document.
type MistakeReport struct {
	DocID              string          `json:"doc_id"`
	BatchID            string          `json:"batch_id"`
	ImportedDate       time.Time       `json:"imported_date"`
	FieldConfigVersion int             `json:"field_config_version"`
	ThresholdVersion   int             `json:"threshold_version"`
	Mistakes           []MistakeRecord `json:"mistakes"`
	Revision           int             `json:"revision"`
}
