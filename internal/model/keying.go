package model

import "time"

// KeyingDetail holds the keying effort of one step of one document.
type KeyingDetail struct {
	TaskKeyerName   string    `json:"task_keyer_name"`
	UserNameKeyer   string    `json:"user_name_keyer"`
	TotalField      int       `json:"total_field"`
	TotalCharacter  int       `json:"total_character"`
	TotalRecords    int       `json:"total_records"`
	TotalLines      int       `json:"total_lines"`
	IsQc            bool      `json:"is_qc"`
	CapturedKeyerAt time.Time `json:"captured_keyer_at"`
}

// KeyingAmountDocument aggregates keying effort for one document. The version
// stamp records the configuration active when it was written.
type KeyingAmountDocument struct {
	DocID                  string         `json:"doc_id"`
	BatchID                string         `json:"batch_id"`
	ImportedDate           time.Time      `json:"imported_date"`
	FieldConfigVersion     int            `json:"field_config_version"`
	ThresholdVersion       int            `json:"threshold_version"`
	Details                []KeyingDetail `json:"keying_details"`
	TotalFieldDocument     int            `json:"total_field_document"`
	TotalCharacterDocument int            `json:"total_character_document"`
	TotalLineDocument      int            `json:"total_line_document"`
	TotalRecordDocument    int            `json:"total_record_document"`
}

// WasQCed reports whether any step of the document was checked by an
// approval pass.
func (k *KeyingAmountDocument) WasQCed() bool {
	for _, d := range k.Details {
		if d.IsQc {
			return true
		}
	}
	return false
}

// VersionStamp pins the configuration versions used for a processing run.
type VersionStamp struct {
	FieldConfigVersion int `json:"field_config_version"`
	ThresholdVersion   int `json:"threshold_version"`
}
