package model

import "github.com/rotisserie/eris"

// ReportLevel is the granularity of a quality statistic.
type ReportLevel string

const (
	LevelDocument  ReportLevel = "document"
	LevelField     ReportLevel = "field"
	LevelRecord    ReportLevel = "record"
	LevelLineItem  ReportLevel = "line_item"
	LevelCharacter ReportLevel = "character"
)

// AllLevels lists every report level in output order.
var AllLevels = []ReportLevel{LevelDocument, LevelField, LevelRecord, LevelLineItem, LevelCharacter}

// ParseReportLevel validates a level name. The empty string selects all levels.
func ParseReportLevel(s string) (ReportLevel, error) {
	if s == "" {
		return "", nil
	}
	for _, l := range AllLevels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", eris.Errorf("unknown report level: %q", s)
}

// Scope returns the threshold scope that governs a report level.
func (l ReportLevel) Scope() ThresholdScope {
	switch l {
	case LevelField:
		return ScopeField
	case LevelRecord:
		return ScopeRecord
	case LevelLineItem:
		return ScopeLineItem
	case LevelCharacter:
		return ScopeCharacter
	default:
		return ScopeDocument
	}
}

// NoThreshold is the threshold type of rows produced when no threshold is
// configured for a scope.
const NoThreshold = "N/A"

// StatRow is one quality statistic for a date, level and threshold.
type StatRow struct {
	ProjectID           string      `json:"project_id"`
	ImportedDate        string      `json:"imported_date"`
	ReportLevel         ReportLevel `json:"report_level"`
	ThresholdType       string      `json:"threshold_type"`
	ThresholdValue      *float64    `json:"threshold_value"`
	TotalError          int         `json:"total_error"`
	TotalKeying         int         `json:"total_keying"`
	TotalSample         int         `json:"total_sample"`
	ErrorRate           float64     `json:"error_rate"`
	Passed              *bool       `json:"passed,omitempty"`
	FieldConfigVersions []int       `json:"field_config_versions"`
	ThresholdVersions   []int       `json:"threshold_versions"`
}
