package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Project holds the static keying configuration of a project.
type Project struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	MultiRowSections []string `json:"multi_row_sections" yaml:"multi_row_sections"`
	FieldNotCount    []string `json:"field_not_count" yaml:"field_not_count"`
	Active           bool     `json:"active" yaml:"active"`
}

// FieldDefinition is one reported field and its criticality label.
type FieldDefinition struct {
	Name        string `json:"name" yaml:"name"`
	Criticality string `json:"criticality" yaml:"criticality"`
}

// FieldConfiguration is one version of a project's reported field list.
type FieldConfiguration struct {
	ProjectID string            `json:"project_id"`
	Version   int               `json:"version"`
	IsActive  bool              `json:"is_active"`
	Fields    []FieldDefinition `json:"fields"`
	CreatedBy string            `json:"created_by,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// FieldNames returns the configured field names.
func (c *FieldConfiguration) FieldNames() Set {
	s := make(Set, len(c.Fields))
	for _, f := range c.Fields {
		s[f.Name] = true
	}
	return s
}

// Buckets groups field names by criticality label, preserving first-seen
// label order.
func (c *FieldConfiguration) Buckets() ([]string, map[string][]string) {
	var labels []string
	byLabel := make(map[string][]string)
	for _, f := range c.Fields {
		if _, ok := byLabel[f.Criticality]; !ok {
			labels = append(labels, f.Criticality)
		}
		byLabel[f.Criticality] = append(byLabel[f.Criticality], f.Name)
	}
	return labels, byLabel
}

// ThresholdScope is the report level a threshold applies to.
type ThresholdScope string

const (
	ScopeField     ThresholdScope = "Field"
	ScopeRecord    ThresholdScope = "Record"
	ScopeLineItem  ThresholdScope = "Line Item"
	ScopeDocument  ThresholdScope = "Document"
	ScopeCharacter ThresholdScope = "Character"
)

// ParseThresholdScope validates a scope name.
func ParseThresholdScope(s string) (ThresholdScope, error) {
	switch ThresholdScope(s) {
	case ScopeField, ScopeRecord, ScopeLineItem, ScopeDocument, ScopeCharacter:
		return ThresholdScope(s), nil
	}
	return "", eris.Errorf("unknown threshold scope: %q", s)
}

// Threshold is an acceptable error-rate percentage for a scope. For the Field
// scope, Type names the criticality label it applies to.
type Threshold struct {
	Scope ThresholdScope `json:"scope" yaml:"scope"`
	Type  string         `json:"type" yaml:"type"`
	Value float64        `json:"value" yaml:"value"`
}

// ProjectThreshold is one version of a project's thresholds.
type ProjectThreshold struct {
	ProjectID  string      `json:"project_id"`
	Version    int         `json:"version"`
	IsActive   bool        `json:"is_active"`
	Thresholds []Threshold `json:"thresholds"`
	CreatedBy  string      `json:"created_by,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ForScope returns the thresholds configured for a scope, in order.
func (p *ProjectThreshold) ForScope(scope ThresholdScope) []Threshold {
	var out []Threshold
	for _, t := range p.Thresholds {
		if t.Scope == scope {
			out = append(out, t)
		}
	}
	return out
}

// Checkpoint tracks incremental progress through a project's documents.
type Checkpoint struct {
	ProjectID       string    `json:"project_id"`
	LastBatchID     string    `json:"last_batch_id"`
	LastDocID       string    `json:"last_doc_id"`
	LastCompletedAt time.Time `json:"last_completed_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
