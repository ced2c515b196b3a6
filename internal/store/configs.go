package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keying-qc/internal/db"
	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/versioned"
)

// Versioned configuration tables.
const (
	FieldConfigTable = "qc.field_configurations"
	ThresholdTable   = "qc.project_thresholds"
)

// ConfigStore reads and appends versioned field configurations and
// thresholds.
type ConfigStore struct {
	fields     *versioned.Log[[]model.FieldDefinition]
	thresholds *versioned.Log[[]model.Threshold]
}

// NewConfigStore creates a ConfigStore.
func NewConfigStore(pool db.Pool) *ConfigStore {
	return &ConfigStore{
		fields:     versioned.NewLog[[]model.FieldDefinition](pool, FieldConfigTable),
		thresholds: versioned.NewLog[[]model.Threshold](pool, ThresholdTable),
	}
}

func fieldConfig(e *versioned.Entry[[]model.FieldDefinition]) *model.FieldConfiguration {
	return &model.FieldConfiguration{
		ProjectID: e.ProjectID,
		Version:   e.Version,
		IsActive:  e.IsActive,
		Fields:    e.Body,
		CreatedBy: e.CreatedBy,
		CreatedAt: e.CreatedAt,
	}
}

func projectThreshold(e *versioned.Entry[[]model.Threshold]) *model.ProjectThreshold {
	return &model.ProjectThreshold{
		ProjectID:  e.ProjectID,
		Version:    e.Version,
		IsActive:   e.IsActive,
		Thresholds: e.Body,
		CreatedBy:  e.CreatedBy,
		CreatedAt:  e.CreatedAt,
	}
}

// ActiveVersions returns the active version of each configuration. A
// configuration that was never set reports version 0.
func (c *ConfigStore) ActiveVersions(ctx context.Context, projectID string) (model.VersionStamp, error) {
	var stamp model.VersionStamp

	f, err := c.fields.Current(ctx, projectID)
	switch {
	case err == nil:
		stamp.FieldConfigVersion = f.Version
	case !errors.Is(err, versioned.ErrNotFound):
		return stamp, err
	}

	t, err := c.thresholds.Current(ctx, projectID)
	switch {
	case err == nil:
		stamp.ThresholdVersion = t.Version
	case !errors.Is(err, versioned.ErrNotFound):
		return stamp, err
	}
	return stamp, nil
}

// FieldConfiguration returns a version of the field configuration; version 0
// resolves to the active one. It returns versioned.ErrNotFound when absent.
func (c *ConfigStore) FieldConfiguration(ctx context.Context, projectID string, version int) (*model.FieldConfiguration, error) {
	e, err := c.fields.At(ctx, projectID, version)
	if err != nil {
		return nil, err
	}
	return fieldConfig(e), nil
}

// Threshold returns a version of the project thresholds; version 0 resolves
// to the active one.
func (c *ConfigStore) Threshold(ctx context.Context, projectID string, version int) (*model.ProjectThreshold, error) {
	e, err := c.thresholds.At(ctx, projectID, version)
	if err != nil {
		return nil, err
	}
	return projectThreshold(e), nil
}

// FieldHistory lists every field configuration version, newest first.
func (c *ConfigStore) FieldHistory(ctx context.Context, projectID string) ([]model.FieldConfiguration, error) {
	entries, err := c.fields.History(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]model.FieldConfiguration, 0, len(entries))
	for i := range entries {
		out = append(out, *fieldConfig(&entries[i]))
	}
	return out, nil
}

// ThresholdHistory lists every threshold version, newest first.
func (c *ConfigStore) ThresholdHistory(ctx context.Context, projectID string) ([]model.ProjectThreshold, error) {
	entries, err := c.thresholds.History(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ProjectThreshold, 0, len(entries))
	for i := range entries {
		out = append(out, *projectThreshold(&entries[i]))
	}
	return out, nil
}

// SetFields appends a new field configuration version.
func (c *ConfigStore) SetFields(ctx context.Context, projectID, actor string, fields []model.FieldDefinition) (*model.FieldConfiguration, error) {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, eris.New("store: field name is required")
		}
		if seen[f.Name] {
			return nil, eris.Errorf("store: duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}

	e, err := c.fields.Append(ctx, projectID, actor,
		func(*versioned.Entry[[]model.FieldDefinition]) ([]model.FieldDefinition, error) {
			return fields, nil
		})
	if err != nil {
		return nil, err
	}
	return fieldConfig(e), nil
}

// SetThresholds appends a new threshold version.
func (c *ConfigStore) SetThresholds(ctx context.Context, projectID, actor string, thresholds []model.Threshold) (*model.ProjectThreshold, error) {
	for _, t := range thresholds {
		if _, err := model.ParseThresholdScope(string(t.Scope)); err != nil {
			return nil, err
		}
		if t.Value < 0 || t.Value > 100 {
			return nil, eris.Errorf("store: threshold %s/%s out of range: %v", t.Scope, t.Type, t.Value)
		}
	}

	e, err := c.thresholds.Append(ctx, projectID, actor,
		func(*versioned.Entry[[]model.Threshold]) ([]model.Threshold, error) {
			return thresholds, nil
		})
	if err != nil {
		return nil, err
	}
	return projectThreshold(e), nil
}
