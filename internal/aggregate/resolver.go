package aggregate

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/versioned"
)

// ConfigSource loads versioned configuration. Version 0 resolves to the
// active version.
type ConfigSource interface {
	FieldConfiguration(ctx context.Context, projectID string, version int) (*model.FieldConfiguration, error)
	Threshold(ctx context.Context, projectID string, version int) (*model.ProjectThreshold, error)
}

// ConfigResolver caches configuration lookups for the duration of one
// aggregation. A version that does not exist resolves to an empty
// configuration.
type ConfigResolver struct {
	src       ConfigSource
	projectID string

	fields     map[int]*model.FieldConfiguration
	thresholds map[int]*model.ProjectThreshold
}

// NewConfigResolver creates a resolver for one project.
func NewConfigResolver(src ConfigSource, projectID string) *ConfigResolver {
	return &ConfigResolver{
		src:        src,
		projectID:  projectID,
		fields:     make(map[int]*model.FieldConfiguration),
		thresholds: make(map[int]*model.ProjectThreshold),
	}
}

// Fields returns the field configuration for a version.
func (r *ConfigResolver) Fields(ctx context.Context, version int) (*model.FieldConfiguration, error) {
	if fc, ok := r.fields[version]; ok {
		return fc, nil
	}
	fc, err := r.src.FieldConfiguration(ctx, r.projectID, version)
	if err != nil {
		if !errors.Is(err, versioned.ErrNotFound) {
			return nil, eris.Wrapf(err, "aggregate: field configuration v%d", version)
		}
		fc = &model.FieldConfiguration{ProjectID: r.projectID, Version: version}
	}
	r.fields[version] = fc
	return fc, nil
}

// Thresholds returns the project thresholds for a version.
func (r *ConfigResolver) Thresholds(ctx context.Context, version int) (*model.ProjectThreshold, error) {
	if pt, ok := r.thresholds[version]; ok {
		return pt, nil
	}
	pt, err := r.src.Threshold(ctx, r.projectID, version)
	if err != nil {
		if !errors.Is(err, versioned.ErrNotFound) {
			return nil, eris.Wrapf(err, "aggregate: thresholds v%d", version)
		}
		pt = &model.ProjectThreshold{ProjectID: r.projectID, Version: version}
	}
	r.thresholds[version] = pt
	return pt, nil
}
