package aggregate

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/pattern"
)

type mockResults struct {
	mock.Mock
}

func (m *mockResults) ListKeyingAmounts(ctx context.Context, projectID string, from, to time.Time) ([]model.KeyingAmountDocument, error) {
	args := m.Called(ctx, projectID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.KeyingAmountDocument), args.Error(1)
}

func (m *mockResults) ListMistakeReports(ctx context.Context, projectID string, from, to time.Time) ([]model.MistakeReport, error) {
	args := m.Called(ctx, projectID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MistakeReport), args.Error(1)
}

type mockConfigs struct {
	mock.Mock
}

func (m *mockConfigs) FieldConfiguration(ctx context.Context, projectID string, version int) (*model.FieldConfiguration, error) {
	args := m.Called(ctx, projectID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FieldConfiguration), args.Error(1)
}

func (m *mockConfigs) Threshold(ctx context.Context, projectID string, version int) (*model.ProjectThreshold, error) {
	args := m.Called(ctx, projectID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProjectThreshold), args.Error(1)
}

type staticPatterns struct{}

func (staticPatterns) Get(context.Context) pattern.Patterns {
	return pattern.Defaults()
}
