package api

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockStats struct {
	mock.Mock
}

func (m *mockStats) GetQualityStats(ctx context.Context, projectID string, from, to time.Time, level model.ReportLevel) ([]model.StatRow, error) {
	args := m.Called(ctx, projectID, from, to, level)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StatRow), args.Error(1)
}

type mockConfigs struct {
	mock.Mock
}

func (m *mockConfigs) FieldHistory(ctx context.Context, projectID string) ([]model.FieldConfiguration, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FieldConfiguration), args.Error(1)
}

func (m *mockConfigs) ThresholdHistory(ctx context.Context, projectID string) ([]model.ProjectThreshold, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProjectThreshold), args.Error(1)
}

type mockMistakes struct {
	mock.Mock
}

func (m *mockMistakes) SetMistakeStatus(ctx context.Context, projectID, docID string, expectedRevision, index int, status model.MistakeStatus, errorType *string) (int, error) {
	args := m.Called(ctx, projectID, docID, expectedRevision, index, status, errorType)
	return args.Int(0), args.Error(1)
}

type mockRuns struct {
	mock.Mock
}

func (m *mockRuns) ListRecent(ctx context.Context, limit int) ([]store.RunEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.RunEntry), args.Error(1)
}

type pinger struct {
	err error
}

func (p pinger) Ping(context.Context) error { return p.err }
