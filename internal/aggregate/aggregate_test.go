package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/versioned"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var day = time.Date(2026, 3, 1, 0, 0, 0, 0, Zone)

func keyingDoc(docID string, fcv, thv int, qc bool) model.KeyingAmountDocument {
	return model.KeyingAmountDocument{
		DocID:                  docID,
		ImportedDate:           day.Add(10 * time.Hour),
		FieldConfigVersion:     fcv,
		ThresholdVersion:       thv,
		Details:                []model.KeyingDetail{{TaskKeyerName: "entry", IsQc: qc}},
		TotalFieldDocument:     4,
		TotalCharacterDocument: 20,
		TotalLineDocument:      2,
		TotalRecordDocument:    1,
	}
}

func qcMistake(docID, field, record, line, keyer, final string) model.MistakeRecord {
	return model.MistakeRecord{
		DocID:          docID,
		TaskKeyerName:  "entry",
		TaskFinalName:  "aqc",
		SystemRecordID: record,
		LineID:         line,
		FieldName:      field,
		ValueKeyer:     keyer,
		ValueFinal:     final,
		Status:         model.MistakeStatusWaitQC,
		ErrorFoundAt:   model.FoundAtQC,
	}
}

func report(docID string, fcv, thv int, mistakes ...model.MistakeRecord) model.MistakeReport {
	return model.MistakeReport{
		DocID:              docID,
		ImportedDate:       day.Add(10 * time.Hour),
		FieldConfigVersion: fcv,
		ThresholdVersion:   thv,
		Mistakes:           mistakes,
	}
}

func setup(keying []model.KeyingAmountDocument, reports []model.MistakeReport) (*Aggregator, *mockResults, *mockConfigs) {
	results := &mockResults{}
	results.On("ListKeyingAmounts", mock.Anything, "p1", mock.Anything, mock.Anything).Return(keying, nil)
	results.On("ListMistakeReports", mock.Anything, "p1", mock.Anything, mock.Anything).Return(reports, nil)
	configs := &mockConfigs{}
	return New(results, configs, staticPatterns{}), results, configs
}

func findRow(rows []model.StatRow, level model.ReportLevel, typ string) *model.StatRow {
	for i := range rows {
		if rows[i].ReportLevel == level && rows[i].ThresholdType == typ {
			return &rows[i]
		}
	}
	return nil
}

func TestDateRange(t *testing.T) {
	from := time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC)
	to := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	start, end := DateRange(from, to)
	assert.Equal(t, time.Date(2026, 2, 28, 17, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC), end.UTC())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-01")
	require.NoError(t, err)
	assert.True(t, d.Equal(day))

	_, err = ParseDate("03/01/2026")
	assert.Error(t, err)
}

func TestErrorRate(t *testing.T) {
	assert.Equal(t, 0.0, ErrorRate(3, 0))
	assert.Equal(t, 50.0, ErrorRate(1, 2))
	assert.Equal(t, 33.33, ErrorRate(1, 3))
}

func TestGetQualityStats_VersionPinning(t *testing.T) {
	agg, _, configs := setup(
		[]model.KeyingAmountDocument{keyingDoc("d1", 2, 1, true)},
		[]model.MistakeReport{report("d1", 2, 1,
			qcMistake("d1", "a", "r1", "", "12", "15"),
			qcMistake("d1", "z", "r1", "", "x", "y"),
		)},
	)
	configs.On("FieldConfiguration", mock.Anything, "p1", 2).Return(&model.FieldConfiguration{
		Version: 2,
		Fields: []model.FieldDefinition{
			{Name: "a", Criticality: "critical"},
			{Name: "b", Criticality: "critical"},
		},
	}, nil)
	configs.On("Threshold", mock.Anything, "p1", 1).Return(&model.ProjectThreshold{
		Version: 1,
		Thresholds: []model.Threshold{
			{Scope: model.ScopeDocument, Type: "all", Value: 5},
			{Scope: model.ScopeField, Type: "critical", Value: 10},
		},
	}, nil)

	rows, err := agg.GetQualityStats(context.Background(), "p1", day, day, "")
	require.NoError(t, err)
	configs.AssertNotCalled(t, "FieldConfiguration", mock.Anything, "p1", 5)
	configs.AssertNumberOfCalls(t, "FieldConfiguration", 1)

	doc := findRow(rows, model.LevelDocument, "all")
	require.NotNil(t, doc)
	assert.Equal(t, "2026-03-01", doc.ImportedDate)
	assert.Equal(t, 1, doc.TotalError)
	assert.Equal(t, 1, doc.TotalKeying)
	assert.Equal(t, 1, doc.TotalSample)
	assert.Equal(t, 100.0, doc.ErrorRate)
	require.NotNil(t, doc.Passed)
	assert.False(t, *doc.Passed)
	assert.Equal(t, []int{2}, doc.FieldConfigVersions)
	assert.Equal(t, []int{1}, doc.ThresholdVersions)

	field := findRow(rows, model.LevelField, "critical")
	require.NotNil(t, field)
	assert.Equal(t, 1, field.TotalError, "unconfigured field z is ignored")
	assert.Equal(t, 4, field.TotalKeying)
	assert.Equal(t, 4, field.TotalSample)
	assert.Equal(t, 25.0, field.ErrorRate)
	require.NotNil(t, field.ThresholdValue)
	assert.Equal(t, 10.0, *field.ThresholdValue)

	rec := findRow(rows, model.LevelRecord, model.NoThreshold)
	require.NotNil(t, rec)
	assert.Nil(t, rec.ThresholdValue)
	assert.Nil(t, rec.Passed)
	assert.Equal(t, 1, rec.TotalError)
	assert.Equal(t, 1, rec.TotalKeying)

	char := findRow(rows, model.LevelCharacter, model.NoThreshold)
	require.NotNil(t, char)
	assert.Equal(t, 1, char.TotalError, "levenshtein(12, 15)")
	assert.Equal(t, 20, char.TotalKeying)

	assert.Len(t, rows, 5)
	assert.Equal(t, model.LevelDocument, rows[0].ReportLevel)
	assert.Equal(t, model.LevelCharacter, rows[4].ReportLevel)
}

func TestGetQualityStats_MergesVersionGroups(t *testing.T) {
	agg, _, configs := setup(
		[]model.KeyingAmountDocument{keyingDoc("d1", 1, 1, true), keyingDoc("d2", 2, 1, true)},
		[]model.MistakeReport{report("d1", 1, 1, qcMistake("d1", "a", "r1", "", "1", "2"))},
	)
	configs.On("FieldConfiguration", mock.Anything, "p1", 1).Return(nil, versioned.ErrNotFound)
	configs.On("FieldConfiguration", mock.Anything, "p1", 2).Return(&model.FieldConfiguration{Version: 2}, nil)
	configs.On("Threshold", mock.Anything, "p1", 1).Return(&model.ProjectThreshold{
		Thresholds: []model.Threshold{{Scope: model.ScopeDocument, Type: "all", Value: 60}},
	}, nil)

	rows, err := agg.GetQualityStats(context.Background(), "p1", day, day, model.LevelDocument)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, "p1", r.ProjectID)
	assert.Equal(t, 1, r.TotalError)
	assert.Equal(t, 2, r.TotalKeying)
	assert.Equal(t, 2, r.TotalSample)
	assert.Equal(t, 50.0, r.ErrorRate)
	require.NotNil(t, r.Passed)
	assert.True(t, *r.Passed)
	assert.Equal(t, []int{1, 2}, r.FieldConfigVersions)
	assert.Equal(t, []int{1}, r.ThresholdVersions)
	configs.AssertNumberOfCalls(t, "Threshold", 1)
}

func TestGetQualityStats_QualifyingPredicate(t *testing.T) {
	notErr := model.ErrorTypeNotError
	suggestion := model.ErrorTypeSuggestion

	excluded := qcMistake("d1", "a", "r1", "", "1", "2")
	excluded.ErrorType = &notErr
	suggested := qcMistake("d1", "b", "r2", "", "1", "2")
	suggested.ErrorType = &suggestion
	verify := qcMistake("d1", "c", "r3", "", "1", "2")
	verify.ErrorFoundAt = model.FoundAtVerify
	notApproved := qcMistake("d1", "d", "r4", "", "1", "2")
	notApproved.TaskFinalName = "qc_review"

	agg, _, configs := setup(
		[]model.KeyingAmountDocument{keyingDoc("d1", 0, 0, false)},
		[]model.MistakeReport{report("d1", 0, 0, excluded, suggested, verify, notApproved)},
	)
	configs.On("FieldConfiguration", mock.Anything, "p1", 0).Return(&model.FieldConfiguration{}, nil)
	configs.On("Threshold", mock.Anything, "p1", 0).Return(&model.ProjectThreshold{}, nil)

	rows, err := agg.GetQualityStats(context.Background(), "p1", day, day, "")
	require.NoError(t, err)

	doc := findRow(rows, model.LevelDocument, model.NoThreshold)
	require.NotNil(t, doc)
	assert.Equal(t, 1, doc.TotalError, "document level does not require an approval final step")
	assert.Equal(t, 0, doc.TotalSample)
	assert.Equal(t, 0.0, doc.ErrorRate)

	rec := findRow(rows, model.LevelRecord, model.NoThreshold)
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.TotalError)

	assert.Nil(t, findRow(rows, model.LevelField, model.NoThreshold), "no configured fields")
}

func TestGetQualityStats_LineAndCharacter(t *testing.T) {
	early := qcMistake("d1", "amount", "r1", "L1", "abc", "sitting")
	early.CapturedKeyerAt = day.Add(time.Hour)
	late := qcMistake("d1", "amount", "r1", "L1", "kitten", "sitting")
	late.CapturedKeyerAt = day.Add(2 * time.Hour)
	other := qcMistake("d1", "amount", "r1", "L2", "5", "6")

	agg, _, configs := setup(
		[]model.KeyingAmountDocument{keyingDoc("d1", 0, 0, true)},
		[]model.MistakeReport{report("d1", 0, 0, late, early, other)},
	)
	configs.On("FieldConfiguration", mock.Anything, "p1", 0).Return(nil, versioned.ErrNotFound)
	configs.On("Threshold", mock.Anything, "p1", 0).Return(&model.ProjectThreshold{
		Thresholds: []model.Threshold{
			{Scope: model.ScopeLineItem, Type: "line", Value: 50},
			{Scope: model.ScopeLineItem, Type: "line_strict", Value: 1},
		},
	}, nil)

	rows, err := agg.GetQualityStats(context.Background(), "p1", day, day, model.LevelLineItem)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "line", rows[0].ThresholdType)
	assert.Equal(t, 2, rows[0].TotalError)
	assert.Equal(t, 2, rows[0].TotalKeying)
	assert.Equal(t, 100.0, rows[0].ErrorRate)
	assert.Equal(t, "line_strict", rows[1].ThresholdType)

	rows, err = agg.GetQualityStats(context.Background(), "p1", day, day, model.LevelCharacter)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3+1, rows[0].TotalError, "latest capture per location: kitten->sitting plus 5->6")
}

func TestGetQualityStats_MistakesFollowKeyingStamp(t *testing.T) {
	// The mistake row carries an older stamp than the reprocessed keying row.
	agg, _, configs := setup(
		[]model.KeyingAmountDocument{keyingDoc("d1", 2, 1, true)},
		[]model.MistakeReport{report("d1", 1, 1, qcMistake("d1", "a", "r1", "", "1", "2"))},
	)
	configs.On("FieldConfiguration", mock.Anything, "p1", 2).Return(&model.FieldConfiguration{Version: 2}, nil)
	configs.On("Threshold", mock.Anything, "p1", 1).Return(&model.ProjectThreshold{}, nil)

	rows, err := agg.GetQualityStats(context.Background(), "p1", day, day, model.LevelDocument)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].TotalError)
	assert.Equal(t, 1, rows[0].TotalKeying)
	assert.Equal(t, 1, rows[0].TotalSample)
	assert.Equal(t, []int{2}, rows[0].FieldConfigVersions)
	configs.AssertNotCalled(t, "FieldConfiguration", mock.Anything, "p1", 1)
}

func TestGetQualityStats_SkipsGroupsWithoutKeying(t *testing.T) {
	agg, _, configs := setup(
		nil,
		[]model.MistakeReport{report("d1", 0, 0, qcMistake("d1", "a", "r1", "", "1", "2"))},
	)

	rows, err := agg.GetQualityStats(context.Background(), "p1", day, day, "")
	require.NoError(t, err)
	assert.Empty(t, rows)
	configs.AssertNotCalled(t, "FieldConfiguration", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetQualityStats_BucketsByZoneDate(t *testing.T) {
	k := keyingDoc("d1", 0, 0, true)
	k.ImportedDate = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	agg, _, configs := setup([]model.KeyingAmountDocument{k}, nil)
	configs.On("FieldConfiguration", mock.Anything, "p1", 0).Return(&model.FieldConfiguration{}, nil)
	configs.On("Threshold", mock.Anything, "p1", 0).Return(&model.ProjectThreshold{}, nil)

	rows, err := agg.GetQualityStats(context.Background(), "p1", day, day.AddDate(0, 0, 1), model.LevelDocument)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-03-02", rows[0].ImportedDate)
}

func TestGetQualityStats_Errors(t *testing.T) {
	t.Run("inverted range", func(t *testing.T) {
		agg, _, _ := setup(nil, nil)
		_, err := agg.GetQualityStats(context.Background(), "p1", day, day.AddDate(0, 0, -1), "")
		assert.Error(t, err)
	})

	t.Run("unknown level", func(t *testing.T) {
		agg, _, _ := setup(nil, nil)
		_, err := agg.GetQualityStats(context.Background(), "p1", day, day, "page")
		assert.Error(t, err)
	})

	t.Run("reader failure", func(t *testing.T) {
		results := &mockResults{}
		results.On("ListKeyingAmounts", mock.Anything, "p1", mock.Anything, mock.Anything).
			Return(nil, errors.New("connection refused"))
		agg := New(results, &mockConfigs{}, staticPatterns{})

		_, err := agg.GetQualityStats(context.Background(), "p1", day, day, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "keying amounts for p1")
	})

	t.Run("config failure", func(t *testing.T) {
		agg, _, configs := setup([]model.KeyingAmountDocument{keyingDoc("d1", 3, 0, true)}, nil)
		configs.On("FieldConfiguration", mock.Anything, "p1", 3).Return(nil, errors.New("timeout"))

		_, err := agg.GetQualityStats(context.Background(), "p1", day, day, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "field configuration v3")
	})
}
