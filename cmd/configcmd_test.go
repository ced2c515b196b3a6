//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/keying-qc/internal/model"
)

const seedYAML = `
settings:
  QC_PATTERN: "(?i)qc"
  AQC_PATTERN: "(?i)aqc"
projects:
  - id: invoices
    name: Invoices
    active: true
    multi_row_sections: [Line]
    field_not_count: [page_no]
    fields:
      - name: invoice_no
        criticality: critical
      - name: vendor
        criticality: normal
    thresholds:
      - scope: Document
        type: all
        value: 5
      - scope: Field
        type: critical
        value: 1
  - id: receipts
    name: Receipts
    active: false
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type fakeConfigWriter struct {
	settings map[string]string
	projects []model.Project
	ensured  []string
	fields   map[string][]model.FieldDefinition
	thresh   map[string][]model.Threshold
}

func newFakeConfigWriter() *fakeConfigWriter {
	return &fakeConfigWriter{
		settings: map[string]string{},
		fields:   map[string][]model.FieldDefinition{},
		thresh:   map[string][]model.Threshold{},
	}
}

func (f *fakeConfigWriter) UpsertProject(_ context.Context, p model.Project) error {
	f.projects = append(f.projects, p)
	return nil
}

func (f *fakeConfigWriter) EnsureProjectTables(_ context.Context, projectID string) error {
	f.ensured = append(f.ensured, projectID)
	return nil
}

func (f *fakeConfigWriter) SetSetting(_ context.Context, key, value string) error {
	f.settings[key] = value
	return nil
}

func (f *fakeConfigWriter) SetFields(_ context.Context, projectID, actor string, fields []model.FieldDefinition) (*model.FieldConfiguration, error) {
	f.fields[projectID] = fields
	return &model.FieldConfiguration{ProjectID: projectID, Version: 1, IsActive: true, Fields: fields, CreatedBy: actor}, nil
}

func (f *fakeConfigWriter) SetThresholds(_ context.Context, projectID, actor string, thresholds []model.Threshold) (*model.ProjectThreshold, error) {
	f.thresh[projectID] = thresholds
	return &model.ProjectThreshold{ProjectID: projectID, Version: 1, IsActive: true, Thresholds: thresholds, CreatedBy: actor}, nil
}

func TestParseSeed(t *testing.T) {
	s, err := parseSeed(writeFile(t, "seed.yaml", seedYAML))
	require.NoError(t, err)

	require.Len(t, s.Projects, 2)
	p := s.Projects[0]
	assert.Equal(t, "invoices", p.ID)
	assert.Equal(t, "Invoices", p.Name)
	assert.True(t, p.Active)
	assert.Equal(t, []string{"Line"}, p.MultiRowSections)
	assert.Equal(t, []string{"page_no"}, p.FieldNotCount)
	require.Len(t, p.Fields, 2)
	assert.Equal(t, "critical", p.Fields[0].Criticality)
	require.Len(t, p.Thresholds, 2)
	assert.Equal(t, model.ScopeDocument, p.Thresholds[0].Scope)
	assert.Equal(t, 5.0, p.Thresholds[0].Value)
	assert.False(t, s.Projects[1].Active)
	assert.Equal(t, "(?i)aqc", s.Settings["AQC_PATTERN"])
}

func TestParseSeed_Invalid(t *testing.T) {
	_, err := parseSeed(writeFile(t, "bad.yaml", "projects:\n  - id: \"bad id\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid project id")

	_, err = parseSeed(writeFile(t, "bad.yaml", "settings:\n  OTHER: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown setting")

	_, err = parseSeed(writeFile(t, "bad.yaml", "projects: [\n"))
	require.Error(t, err)

	_, err = parseSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplySeed(t *testing.T) {
	s, err := parseSeed(writeFile(t, "seed.yaml", seedYAML))
	require.NoError(t, err)

	w := newFakeConfigWriter()
	require.NoError(t, applySeed(context.Background(), s, w, w, "tester"))

	assert.Len(t, w.settings, 2)
	require.Len(t, w.projects, 2)
	assert.Equal(t, []string{"invoices", "receipts"}, w.ensured)
	assert.Len(t, w.fields["invoices"], 2)
	assert.Len(t, w.thresh["invoices"], 2)
	_, wroteReceipts := w.fields["receipts"]
	assert.False(t, wroteReceipts, "projects without fields keep their current version")
}

func TestReadYAML_Lists(t *testing.T) {
	var thresholds []model.Threshold
	require.NoError(t, readYAML(writeFile(t, "t.yaml", "- scope: Character\n  type: all\n  value: 0.5\n"), &thresholds))
	require.Len(t, thresholds, 1)
	assert.Equal(t, model.ScopeCharacter, thresholds[0].Scope)
	assert.Equal(t, 0.5, thresholds[0].Value)
}
