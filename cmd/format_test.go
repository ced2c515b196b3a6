//go:build !integration

package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/keying-qc/internal/aggregate"
	"github.com/sells-group/keying-qc/internal/job"
	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/store"
)

func TestStatsRange(t *testing.T) {
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC) // 2026-03-02 in GMT+7

	from, to, err := statsRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", from.Format(aggregate.DateLayout))
	assert.Equal(t, from, to)

	from, to, err = statsRange("2026-02-01", "2026-02-28", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01", from.Format(aggregate.DateLayout))
	assert.Equal(t, "2026-02-28", to.Format(aggregate.DateLayout))

	_, _, err = statsRange("2026-02-28", "2026-02-01", now)
	require.Error(t, err)

	_, _, err = statsRange("02/01/2026", "", now)
	require.Error(t, err)
}

func TestFormatSummary(t *testing.T) {
	var buf bytes.Buffer
	formatSummary(&buf, []job.ProjectSummary{
		{ProjectID: "p1", Processed: 10, Failed: 1, Retried: 2, Written: store.Written{Mistakes: 4, Effort: 12}},
		{ProjectID: "p2", Err: errors.New(strings.Repeat("x", 80))},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "PROJECT")
	assert.Equal(t, []string{"p1", "10", "1", "2", "4", "12"}, strings.Fields(lines[2]))
	assert.True(t, strings.HasSuffix(lines[3], "..."))
}

func TestFormatStatus(t *testing.T) {
	started := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	done := started.Add(90 * time.Second)

	var buf bytes.Buffer
	formatStatus(&buf, &started,
		[]store.RunEntry{
			{ID: 2, Status: store.RunComplete, StartedAt: started, CompletedAt: &done, DocumentsProcessed: 40},
			{ID: 3, Status: store.RunRunning, StartedAt: done},
		},
		[]model.Project{{ID: "p1", Active: true}, {ID: "p2"}},
		[]model.Checkpoint{{ProjectID: "p1", LastDocID: "d9", LastCompletedAt: started}, {ProjectID: "p2"}},
		3,
	)

	out := buf.String()
	assert.Contains(t, out, "Last successful run: 2026-03-02T01:00:00Z")
	assert.Contains(t, out, "Failed documents:    3")
	assert.Contains(t, out, "d9")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "running")

	buf.Reset()
	formatStatus(&buf, nil, nil, nil, nil, 0)
	assert.Contains(t, buf.String(), "Last successful run: never")
}

func TestFormatProject(t *testing.T) {
	created := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	formatProject(&buf,
		&model.Project{ID: "p1", Name: "Invoices", Active: true, MultiRowSections: []string{"Line"}},
		[]model.FieldConfiguration{{Version: 2, IsActive: true, Fields: []model.FieldDefinition{{Name: "a"}}, CreatedBy: "ops", CreatedAt: created}},
		[]model.ProjectThreshold{{Version: 1, IsActive: true, CreatedAt: created}},
	)

	out := buf.String()
	assert.Contains(t, out, "Project:    p1 (Invoices)")
	assert.Contains(t, out, "[Line]")
	assert.Contains(t, out, "fields")
	assert.Contains(t, out, "thresholds")
	assert.Contains(t, out, "ops")
}
