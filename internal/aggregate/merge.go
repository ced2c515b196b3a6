package aggregate

import (
	"math"
	"sort"
	"strconv"

	"github.com/sells-group/keying-qc/internal/model"
)

type mergeKey struct {
	date          string
	level         model.ReportLevel
	thresholdType string
	value         string
}

type mergedRow struct {
	row               model.StatRow
	fieldVersions     map[int]bool
	thresholdVersions map[int]bool
}

// merger sums partial rows that share a date, level and threshold across
// version groups.
type merger struct {
	rowsByKey map[mergeKey]*mergedRow
}

func newMerger() *merger {
	return &merger{rowsByKey: make(map[mergeKey]*mergedRow)}
}

func valueKey(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func (m *merger) add(g groupKey, p partial) {
	k := mergeKey{date: g.date, level: p.level, thresholdType: p.thresholdType, value: valueKey(p.thresholdValue)}
	r, ok := m.rowsByKey[k]
	if !ok {
		r = &mergedRow{
			row: model.StatRow{
				ImportedDate:   g.date,
				ReportLevel:    p.level,
				ThresholdType:  p.thresholdType,
				ThresholdValue: p.thresholdValue,
			},
			fieldVersions:     make(map[int]bool),
			thresholdVersions: make(map[int]bool),
		}
		m.rowsByKey[k] = r
	}
	r.row.TotalError += p.errors
	r.row.TotalKeying += p.keying
	r.row.TotalSample += p.sample
	r.fieldVersions[g.fieldVersion] = true
	r.thresholdVersions[g.thresholdVersion] = true
}

// rows finalizes rates and returns the merged rows sorted by date, level and
// threshold.
func (m *merger) rows(projectID string) []model.StatRow {
	out := make([]model.StatRow, 0, len(m.rowsByKey))
	for _, r := range m.rowsByKey {
		row := r.row
		row.ProjectID = projectID
		row.ErrorRate = ErrorRate(row.TotalError, row.TotalSample)
		if row.ThresholdValue != nil {
			passed := row.ErrorRate <= *row.ThresholdValue
			row.Passed = &passed
		}
		row.FieldConfigVersions = sortedKeys(r.fieldVersions)
		row.ThresholdVersions = sortedKeys(r.thresholdVersions)
		out = append(out, row)
	}

	order := make(map[model.ReportLevel]int, len(model.AllLevels))
	for i, l := range model.AllLevels {
		order[l] = i
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ImportedDate != b.ImportedDate {
			return a.ImportedDate < b.ImportedDate
		}
		if a.ReportLevel != b.ReportLevel {
			return order[a.ReportLevel] < order[b.ReportLevel]
		}
		if a.ThresholdType != b.ThresholdType {
			return a.ThresholdType < b.ThresholdType
		}
		return valueOrder(a.ThresholdValue) < valueOrder(b.ThresholdValue)
	})
	return out
}

// ErrorRate returns errors per sample as a percentage rounded to two
// decimals. An empty sample has a zero rate.
func ErrorRate(errors, sample int) float64 {
	if sample <= 0 {
		return 0
	}
	return math.Round(float64(errors)/float64(sample)*100*100) / 100
}

func valueOrder(v *float64) float64 {
	if v == nil {
		return math.Inf(-1)
	}
	return *v
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
