// Package aggregate computes version-aware quality statistics from persisted
// keying and mistake results.
package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/pattern"
)

// Zone is the business time zone imported dates are bucketed in.
var Zone = time.FixedZone("GMT+7", 7*60*60)

// DateLayout formats the imported date of a StatRow.
const DateLayout = "2006-01-02"

// ResultReader reads persisted results by imported-date range.
type ResultReader interface {
	ListKeyingAmounts(ctx context.Context, projectID string, from, to time.Time) ([]model.KeyingAmountDocument, error)
	ListMistakeReports(ctx context.Context, projectID string, from, to time.Time) ([]model.MistakeReport, error)
}

// PatternProvider returns the current step-name patterns.
type PatternProvider interface {
	Get(ctx context.Context) pattern.Patterns
}

// Aggregator computes quality statistics.
type Aggregator struct {
	results  ResultReader
	configs  ConfigSource
	patterns PatternProvider
}

// New creates an Aggregator.
func New(results ResultReader, configs ConfigSource, patterns PatternProvider) *Aggregator {
	return &Aggregator{results: results, configs: configs, patterns: patterns}
}

// DateRange converts an inclusive range of calendar days into the half-open
// instant range [from 00:00, to+1 00:00) in Zone.
func DateRange(from, to time.Time) (time.Time, time.Time) {
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, Zone)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, Zone).AddDate(0, 0, 1)
	return start, end
}

// ParseDate parses a YYYY-MM-DD calendar day in Zone.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, Zone)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "aggregate: invalid date %q", s)
	}
	return t, nil
}

type groupKey struct {
	date             string
	fieldVersion     int
	thresholdVersion int
}

type group struct {
	key      groupKey
	keying   []model.KeyingAmountDocument
	mistakes []model.MistakeRecord
}

// GetQualityStats returns the statistics of a project for the calendar days
// from..to (inclusive, Zone). An empty level selects every level.
func (a *Aggregator) GetQualityStats(ctx context.Context, projectID string, from, to time.Time, level model.ReportLevel) ([]model.StatRow, error) {
	if to.Before(from) {
		return nil, eris.Errorf("aggregate: date_to %s before date_from %s",
			to.Format(DateLayout), from.Format(DateLayout))
	}
	levels := model.AllLevels
	if level != "" {
		if _, err := model.ParseReportLevel(string(level)); err != nil {
			return nil, err
		}
		levels = []model.ReportLevel{level}
	}

	start, end := DateRange(from, to)
	keying, err := a.results.ListKeyingAmounts(ctx, projectID, start, end)
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: keying amounts for %s", projectID)
	}
	reports, err := a.results.ListMistakeReports(ctx, projectID, start, end)
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: mistake reports for %s", projectID)
	}

	patterns := a.patterns.Get(ctx)
	resolver := NewConfigResolver(a.configs, projectID)
	m := newMerger()

	groups := groupResults(keying, reports)
	for _, g := range groups {
		if len(g.keying) == 0 {
			continue
		}
		fc, err := resolver.Fields(ctx, g.key.fieldVersion)
		if err != nil {
			return nil, err
		}
		th, err := resolver.Thresholds(ctx, g.key.thresholdVersion)
		if err != nil {
			return nil, err
		}

		c := newCalc(g, fc, th, patterns)
		for _, l := range levels {
			for _, p := range c.rows(l) {
				m.add(g.key, p)
			}
		}
	}

	rows := m.rows(projectID)
	zap.L().Debug("quality stats computed",
		zap.String("component", "aggregate"),
		zap.String("project_id", projectID),
		zap.Int("keying_documents", len(keying)),
		zap.Int("mistake_reports", len(reports)),
		zap.Int("groups", len(groups)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// groupResults buckets both result sets by imported day and version stamp,
// ordered by key. A mistake report joins the group of its keying document.
func groupResults(keying []model.KeyingAmountDocument, reports []model.MistakeReport) []*group {
	byKey := make(map[groupKey]*group)
	get := func(k groupKey) *group {
		g, ok := byKey[k]
		if !ok {
			g = &group{key: k}
			byKey[k] = g
		}
		return g
	}

	keyOf := make(map[string]groupKey, len(keying))
	for _, k := range keying {
		key := groupKey{
			date:             k.ImportedDate.In(Zone).Format(DateLayout),
			fieldVersion:     k.FieldConfigVersion,
			thresholdVersion: k.ThresholdVersion,
		}
		keyOf[k.DocID] = key
		g := get(key)
		g.keying = append(g.keying, k)
	}
	// Mistakes follow their document's keying row, which carries the stamp
	// of the latest write.
	for _, r := range reports {
		key, ok := keyOf[r.DocID]
		if !ok {
			key = groupKey{
				date:             r.ImportedDate.In(Zone).Format(DateLayout),
				fieldVersion:     r.FieldConfigVersion,
				thresholdVersion: r.ThresholdVersion,
			}
		}
		g := get(key)
		g.mistakes = append(g.mistakes, r.Mistakes...)
	}

	out := make([]*group, 0, len(byKey))
	for _, g := range byKey {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].key, out[j].key
		if a.date != b.date {
			return a.date < b.date
		}
		if a.fieldVersion != b.fieldVersion {
			return a.fieldVersion < b.fieldVersion
		}
		return a.thresholdVersion < b.thresholdVersion
	})
	return out
}
