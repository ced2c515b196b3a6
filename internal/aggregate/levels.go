package aggregate

import (
	"math"

	"github.com/agext/levenshtein"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/pattern"
)

// partial is an unmerged statistic of one group.
type partial struct {
	level          model.ReportLevel
	thresholdType  string
	thresholdValue *float64
	errors         int
	keying         int
	sample         int
}

type tally struct {
	errors, keying, sample int
}

type calc struct {
	keying     []model.KeyingAmountDocument
	mistakes   []model.MistakeRecord
	fields     *model.FieldConfiguration
	thresholds *model.ProjectThreshold
	patterns   pattern.Patterns
}

func newCalc(g *group, fc *model.FieldConfiguration, th *model.ProjectThreshold, p pattern.Patterns) *calc {
	mistakes := g.mistakes
	if names := fc.FieldNames(); len(names) > 0 {
		mistakes = make([]model.MistakeRecord, 0, len(g.mistakes))
		for _, m := range g.mistakes {
			if names.Has(m.FieldName) {
				mistakes = append(mistakes, m)
			}
		}
	}
	return &calc{
		keying:     g.keying,
		mistakes:   mistakes,
		fields:     fc,
		thresholds: th,
		patterns:   p,
	}
}

// qualifies reports whether a mistake counts against the keyer. Below
// document level the final step must also be an approval pass.
func (c *calc) qualifies(m model.MistakeRecord, requireApproval bool) bool {
	if m.ErrorFoundAt != model.FoundAtQC {
		return false
	}
	if m.ErrorType != nil {
		switch *m.ErrorType {
		case model.ErrorTypeNotError, model.ErrorTypeSuggestion:
			return false
		}
	}
	return !requireApproval || c.patterns.IsApproval(m.TaskFinalName)
}

func (c *calc) rows(level model.ReportLevel) []partial {
	var t tally
	switch level {
	case model.LevelField:
		return c.fieldRows()
	case model.LevelDocument:
		t = c.documentTally()
	case model.LevelRecord:
		t = c.recordTally()
	case model.LevelLineItem:
		t = c.lineTally()
	case model.LevelCharacter:
		t = c.characterTally()
	default:
		return nil
	}

	ths := c.thresholds.ForScope(level.Scope())
	if len(ths) == 0 {
		return []partial{newPartial(level, model.NoThreshold, nil, t)}
	}
	out := make([]partial, 0, len(ths))
	for _, th := range ths {
		v := th.Value
		typ := th.Type
		if typ == "" {
			typ = string(th.Scope)
		}
		out = append(out, newPartial(level, typ, &v, t))
	}
	return out
}

func newPartial(level model.ReportLevel, typ string, value *float64, t tally) partial {
	return partial{
		level:          level,
		thresholdType:  typ,
		thresholdValue: value,
		errors:         t.errors,
		keying:         t.keying,
		sample:         t.sample,
	}
}

// sumDocs adds f over all keying documents and over the QC'd ones.
func (c *calc) sumDocs(f func(k *model.KeyingAmountDocument) int) (keying, sample int) {
	for i := range c.keying {
		k := &c.keying[i]
		n := f(k)
		keying += n
		if k.WasQCed() {
			sample += n
		}
	}
	return keying, sample
}

func (c *calc) documentTally() tally {
	docs := make(map[string]bool)
	for _, m := range c.mistakes {
		if c.qualifies(m, false) {
			docs[m.DocID] = true
		}
	}
	t := tally{errors: len(docs), keying: len(c.keying)}
	for i := range c.keying {
		if c.keying[i].WasQCed() {
			t.sample++
		}
	}
	return t
}

func (c *calc) recordTally() tally {
	seen := make(map[[2]string]bool)
	for _, m := range c.mistakes {
		if c.qualifies(m, true) {
			seen[[2]string{m.DocID, m.SystemRecordID}] = true
		}
	}
	t := tally{errors: len(seen)}
	t.keying, t.sample = c.sumDocs(func(k *model.KeyingAmountDocument) int {
		return atLeastOne(k.TotalRecordDocument)
	})
	return t
}

func (c *calc) lineTally() tally {
	seen := make(map[[3]string]bool)
	for _, m := range c.mistakes {
		if m.LineID != "" && c.qualifies(m, true) {
			seen[[3]string{m.DocID, m.SystemRecordID, m.LineID}] = true
		}
	}
	t := tally{errors: len(seen)}
	t.keying, t.sample = c.sumDocs(func(k *model.KeyingAmountDocument) int {
		return atLeastOne(k.TotalLineDocument)
	})
	return t
}

func (c *calc) characterTally() tally {
	latest := make(map[string]model.MistakeRecord)
	for _, m := range c.mistakes {
		if !c.qualifies(m, true) {
			continue
		}
		key := m.LocationKey()
		if prev, ok := latest[key]; ok && m.CapturedKeyerAt.Before(prev.CapturedKeyerAt) {
			continue
		}
		latest[key] = m
	}

	var t tally
	for _, m := range latest {
		t.errors += levenshtein.Distance(m.ValueKeyer, m.ValueFinal, nil)
	}
	t.keying, t.sample = c.sumDocs(func(k *model.KeyingAmountDocument) int {
		return k.TotalCharacterDocument
	})
	return t
}

// fieldRows produces one row per criticality bucket and matching Field
// threshold. Keying and sample are the document field totals scaled by the
// bucket's share of configured fields.
func (c *calc) fieldRows() []partial {
	total := len(c.fields.Fields)
	if total == 0 {
		return nil
	}
	labels, byLabel := c.fields.Buckets()
	ths := c.thresholds.ForScope(model.ScopeField)

	var out []partial
	for _, label := range labels {
		names := model.NewSet(byLabel[label])

		seen := make(map[string]bool)
		for _, m := range c.mistakes {
			if names.Has(m.FieldName) && c.qualifies(m, true) {
				seen[m.LocationKey()] = true
			}
		}

		share := float64(len(byLabel[label])) / float64(total)
		t := tally{errors: len(seen)}
		t.keying, t.sample = c.sumDocs(func(k *model.KeyingAmountDocument) int {
			return int(math.Round(float64(k.TotalFieldDocument) * share))
		})

		matched := false
		for _, th := range ths {
			if th.Type != label {
				continue
			}
			v := th.Value
			out = append(out, newPartial(model.LevelField, label, &v, t))
			matched = true
		}
		if !matched {
			typ := label
			if typ == "" {
				typ = model.NoThreshold
			}
			out = append(out, newPartial(model.LevelField, typ, nil, t))
		}
	}
	return out
}

func atLeastOne(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
