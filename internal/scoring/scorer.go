package scoring

import (
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"go.uber.org/zap"
)

// Block identifies one stage x instrument item group.
type Block struct {
	Stage      string `json:"stage"`
	Instrument string `json:"instrument"`
}

// Scores is the scorer output: one row per respondent plus the blocks that
// had no columns in the input.
type Scores struct {
	Totals  *frame.Frame
	Skipped []Block
}

// Scorer aggregates item answers using the instrument registry.
type Scorer struct {
	reg *models.Registry
	log *zap.Logger
}

// NewScorer creates a scorer over a registry.
func NewScorer(reg *models.Registry, log *zap.Logger) *Scorer {
	return &Scorer{reg: reg, log: log.Named("scorer")}
}

// Score computes totals and subscales for every stage x instrument block
// present in merged. keep names identifier columns copied to the output.
//
// A block counts as present when at least one of its item columns exists;
// absent columns inside a present block read as missing items. Any missing
// item makes the dependent total or subscale missing.
func (s *Scorer) Score(merged *frame.Frame, keep ...string) Scores {
	var present []string
	for _, k := range keep {
		if merged.Has(k) {
			present = append(present, k)
		}
	}
	out := merged.Select(present...)
	var skipped []Block

	for _, stage := range s.reg.Stages {
		for _, inst := range s.reg.Instruments {
			cols := inst.StageColumns(stage.Name)
			if !anyColumn(merged, cols) {
				skipped = append(skipped, Block{Stage: stage.Name, Instrument: inst.Code})
				s.log.Debug("No columns for block, skipping",
					zap.String("stage", stage.Name), zap.String("instrument", inst.Code))
				continue
			}
			out = s.scoreBlock(out, merged, stage, inst)
		}
	}

	s.log.Info("Questionnaires scored",
		zap.Int("respondents", out.Len()),
		zap.Int("columns", len(out.Columns())),
		zap.Int("skipped_blocks", len(skipped)))
	return Scores{Totals: out, Skipped: skipped}
}

func (s *Scorer) scoreBlock(out, merged *frame.Frame, stage models.Stage, inst models.Instrument) *frame.Frame {
	items := func(r frame.Row) map[string]*float64 {
		vals := make(map[string]*float64, len(inst.Items))
		for _, it := range inst.Items {
			v, ok := r.Float(stage.Name + "_" + it)
			if !ok {
				vals[it] = nil
				continue
			}
			if inst.Recode == "binary" {
				v = binary(v)
			}
			vals[it] = &v
		}
		return vals
	}

	for _, sub := range inst.Subscales {
		sub := sub
		out = out.WithColumn(models.SubscaleColumn(stage.Prefix, inst.Code, sub.Name), func(r frame.Row) string {
			return formatScore(sumOf(items(merged.Row(r.Index())), sub.Items))
		})
	}

	out = out.WithColumn(models.TotalColumn(stage.Prefix, inst.Code), func(r frame.Row) string {
		vals := items(merged.Row(r.Index()))
		if len(inst.Pairs) > 0 {
			return formatScore(pairedTotal(vals, inst.Pairs))
		}
		return formatScore(sumOf(vals, inst.Items))
	})
	return out
}

// sumOf adds the named items; nil when any is missing.
func sumOf(vals map[string]*float64, names []string) *float64 {
	total := 0.0
	for _, n := range names {
		v := vals[n]
		if v == nil {
			return nil
		}
		total += *v
	}
	return &total
}

// pairedTotal averages each item pair and sums the averages.
func pairedTotal(vals map[string]*float64, pairs [][]string) *float64 {
	total := 0.0
	for _, p := range pairs {
		a, b := vals[p[0]], vals[p[1]]
		if a == nil || b == nil {
			return nil
		}
		total += (*a + *b) / 2
	}
	return &total
}

func formatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return frame.FormatFloat(*v)
}

func anyColumn(f *frame.Frame, cols []string) bool {
	for _, c := range cols {
		if f.Has(c) {
			return true
		}
	}
	return false
}
