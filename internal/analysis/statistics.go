// Package analysis computes the baseline/exit outcome statistics of the
// final participant table and renders the pre-post figure.
package analysis

import (
	"fmt"
	"math"

	"journaling-go/internal/config"
	"journaling-go/internal/frame"
	"journaling-go/internal/metrics"
	"journaling-go/internal/models"

	"go.uber.org/zap"
)

// AllGroups labels the pooled row of each measure.
const AllGroups = "All groups"

const notAvailable = "N/A"

// Measure is one outcome questionnaire compared between baseline and exit.
type Measure struct {
	Code      string
	Label     string
	Display   string
	MaxPoints float64
}

// outcomeMeasures are the core outcome measures in table order.
var outcomeMeasures = []Measure{
	{Code: "WEMWBS", Label: "WEMWBS (14-70)", Display: "Wellbeing"},
	{Code: "GAD7", Label: "GAD-7 (0-21)", Display: "Anxiety"},
	{Code: "PHQ9", Label: "PHQ-9 (0-27)", Display: "Depression"},
}

// Measures returns the outcome measures with their maximum score taken from
// the instrument registry.
func Measures(reg *models.Registry) ([]Measure, error) {
	out := make([]Measure, len(outcomeMeasures))
	for i, m := range outcomeMeasures {
		inst, ok := reg.Instrument(m.Code)
		if !ok {
			return nil, fmt.Errorf("instrument %s is not in the registry", m.Code)
		}
		if inst.MaxPoints <= 0 {
			return nil, fmt.Errorf("instrument %s has no max_points", m.Code)
		}
		m.MaxPoints = inst.MaxPoints
		out[i] = m
	}
	return out, nil
}

// StatisticsColumns is the header of the group statistics table.
var StatisticsColumns = []string{
	"Measure", "Study Group", "No. Ppt.", "Baseline Mean", "Baseline St.Dev",
	"Exit Mean", "Exit St.Dev", "Mean Diff.", "%", "Cohen's d", "95% CI",
	"Z-Stat.", "P-Value", "P-Value (FDR)", "Sig.",
}

// GroupStat is one row of the statistics table.
type GroupStat struct {
	Measure      string                 `json:"measure"`
	Group        string                 `json:"group"`
	N            int                    `json:"n"`
	BaselineMean metrics.MetricResult   `json:"baselineMean"`
	BaselineSD   metrics.MetricResult   `json:"baselineSd"`
	ExitMean     metrics.MetricResult   `json:"exitMean"`
	ExitSD       metrics.MetricResult   `json:"exitSd"`
	MeanDiff     float64                `json:"meanDiff"`
	PercentOfMax float64                `json:"percentOfMax"`
	Tested       bool                   `json:"tested"`
	CohensD      metrics.MetricResult   `json:"cohensD"`
	CI           metrics.Interval       `json:"ci"`
	Wilcoxon     metrics.WilcoxonResult `json:"wilcoxon"`
	PAdjusted    float64                `json:"pAdjusted"`
}

// Paired returns the baseline and exit totals of participants that have both.
func Paired(participants *frame.Frame, code string) (baseline, exit []float64) {
	b, e := models.TotalColumn(models.BaselinePrefix, code), models.TotalColumn(models.ExitPrefix, code)
	for _, r := range participants.Rows() {
		bv, ok1 := r.Float(b)
		ev, ok2 := r.Float(e)
		if ok1 && ok2 {
			baseline = append(baseline, bv)
			exit = append(exit, ev)
		}
	}
	return baseline, exit
}

// GroupStatistics computes, per measure, the pooled row and one row per
// configured study group present in the data. Groups smaller than
// MinGroupSize are described but not tested. P-values are corrected with
// Benjamini-Hochberg across every tested row.
func GroupStatistics(participants *frame.Frame, measures []Measure, conf config.AnalysisConfig, log *zap.Logger) []GroupStat {
	var out []GroupStat
	for _, m := range measures {
		out = append(out, describe(m, AllGroups, participants, conf, true))
		for _, g := range conf.Groups {
			sub := participants.Filter(func(r frame.Row) bool { return r.Get(models.ColStudyGroup) == g })
			if sub.Len() == 0 {
				continue
			}
			label := g
			if l, ok := conf.GroupLabels[g]; ok {
				label = l
			}
			out = append(out, describe(m, label, sub, conf, sub.Len() >= conf.MinGroupSize))
		}
	}

	var idx []int
	var ps []float64
	for i, s := range out {
		if s.Tested {
			idx = append(idx, i)
			ps = append(ps, s.Wilcoxon.PValue)
		}
	}
	for k, adj := range metrics.BenjaminiHochberg(ps) {
		out[idx[k]].PAdjusted = adj
	}

	log.Info("Group statistics computed",
		zap.Int("participants", participants.Len()),
		zap.Int("rows", len(out)),
		zap.Int("tested", len(ps)))
	return out
}

func describe(m Measure, group string, f *frame.Frame, conf config.AnalysisConfig, test bool) GroupStat {
	b, e := Paired(f, m.Code)
	s := GroupStat{
		Measure:      m.Label,
		Group:        group,
		N:            f.Len(),
		BaselineMean: metrics.Mean(b),
		BaselineSD:   metrics.StdDev(b),
		ExitMean:     metrics.Mean(e),
		ExitSD:       metrics.StdDev(e),
	}
	s.MeanDiff = s.ExitMean.Value - s.BaselineMean.Value
	s.PercentOfMax = s.MeanDiff / m.MaxPoints * 100
	if !test {
		return s
	}
	w, ok := metrics.Wilcoxon(b, e)
	if !ok {
		return s
	}
	s.Tested = true
	s.Wilcoxon = w
	s.CohensD = metrics.CohensDav(b, e)
	s.CI, _ = metrics.PairedCI(b, e, conf.ConfidenceLevel)
	return s
}

// Values renders the row with the table's fixed number formats.
func (s GroupStat) Values() []string {
	// Only the pooled row names the measure.
	measure := ""
	if s.Group == AllGroups {
		measure = s.Measure
	}
	row := []string{
		measure, s.Group, fmt.Sprint(s.N),
		fixed(s.BaselineMean, "%.2f"), fixed(s.BaselineSD, "%.2f"),
		fixed(s.ExitMean, "%.2f"), fixed(s.ExitSD, "%.2f"),
		signed(s.MeanDiff, "%+.2f"), signed(s.PercentOfMax, "%+.1f"),
	}
	if !s.Tested {
		return append(row, notAvailable, notAvailable, notAvailable, notAvailable, notAvailable, notAvailable)
	}
	return append(row,
		fixed(s.CohensD, "%.3f"),
		fmt.Sprintf("[%.2f, %.2f]", s.CI.Lower, s.CI.Upper),
		fmt.Sprintf("%.1f", s.Wilcoxon.Statistic),
		fmt.Sprintf("%.4f", s.Wilcoxon.PValue),
		fmt.Sprintf("%.4f", s.PAdjusted),
		metrics.SignificanceLabel(s.PAdjusted),
	)
}

func fixed(r metrics.MetricResult, format string) string {
	if !r.Calculated {
		return notAvailable
	}
	return fmt.Sprintf(format, r.Value)
}

func signed(v float64, format string) string {
	if math.IsNaN(v) {
		return notAvailable
	}
	return fmt.Sprintf(format, v)
}

// StatisticsFrame lays the rows out as the published table.
func StatisticsFrame(stats []GroupStat) *frame.Frame {
	rows := make([][]string, len(stats))
	for i, s := range stats {
		rows[i] = s.Values()
	}
	return frame.New(StatisticsColumns, rows)
}
