package filter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"journaling-go/internal/config"
	"journaling-go/internal/entries"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"go.uber.org/zap"
)

const wemwbs = "WEMWBS"

// Result is the participant-level output of the final filter.
type Result struct {
	Participants *frame.Frame
	Reports      []models.StageReport
	// OutcomeFiltered is false when stage 7 did not run; the participant set
	// then includes unclassified and excluded outcomes.
	OutcomeFiltered bool
	Excluded        map[string]int
}

// ParticipantIDs lists the surviving participants in output order.
func (r Result) ParticipantIDs() []string {
	return r.Participants.Column(models.ColParticipantID)
}

// FinalFilter applies the ordered eligibility cascade to an entry-level table.
type FinalFilter struct {
	conf config.FilterConfig
	log  *zap.Logger
}

// NewFinalFilter creates a FinalFilter bound to an immutable configuration.
func NewFinalFilter(conf config.FilterConfig, log *zap.Logger) *FinalFilter {
	return &FinalFilter{conf: conf, log: log.Named("final_filter")}
}

// RequiredColumns returns the baseline and exit totals every participant
// must have.
func (ff *FinalFilter) RequiredColumns() []string {
	cols := make([]string, 0, 2*len(ff.conf.RequiredMeasures))
	for _, m := range ff.conf.RequiredMeasures {
		cols = append(cols, models.TotalColumn(models.BaselinePrefix, m), models.TotalColumn(models.ExitPrefix, m))
	}
	return cols
}

func (ff *FinalFilter) contentColumn() string {
	if ff.conf.ContentColumn != "" {
		return ff.conf.ContentColumn
	}
	return models.ColAnonymised
}

func (ff *FinalFilter) record(res *Result, rep models.StageReport) {
	res.Reports = append(res.Reports, rep)
	if rep.Skipped {
		ff.log.Info("Stage skipped",
			zap.Int("stage", rep.Stage),
			zap.String("name", rep.Name),
			zap.String("note", rep.Note))
		return
	}
	ff.log.Info("Stage applied",
		zap.Int("stage", rep.Stage),
		zap.String("name", rep.Name),
		zap.String("unit", rep.Unit),
		zap.Int("before", rep.Before),
		zap.Int("after", rep.After),
		zap.Int("removed", rep.Removed))
}

// Apply runs stages 1 to 7, then adds Change_{Measure} and MeanWordCount.
// outcomes maps ParticipantID to its study outcome; nil or empty skips
// stage 7 with a warning. The input is never modified.
func (ff *FinalFilter) Apply(in *frame.Frame, outcomes map[string]string) (Result, error) {
	required := ff.RequiredColumns()
	for _, c := range required {
		if !in.Has(c) {
			return Result{}, fmt.Errorf("input has no %s column", c)
		}
	}
	content := ff.contentColumn()
	res := Result{}
	ff.log.Info("Starting final participant filtering",
		zap.Int("entries", in.Len()),
		zap.Int("participants", in.NUnique(models.ColParticipantID)))

	// 1: complete mental health data.
	df := in.Filter(func(r frame.Row) bool {
		for _, c := range required {
			if _, ok := r.Float(c); !ok {
				return false
			}
		}
		return true
	})
	ff.record(&res, models.NewStageReport(1, "complete mental health data", "entries", in.Len(), df.Len()))

	// 2: non-zero WEMWBS.
	if ff.conf.EnforceNonzeroWEMWBS && in.Has(models.TotalColumn(models.BaselinePrefix, wemwbs)) {
		before := df.Len()
		// Only a recorded zero excludes; a missing total is left to stage 1.
		isZero := func(r frame.Row, col string) bool {
			v, ok := r.Float(col)
			return ok && v == 0
		}
		df = df.Filter(func(r frame.Row) bool {
			return !isZero(r, models.TotalColumn(models.BaselinePrefix, wemwbs)) &&
				!isZero(r, models.TotalColumn(models.ExitPrefix, wemwbs))
		})
		ff.record(&res, models.NewStageReport(2, "non-zero WEMWBS", "entries", before, df.Len()))
	} else {
		ff.record(&res, models.SkippedStage(2, "non-zero WEMWBS", "entries", df.Len(), "disabled"))
	}

	// 3: word count of the anonymised content.
	before := df.Len()
	df = df.WithColumn(models.ColWordCount, func(r frame.Row) string {
		if r.Missing(content) {
			return ""
		}
		return frame.FormatFloat(float64(entries.WordCount(r.Get(content))))
	}).Filter(func(r frame.Row) bool {
		n, ok := r.Float(models.ColWordCount)
		return ok && n >= float64(ff.conf.MinWordCount)
	})
	ff.record(&res, models.NewStageReport(3, fmt.Sprintf("at least %d words", ff.conf.MinWordCount), "entries", before, df.Len()))

	// 4: entry type.
	if ff.conf.ExcludeType != "" {
		before = df.Len()
		df = df.Filter(func(r frame.Row) bool { return r.Get(models.ColType) != ff.conf.ExcludeType })
		ff.record(&res, models.NewStageReport(4, fmt.Sprintf("exclude %s entries", ff.conf.ExcludeType), "entries", before, df.Len()))
	} else {
		ff.record(&res, models.SkippedStage(4, "exclude entry type", "entries", df.Len(), "disabled"))
	}

	// 5: entries per participant, counted over the survivors of 1-4.
	counts := df.Counts(models.ColParticipantID)
	participantsBefore := len(counts)
	entriesBefore := df.Len()
	df = df.WithColumn(models.ColEntryCount, func(r frame.Row) string {
		if r.Missing(models.ColParticipantID) {
			return ""
		}
		return frame.FormatFloat(float64(counts[r.Get(models.ColParticipantID)]))
	}).Filter(func(r frame.Row) bool {
		pid := r.Get(models.ColParticipantID)
		return pid != "" && counts[pid] >= ff.conf.MinEntriesPerParticipant
	})
	rep := models.NewStageReport(5, fmt.Sprintf("at least %d entries", ff.conf.MinEntriesPerParticipant),
		"participants", participantsBefore, df.NUnique(models.ColParticipantID))
	rep.Note = fmt.Sprintf("entries %d -> %d", entriesBefore, df.Len())
	ff.record(&res, rep)

	meanWords := meanWordCount(df)

	// 6: first row per participant.
	participants := df.GroupFirst(models.ColParticipantID)
	ff.record(&res, models.NewStageReport(6, "first row per participant", "rows", df.Len(), participants.Len()))

	// 7: study outcome.
	participants, res.OutcomeFiltered, res.Excluded = ff.outcomeStage(&res, participants, outcomes)

	for _, m := range ff.conf.RequiredMeasures {
		b, e := models.TotalColumn(models.BaselinePrefix, m), models.TotalColumn(models.ExitPrefix, m)
		participants = participants.WithColumn(models.ChangeColumn(m), func(r frame.Row) string {
			bv, ok1 := r.Float(b)
			ev, ok2 := r.Float(e)
			if !ok1 || !ok2 {
				return ""
			}
			return frame.FormatFloat(ev - bv)
		})
	}
	participants = participants.WithColumn(models.ColMeanWordCount, func(r frame.Row) string {
		return meanWords[r.Get(models.ColParticipantID)]
	})
	res.Participants = participants

	ff.logSummary(participants, required)
	return res, nil
}

func (ff *FinalFilter) outcomeStage(res *Result, participants *frame.Frame, outcomes map[string]string) (*frame.Frame, bool, map[string]int) {
	const name = "eligible study outcome"
	if !ff.conf.EligibleOnly {
		ff.record(res, models.SkippedStage(7, name, "participants", participants.Len(), "disabled"))
		return participants, false, nil
	}
	if len(outcomes) == 0 {
		ff.log.Warn("No study outcome data available, skipping outcome filtering; participants are NOT outcome-filtered",
			zap.Int("participants", participants.Len()))
		ff.record(res, models.SkippedStage(7, name, "participants", participants.Len(), "outcome file missing"))
		return participants, false, nil
	}

	labelled := participants.WithColumn(models.ColStudyOutcome, func(r frame.Row) string {
		return outcomes[r.Get(models.ColParticipantID)]
	})
	allowed := toSet(ff.conf.EligibleOutcomes)
	excluded := map[string]int{}
	kept := labelled.Filter(func(r frame.Row) bool {
		o := r.Get(models.ColStudyOutcome)
		if allowed[o] {
			return true
		}
		if o == "" {
			o = string(models.OutcomeUnclassified)
		}
		excluded[o]++
		return false
	})
	ff.record(res, models.NewStageReport(7, name, "participants", labelled.Len(), kept.Len()))
	if len(excluded) > 0 {
		ff.log.Info("Breakdown of excluded participants", zap.Any("outcomes", excluded))
	}
	return kept, true, excluded
}

func meanWordCount(df *frame.Frame) map[string]string {
	sums := map[string]float64{}
	ns := map[string]int{}
	for _, r := range df.Rows() {
		n, ok := r.Float(models.ColWordCount)
		if !ok {
			continue
		}
		pid := r.Get(models.ColParticipantID)
		sums[pid] += n
		ns[pid]++
	}
	out := make(map[string]string, len(sums))
	for pid, s := range sums {
		out[pid] = frame.FormatFloat(s / float64(ns[pid]))
	}
	return out
}

func (ff *FinalFilter) logSummary(participants *frame.Frame, required []string) {
	groups := participants.Counts(models.ColStudyGroup)
	keys := make([]string, 0, len(groups))
	for g := range groups {
		keys = append(keys, g)
	}
	sort.Strings(keys)
	for _, g := range keys {
		ff.log.Info("Study group", zap.String("group", g), zap.Int("participants", groups[g]))
	}
	for _, c := range required {
		ff.log.Info("Measure available",
			zap.String("column", c),
			zap.Int("non_missing", participants.CountNonMissing(c)),
			zap.Int("participants", participants.Len()))
	}
	ff.log.Info("Final participant-level dataset", zap.Int("participants", participants.Len()))
}

// KeepParticipants is a pure membership filter on ParticipantID.
func KeepParticipants(f *frame.Frame, pids []string) *frame.Frame {
	return f.Filter(frame.IsIn(models.ColParticipantID, pids))
}

// WriteReport stores the stage reports as indented JSON.
func WriteReport(path string, reports []models.StageReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) ([]models.StageReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reports []models.StageReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return reports, nil
}
