package scoring

import (
	"journaling-go/internal/config"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"
	"journaling-go/internal/utils"

	"go.uber.org/zap"
)

// PrepareStage cleans one raw survey export: the configured email column
// becomes a normalised Email key, rows without a usable address are dropped,
// answers are recoded and every other column is prefixed with the stage name.
func PrepareStage(raw *frame.Frame, stage string, conf config.ScoringConfig, reg *models.Registry, log *zap.Logger) *frame.Frame {
	emailCol := conf.EmailColumns[stage]
	if emailCol == "" {
		emailCol = models.ColEmail
	}
	f := raw
	if emailCol != models.ColEmail {
		f = f.Drop(models.ColEmail).Rename(map[string]string{emailCol: models.ColEmail})
	}
	f = f.WithColumn(models.ColEmail, func(r frame.Row) string {
		return utils.NormaliseEmail(r.Get(models.ColEmail))
	})

	before := f.Len()
	f = f.Filter(func(r frame.Row) bool {
		email := r.Get(models.ColEmail)
		return utils.IsValidEmail(email) && !utils.IsExcludedEmail(email, conf.ExcludedEmails, conf.ExcludedDomains)
	})
	log.Info("Survey export cleaned",
		zap.String("stage", stage),
		zap.Int("before", before),
		zap.Int("after", f.Len()),
		zap.Int("removed", before-f.Len()))

	f = RecodeStage(f, reg)
	return f.Prefix(stage+"_", models.ColEmail)
}

// MergeStages outer-joins prepared stage exports on Email, keeping the first
// submission per address within each stage, and coerces stage durations to
// numbers.
func MergeStages(stages []string, prepared map[string]*frame.Frame) *frame.Frame {
	var merged *frame.Frame
	for _, stage := range stages {
		f, ok := prepared[stage]
		if !ok {
			continue
		}
		f = f.DedupeFirst(models.ColEmail).Filter(func(r frame.Row) bool {
			return !r.Missing(models.ColEmail)
		})
		if merged == nil {
			merged = f
			continue
		}
		merged = frame.Join(merged, f, models.ColEmail, frame.OuterJoin)
	}
	if merged == nil {
		return frame.Empty(models.ColEmail)
	}

	for _, stage := range stages {
		col := stage + models.ColDurationSuffix
		if !merged.Has(col) {
			continue
		}
		merged = merged.WithColumn(col, func(r frame.Row) string {
			if v, ok := r.Float(col); ok {
				return frame.FormatFloat(v)
			}
			return ""
		})
	}
	return merged
}

// Respondents lists the addresses present in a prepared stage export.
func Respondents(prepared *frame.Frame) []string {
	return prepared.Unique(models.ColEmail)
}
