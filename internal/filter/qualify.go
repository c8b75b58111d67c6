// Package filter narrows the merged study tables down to the participants
// and entries that qualify for analysis.
package filter

import (
	"errors"
	"fmt"
	"os"

	"journaling-go/internal/anonymise"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"go.uber.org/zap"
)

// ErrInputMissing marks a required snapshot that is not on disk.
var ErrInputMissing = errors.New("required input file missing")

// ReadInput loads a required snapshot, mapping a missing file to
// ErrInputMissing with the path in the message.
func ReadInput(path string) (*frame.Frame, error) {
	f, err := frame.ReadCSV(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrInputMissing, path)
	}
	return f, err
}

// LoadOutcomes reads the ParticipantID -> outcome document. A missing file is
// reported as (nil, nil) so callers can degrade to an unfiltered run.
func LoadOutcomes(path string) (map[string]string, error) {
	m, err := anonymise.ReadJSONMap(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return m, err
}

// Qualify keeps rows whose participant outcome is one of eligible. With no
// outcomes the rows pass through unchanged and a warning is logged.
func Qualify(rows *frame.Frame, outcomes map[string]string, eligible []string, log *zap.Logger) (*frame.Frame, models.StageReport) {
	const name = "qualify by study outcome"
	if len(outcomes) == 0 {
		log.Warn("No study outcome data available, rows are not outcome-filtered",
			zap.Int("rows", rows.Len()))
		return rows, models.SkippedStage(0, name, "rows", rows.Len(), "outcome file missing")
	}
	allowed := toSet(eligible)
	out := rows.Filter(func(r frame.Row) bool {
		return allowed[outcomes[r.Get(models.ColParticipantID)]]
	})
	rep := models.NewStageReport(0, name, "rows", rows.Len(), out.Len())
	log.Info("Rows qualified by study outcome",
		zap.Int("before", rep.Before),
		zap.Int("after", rep.After),
		zap.Int("removed", rep.Removed),
		zap.Int("participants", out.NUnique(models.ColParticipantID)))
	return out, rep
}

func toSet(vals []string) map[string]bool {
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		out[v] = true
	}
	return out
}
