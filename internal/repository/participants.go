package repository

import (
	"context"
	"strings"

	"journaling-go/internal/frame"
	"journaling-go/internal/models"
	"journaling-go/internal/suspicious"

	"github.com/lib/pq"
)

const batchSize = 200

func floatPtr(r frame.Row, col string) *float64 {
	v, ok := r.Float(col)
	if !ok {
		return nil
	}
	return &v
}

func intOf(r frame.Row, col string) int {
	v, _ := r.Float(col)
	return int(v)
}

// ParticipantRecords maps the final participant table to rows.
func ParticipantRecords(runID string, participants *frame.Frame) []models.ParticipantRecord {
	out := make([]models.ParticipantRecord, 0, participants.Len())
	for _, r := range participants.Rows() {
		mean, _ := r.Float(models.ColMeanWordCount)
		out = append(out, models.ParticipantRecord{
			RunID:         runID,
			ParticipantID: r.Get(models.ColParticipantID),
			StudyGroup:    r.Get(models.ColStudyGroup),
			StudyOutcome:  r.Get(models.ColStudyOutcome),
			EntryCount:    intOf(r, models.ColEntryCount),
			MeanWordCount: mean,
			BWEMWBS:       floatPtr(r, models.TotalColumn(models.BaselinePrefix, "WEMWBS")),
			EWEMWBS:       floatPtr(r, models.TotalColumn(models.ExitPrefix, "WEMWBS")),
			BGAD7:         floatPtr(r, models.TotalColumn(models.BaselinePrefix, "GAD7")),
			EGAD7:         floatPtr(r, models.TotalColumn(models.ExitPrefix, "GAD7")),
			BPHQ9:         floatPtr(r, models.TotalColumn(models.BaselinePrefix, "PHQ9")),
			EPHQ9:         floatPtr(r, models.TotalColumn(models.ExitPrefix, "PHQ9")),
		})
	}
	return out
}

// SaveParticipants stores the final participant table of a run.
func (s *Store) SaveParticipants(ctx context.Context, runID string, participants *frame.Frame) error {
	records := ParticipantRecords(runID, participants)
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(&records, batchSize).Error
}

// FlagRecords maps the detector output to rows. Only respondents with at
// least one counted flag are kept.
func FlagRecords(runID, idCol string, flags *frame.Frame) []models.SuspiciousFlag {
	cols := flags.Columns()
	var out []models.SuspiciousFlag
	for _, r := range flags.Rows() {
		total := intOf(r, suspicious.TotalColumn)
		if total == 0 {
			continue
		}
		out = append(out, models.SuspiciousFlag{
			RunID:           runID,
			Respondent:      r.Get(idCol),
			FlaggedTotal:    total,
			Flags:           pq.StringArray(suspicious.FlagNames(r, cols)),
			CoFlaggedBaseIP: splitList(r.Get("Flagged_Baseline" + models.ColIPAddressSuffix + "_Participants")),
			CoFlaggedExitIP: splitList(r.Get("Flagged_Exit" + models.ColIPAddressSuffix + "_Participants")),
		})
	}
	return out
}

func splitList(s string) pq.StringArray {
	if s == "" {
		return pq.StringArray{}
	}
	return pq.StringArray(strings.Split(s, suspicious.ListSeparator))
}

// SaveFlags stores the flagged respondents of a run.
func (s *Store) SaveFlags(ctx context.Context, runID, idCol string, flags *frame.Frame) error {
	records := FlagRecords(runID, idCol, flags)
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(&records, batchSize).Error
}
