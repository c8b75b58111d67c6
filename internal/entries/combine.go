package entries

import (
	"sort"

	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"go.uber.org/zap"
)

// Combined is the survey x journal join: Full keeps every row of both sides,
// Anonymous keeps rows with a ParticipantID and drops the Email column.
type Combined struct {
	Full      *frame.Frame
	Anonymous *frame.Frame
}

// CombineWithTotals outer-joins survey totals with an entry-level table on
// ParticipantID and logs overlap diagnostics against the roster.
func CombineWithTotals(totals, rows, roster *frame.Frame, log *zap.Logger) Combined {
	full := frame.Join(totals, rows, models.ColParticipantID, frame.OuterJoin)

	var emailsWithoutPID []string
	seen := map[string]bool{}
	for _, r := range full.Rows() {
		if r.Missing(models.ColParticipantID) && !r.Missing(models.ColEmail) && !seen[r.Get(models.ColEmail)] {
			seen[r.Get(models.ColEmail)] = true
			emailsWithoutPID = append(emailsWithoutPID, r.Get(models.ColEmail))
		}
	}
	pidsWithoutEmail := full.Filter(func(r frame.Row) bool { return r.Missing(models.ColEmail) }).Unique(models.ColParticipantID)
	valid := full.Filter(func(r frame.Row) bool {
		return !r.Missing(models.ColEmail) && !r.Missing(models.ColParticipantID)
	})

	present := map[string]bool{}
	for _, pid := range full.Unique(models.ColParticipantID) {
		present[pid] = true
	}
	var absent []string
	for _, pid := range roster.Unique(models.ColParticipantID) {
		if !present[pid] {
			absent = append(absent, pid)
		}
	}
	sort.Strings(absent)

	log.Info("Survey and journal overlap",
		zap.Int("emails_without_pid", len(emailsWithoutPID)),
		zap.Strings("pids_without_email", pidsWithoutEmail),
		zap.Int("rows_from_valid_participants", valid.Len()),
		zap.Int("valid_participants", valid.NUnique(models.ColParticipantID)),
		zap.Strings("registered_but_absent", absent))

	anon := full.Filter(func(r frame.Row) bool { return !r.Missing(models.ColParticipantID) }).Drop(models.ColEmail)
	return Combined{Full: full, Anonymous: anon}
}

// MissingEntries lists source entry IDs that did not survive into rows.
func MissingEntries(source, rows *frame.Frame) []string {
	kept := map[string]bool{}
	for _, id := range rows.Unique(models.ColEntryID) {
		kept[id] = true
	}
	var missing []string
	for _, id := range source.Unique(models.ColEntryID) {
		if !kept[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
