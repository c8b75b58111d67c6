package models

// Column names shared by the snapshot files.
const (
	ColParticipantID   = "ParticipantID"
	ColTelegramID      = "TelegramID"
	ColEmail           = "Email"
	ColStudyGroup      = "StudyGroup"
	ColStudyOutcome    = "StudyOutcome"
	ColTimestamp       = "Timestamp"
	ColEntryID         = "JournalUniqueID"
	ColType            = "Type"
	ColEntryCount      = "EntryCount"
	ColContent         = "Content"
	ColWordCount       = "WordCount"
	ColAnonymised      = "JournalAnonymised"
	ColUtterance       = "Utterance"
	ColUtteranceID     = "UtteranceID"
	ColMeanWordCount   = "MeanWordCount"
	ColDurationSuffix  = "_Duration (in seconds)"
	ColIPAddressSuffix = "_IPAddress"

	TypeSummary = "Summary"
)

// Baseline and exit stage prefixes used in score column names.
const (
	BaselinePrefix = "B"
	ExitPrefix     = "E"
)

// EntryColumns is the canonical entry-level schema produced by the merger.
var EntryColumns = []string{
	ColParticipantID, ColTelegramID, ColStudyGroup, ColTimestamp,
	ColEntryID, ColType, ColEntryCount, ColContent,
}

// Outcome is the externally adjudicated participant classification.
type Outcome string

// OutcomeUnclassified labels participants absent from the outcome document.
const OutcomeUnclassified Outcome = "Unclassified"

// StageReport records the count delta of one pipeline or filter stage.
type StageReport struct {
	Stage   int    `json:"stage"`
	Name    string `json:"name"`
	Unit    string `json:"unit"`
	Before  int    `json:"before"`
	After   int    `json:"after"`
	Removed int    `json:"removed"`
	Skipped bool   `json:"skipped"`
	Note    string `json:"note,omitempty"`
}

// NewStageReport fills Removed from the before and after counts.
func NewStageReport(stage int, name, unit string, before, after int) StageReport {
	return StageReport{Stage: stage, Name: name, Unit: unit, Before: before, After: after, Removed: before - after}
}

// SkippedStage reports a stage that did not run.
func SkippedStage(stage int, name, unit string, count int, note string) StageReport {
	return StageReport{Stage: stage, Name: name, Unit: unit, Before: count, After: count, Skipped: true, Note: note}
}
