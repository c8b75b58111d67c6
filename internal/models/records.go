package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// PipelineRun archives one invocation of the pipeline.
type PipelineRun struct {
	ID         string `gorm:"primaryKey;type:uuid"`
	Command    string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Reports    []StageReportRecord `gorm:"foreignKey:RunID"`
}

// StageReportRecord is the persisted form of a StageReport.
type StageReportRecord struct {
	gorm.Model
	RunID   string `gorm:"index;type:uuid"`
	Step    string
	Stage   int
	Name    string
	Unit    string
	Before  int
	After   int
	Removed int
	Skipped bool
	Note    string
}

// ParticipantRecord is one row of the final participant-level table.
type ParticipantRecord struct {
	gorm.Model
	RunID         string `gorm:"index;type:uuid"`
	ParticipantID string `gorm:"index"`
	StudyGroup    string
	StudyOutcome  string
	EntryCount    int
	MeanWordCount float64
	BWEMWBS       *float64 `gorm:"column:b_wemwbs_total"`
	EWEMWBS       *float64 `gorm:"column:e_wemwbs_total"`
	BGAD7         *float64 `gorm:"column:b_gad7_total"`
	EGAD7         *float64 `gorm:"column:e_gad7_total"`
	BPHQ9         *float64 `gorm:"column:b_phq9_total"`
	EPHQ9         *float64 `gorm:"column:e_phq9_total"`
}

// SuspiciousFlag stores the flag summary of one survey respondent.
type SuspiciousFlag struct {
	gorm.Model
	RunID           string `gorm:"index;type:uuid"`
	Respondent      string `gorm:"index"`
	FlaggedTotal    int
	Flags           pq.StringArray `gorm:"type:text[]"`
	CoFlaggedBaseIP pq.StringArray `gorm:"type:text[]"`
	CoFlaggedExitIP pq.StringArray `gorm:"type:text[]"`
}
