// Package repository archives pipeline runs in the relational store.
package repository

import (
	"context"
	"time"

	"journaling-go/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Store persists runs, stage reports, participants and flags.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// NewRun creates an unsaved run with a fresh identifier.
func NewRun(command string, now time.Time) *models.PipelineRun {
	return &models.PipelineRun{
		ID:        uuid.NewString(),
		Command:   command,
		Status:    StatusRunning,
		StartedAt: now.UTC(),
	}
}

// Finish marks run as succeeded or failed.
func Finish(run *models.PipelineRun, runErr error, now time.Time) {
	t := now.UTC()
	run.FinishedAt = &t
	run.Status = StatusSucceeded
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}
}

// StartRun inserts a new running run.
func (s *Store) StartRun(ctx context.Context, command string) (*models.PipelineRun, error) {
	run := NewRun(command, time.Now())
	if err := s.db.WithContext(ctx).Omit("Reports").Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// FinishRun stores the final status of run.
func (s *Store) FinishRun(ctx context.Context, run *models.PipelineRun, runErr error) error {
	Finish(run, runErr, time.Now())
	return s.db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":      run.Status,
		"error":       run.Error,
		"finished_at": run.FinishedAt,
	}).Error
}

// StageRecords maps the reports of one pipeline step to rows.
func StageRecords(runID, step string, reports []models.StageReport) []models.StageReportRecord {
	out := make([]models.StageReportRecord, len(reports))
	for i, r := range reports {
		out[i] = models.StageReportRecord{
			RunID:   runID,
			Step:    step,
			Stage:   r.Stage,
			Name:    r.Name,
			Unit:    r.Unit,
			Before:  r.Before,
			After:   r.After,
			Removed: r.Removed,
			Skipped: r.Skipped,
			Note:    r.Note,
		}
	}
	return out
}

// SaveStageReports appends the reports of one step.
func (s *Store) SaveStageReports(ctx context.Context, runID, step string, reports []models.StageReport) error {
	if len(reports) == 0 {
		return nil
	}
	records := StageRecords(runID, step, reports)
	return s.db.WithContext(ctx).Create(&records).Error
}

// ListRuns returns the most recent runs with their stage reports.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	var runs []models.PipelineRun
	err := s.db.WithContext(ctx).
		Preload("Reports", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
