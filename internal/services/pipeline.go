// Package services runs the numbered-snapshot pipeline stages in order.
package services

import (
	"context"
	"fmt"
	"time"

	"journaling-go/internal/anonymise"
	"journaling-go/internal/config"
	"journaling-go/internal/filter"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"go.uber.org/zap"
)

// ErrInputMissing marks a stage whose required input snapshot is absent.
var ErrInputMissing = filter.ErrInputMissing

// Step names in execution order.
const (
	StepIngest      = "ingest"
	StepScore       = "score"
	StepEntries     = "preprocess"
	StepAnonymise   = "anonymise"
	StepUtterances  = "utterances"
	StepCombine     = "merge"
	StepQualify     = "qualify"
	StepFinalFilter = "final-filter"
	StepAnalyse     = "analyse"
)

// Steps lists every step in the order Run executes them.
var Steps = []string{
	StepIngest, StepScore, StepEntries, StepAnonymise, StepUtterances,
	StepCombine, StepQualify, StepFinalFilter, StepAnalyse,
}

// RunStore archives runs. A nil store disables archiving.
type RunStore interface {
	StartRun(ctx context.Context, command string) (*models.PipelineRun, error)
	FinishRun(ctx context.Context, run *models.PipelineRun, runErr error) error
	SaveStageReports(ctx context.Context, runID, step string, reports []models.StageReport) error
	SaveParticipants(ctx context.Context, runID string, participants *frame.Frame) error
	SaveFlags(ctx context.Context, runID, idCol string, flags *frame.Frame) error
}

type stepFunc func(ctx context.Context, runID string) ([]models.StageReport, error)

// Pipeline binds the configuration, schema registry and collaborators every
// stage needs.
type Pipeline struct {
	conf       *config.Config
	reg        *models.Registry
	log        *zap.Logger
	store      RunStore
	anonymiser anonymise.Anonymiser
	steps      map[string]stepFunc
}

// NewPipeline creates a Pipeline. store may be nil.
func NewPipeline(conf *config.Config, reg *models.Registry, store RunStore, log *zap.Logger) *Pipeline {
	p := &Pipeline{
		conf:       conf,
		reg:        reg,
		log:        log,
		store:      store,
		anonymiser: anonymise.NewRedactor(conf.Entries.IgnoreWords),
	}
	p.steps = map[string]stepFunc{
		StepIngest:      p.ingest,
		StepScore:       p.score,
		StepEntries:     p.preprocess,
		StepAnonymise:   p.anonymiseContent,
		StepUtterances:  p.utterances,
		StepCombine:     p.combine,
		StepQualify:     p.qualify,
		StepFinalFilter: p.finalFilter,
		StepAnalyse:     p.analyse,
	}
	return p
}

// WithAnonymiser replaces the default pattern redactor.
func (p *Pipeline) WithAnonymiser(a anonymise.Anonymiser) *Pipeline {
	p.anonymiser = a
	return p
}

// Run executes the named steps in pipeline order, or all of them when none
// are named. The first failing step aborts the run.
func (p *Pipeline) Run(ctx context.Context, command string, names ...string) error {
	selected, err := p.selectSteps(names)
	if err != nil {
		return err
	}

	var run *models.PipelineRun
	runID := ""
	if p.store != nil {
		if run, err = p.store.StartRun(ctx, command); err != nil {
			return fmt.Errorf("failed to archive run: %w", err)
		}
		runID = run.ID
	}

	runErr := p.runSteps(ctx, runID, selected)
	if run != nil {
		if err := p.store.FinishRun(ctx, run, runErr); err != nil {
			p.log.Error("Failed to archive run status", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return runErr
}

func (p *Pipeline) selectSteps(names []string) ([]string, error) {
	if len(names) == 0 {
		return Steps, nil
	}
	want := map[string]bool{}
	for _, n := range names {
		if _, ok := p.steps[n]; !ok {
			return nil, fmt.Errorf("unknown step %q", n)
		}
		want[n] = true
	}
	var out []string
	for _, s := range Steps {
		if want[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *Pipeline) runSteps(ctx context.Context, runID string, steps []string) error {
	for _, name := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		p.log.Info("Running step", zap.String("step", name))
		reports, err := p.steps[name](ctx, runID)
		if err != nil {
			p.log.Error("Step failed", zap.String("step", name), zap.Error(err))
			return fmt.Errorf("%s: %w", name, err)
		}
		p.log.Info("Step finished", zap.String("step", name), zap.Duration("took", time.Since(start)))
		if p.store != nil && runID != "" {
			if err := p.store.SaveStageReports(ctx, runID, name, reports); err != nil {
				p.log.Error("Failed to archive stage reports", zap.String("step", name), zap.Error(err))
			}
		}
	}
	return nil
}
