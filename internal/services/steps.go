package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"journaling-go/internal/analysis"
	"journaling-go/internal/anonymise"
	"journaling-go/internal/entries"
	"journaling-go/internal/filter"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"
	"journaling-go/internal/scoring"
	"journaling-go/internal/suspicious"

	"go.uber.org/zap"
)

// Raw bot exports read by the pipeline.
const (
	BotDir        = "onereachai"
	QualtricsDir  = "qualtrics"
	RosterFile    = "tsj_usertable.csv"
	JournalsFile  = "tsj_journals_saved.csv"
	SummariesFile = "tsj_gptsummaries.csv"
)

func (p *Pipeline) processed(name string) (*frame.Frame, error) {
	return filter.ReadInput(p.conf.ProcessedPath(name))
}

func (p *Pipeline) roster() (*frame.Frame, error) {
	return filter.ReadInput(p.conf.RawDir(BotDir, RosterFile))
}

// previous loads an earlier output of the same step; nil when absent.
func previous(path string) (*frame.Frame, error) {
	f, err := frame.ReadCSV(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return f, err
}

func (p *Pipeline) write(f *frame.Frame, name string) error {
	path := p.conf.ProcessedPath(name)
	if err := f.WriteCSV(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	p.log.Debug("Snapshot written", zap.String("file", name), zap.Int("rows", f.Len()))
	return nil
}

func (p *Pipeline) ingest(_ context.Context, _ string) ([]models.StageReport, error) {
	raw, err := filter.ReadInput(p.conf.RawDir(BotDir, JournalsFile))
	if err != nil {
		return nil, err
	}
	roster, err := p.roster()
	if err != nil {
		return nil, err
	}
	existing, err := previous(p.conf.ProcessedPath(models.SnapshotJournalsEmail))
	if err != nil {
		return nil, err
	}
	before := 0
	if existing != nil {
		before = existing.Len()
	}

	out, added := entries.Ingest(existing, raw, roster, p.log.Named("ingest"))
	if err := p.write(out, models.SnapshotJournalsEmail); err != nil {
		return nil, err
	}
	return []models.StageReport{{
		Stage: 1, Name: "ingest new journals", Unit: "entries",
		Before: before, After: out.Len(), Note: fmt.Sprintf("%d new", added),
	}}, nil
}

func (p *Pipeline) score(ctx context.Context, runID string) ([]models.StageReport, error) {
	log := p.log.Named("score")
	prepared := map[string]*frame.Frame{}
	respondents := map[string][]string{}
	var stages []string
	var reports []models.StageReport

	for i, stage := range p.reg.Stages {
		file, ok := p.conf.Scoring.StageFiles[stage.Name]
		if !ok {
			continue
		}
		raw, err := frame.ReadCSV(p.conf.RawDir(QualtricsDir, file))
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("Survey export missing, stage skipped", zap.String("stage", stage.Name), zap.String("file", file))
			reports = append(reports, models.SkippedStage(i+1, "prepare "+stage.Name, "respondents", 0, "export missing"))
			continue
		}
		if err != nil {
			return nil, err
		}
		f := scoring.PrepareStage(raw, stage.Name, p.conf.Scoring, p.reg, log)
		prepared[stage.Name] = f
		respondents[stage.Name] = scoring.Respondents(f)
		stages = append(stages, stage.Name)
		reports = append(reports, models.NewStageReport(i+1, "prepare "+stage.Name, "respondents", raw.Len(), f.Len()))
	}
	if len(prepared) == 0 {
		return nil, fmt.Errorf("%w: no survey exports under %s", filter.ErrInputMissing, p.conf.RawDir(QualtricsDir))
	}

	roster, err := p.roster()
	if err != nil {
		return nil, err
	}
	aliases, err := anonymise.LoadAliases(p.conf.ConfigPath(p.conf.Scoring.AliasFile))
	if err != nil {
		return nil, err
	}
	index := anonymise.EmailIndex(roster)

	merged := scoring.MergeStages(stages, prepared)
	merged = anonymise.ResolveEmails(merged, index, aliases, log)
	if err := p.write(merged, models.SnapshotSurveyMerged); err != nil {
		return nil, err
	}

	scores := scoring.NewScorer(p.reg, log).Score(merged, models.ColEmail, models.ColParticipantID)
	if err := p.write(scores.Totals, models.SnapshotSurveyTotals); err != nil {
		return nil, err
	}
	for _, b := range scores.Skipped {
		reports = append(reports, models.SkippedStage(0, b.Stage+" "+b.Instrument, "respondents", scores.Totals.Len(), "no item columns"))
	}

	flags := suspicious.NewDetector(p.conf.Suspicious, p.reg, log).Detect(merged, models.ColEmail, respondents)
	if err := p.write(flags, models.SnapshotSurveyFlags); err != nil {
		return nil, err
	}
	if p.store != nil && runID != "" {
		if err := p.store.SaveFlags(ctx, runID, models.ColEmail, flags); err != nil {
			log.Error("Failed to archive suspicious flags", zap.Error(err))
		}
	}

	resolved := merged.Lookup(models.ColEmail, models.ColParticipantID)
	for email, pid := range resolved {
		if pid == "" {
			delete(resolved, email)
		}
	}
	if err := anonymise.WriteJSONMap(p.conf.ConfigPath(models.EmailPIDFile), resolved); err != nil {
		return nil, err
	}
	if err := anonymise.WriteJSONMap(p.conf.ConfigPath(models.StudyGroupsByPIDFile), anonymise.StudyGroups(roster)); err != nil {
		return nil, err
	}
	if err := p.outcomesByParticipant(resolved, log); err != nil {
		return nil, err
	}
	return reports, nil
}

// outcomesByParticipant re-keys the adjudicated outcomes by participant ID
// when the email-keyed document exists.
func (p *Pipeline) outcomesByParticipant(index map[string]string, log *zap.Logger) error {
	byEmail, err := anonymise.ReadJSONMap(p.conf.ConfigPath(models.OutcomeByEmailFile))
	if errors.Is(err, os.ErrNotExist) {
		log.Info("No outcome document by email, keeping existing outcomes")
		return nil
	}
	if err != nil {
		return err
	}
	byPID, dropped := anonymise.OutcomesByParticipant(byEmail, index)
	if dropped > 0 {
		log.Warn("Outcomes without a participant dropped", zap.Int("dropped", dropped))
	}
	return anonymise.WriteJSONMap(p.conf.ConfigPath(p.conf.Filter.OutcomeFile), byPID)
}

func (p *Pipeline) preprocess(_ context.Context, _ string) ([]models.StageReport, error) {
	journals, err := p.processed(models.SnapshotJournalsEmail)
	if err != nil {
		return nil, err
	}
	roster, err := p.roster()
	if err != nil {
		return nil, err
	}
	summaries, err := previous(p.conf.RawDir(BotDir, SummariesFile))
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		p.log.Warn("No summaries export, merging journals only")
		summaries = frame.Empty(models.ColTelegramID, entries.RawSummary)
	}

	m, err := entries.NewMerger(p.conf.Entries, p.log)
	if err != nil {
		return nil, err
	}
	out := m.Merge(roster, journals, summaries)
	if err := p.write(out, models.SnapshotJournalsPreprocessed); err != nil {
		return nil, err
	}
	return []models.StageReport{
		models.NewStageReport(1, "merge journals and summaries", "entries", journals.Len()+summaries.Len(), out.Len()),
	}, nil
}

func (p *Pipeline) anonymiseContent(_ context.Context, _ string) ([]models.StageReport, error) {
	pre, err := p.processed(models.SnapshotJournalsPreprocessed)
	if err != nil {
		return nil, err
	}
	existing, err := previous(p.conf.ProcessedPath(models.SnapshotContentBoth))
	if err != nil {
		return nil, err
	}
	res := anonymise.AnonymiseContent(existing, pre, p.anonymiser, p.log.Named("anonymise"))
	if err := p.write(res.Both, models.SnapshotContentBoth); err != nil {
		return nil, err
	}
	if err := p.write(res.Only, models.SnapshotContentOnly); err != nil {
		return nil, err
	}
	return []models.StageReport{{
		Stage: 1, Name: "anonymise content", Unit: "entries",
		Before: res.Both.Len() - res.Processed, After: res.Both.Len(),
		Note: fmt.Sprintf("%d new, %d failed", res.Processed, res.Failed),
	}}, nil
}

func (p *Pipeline) utterances(_ context.Context, _ string) ([]models.StageReport, error) {
	anon, err := p.processed(models.SnapshotContentOnly)
	if err != nil {
		return nil, err
	}
	out := anonymise.Utterances(anon)
	if err := p.write(out, models.SnapshotUtterances); err != nil {
		return nil, err
	}
	return []models.StageReport{{
		Stage: 1, Name: "split utterances", Unit: "rows", Before: anon.Len(), After: out.Len(),
	}}, nil
}

func (p *Pipeline) combine(_ context.Context, _ string) ([]models.StageReport, error) {
	totals, err := p.processed(models.SnapshotSurveyTotals)
	if err != nil {
		return nil, err
	}
	roster, err := p.roster()
	if err != nil {
		return nil, err
	}
	pairs := []struct {
		in, full, anon string
	}{
		{models.SnapshotContentOnly, models.SnapshotJournalsCombined, models.SnapshotJournalsCombinedAnon},
		{models.SnapshotUtterances, models.SnapshotUtterCombined, models.SnapshotUtterCombinedAnon},
	}
	var reports []models.StageReport
	for i, pr := range pairs {
		rows, err := p.processed(pr.in)
		if err != nil {
			return nil, err
		}
		c := entries.CombineWithTotals(totals, rows, roster, p.log.Named("merge"))
		if missing := entries.MissingEntries(rows, c.Anonymous); len(missing) > 0 {
			p.log.Warn("Entries lost in merge", zap.String("input", pr.in), zap.Strings("entry_ids", missing))
		}
		if err := p.write(c.Full, pr.full); err != nil {
			return nil, err
		}
		if err := p.write(c.Anonymous, pr.anon); err != nil {
			return nil, err
		}
		reports = append(reports, models.NewStageReport(i+1, "merge "+pr.in, "rows", c.Full.Len(), c.Anonymous.Len()))
	}
	return reports, nil
}

func (p *Pipeline) qualify(_ context.Context, _ string) ([]models.StageReport, error) {
	outcomes, err := filter.LoadOutcomes(p.conf.ConfigPath(p.conf.Filter.OutcomeFile))
	if err != nil {
		return nil, err
	}
	pairs := [][2]string{
		{models.SnapshotJournalsCombinedAnon, models.SnapshotJournalsQualified},
		{models.SnapshotUtterCombinedAnon, models.SnapshotUtterQualified},
	}
	var reports []models.StageReport
	for i, pr := range pairs {
		rows, err := p.processed(pr[0])
		if err != nil {
			return nil, err
		}
		out, rep := filter.Qualify(rows, outcomes, p.conf.Filter.EligibleOutcomes, p.log.Named("qualify"))
		if err := p.write(out, pr[1]); err != nil {
			return nil, err
		}
		rep.Stage = i + 1
		reports = append(reports, rep)
	}
	return reports, nil
}

func (p *Pipeline) finalFilter(ctx context.Context, runID string) ([]models.StageReport, error) {
	journals, err := p.processed(models.SnapshotJournalsQualified)
	if err != nil {
		return nil, err
	}
	outcomes, err := filter.LoadOutcomes(p.conf.ConfigPath(p.conf.Filter.OutcomeFile))
	if err != nil {
		return nil, err
	}
	res, err := filter.NewFinalFilter(p.conf.Filter, p.log).Apply(journals, outcomes)
	if err != nil {
		return nil, err
	}
	pids := res.ParticipantIDs()

	if err := p.write(res.Participants, models.SnapshotParticipantsFinal); err != nil {
		return nil, err
	}
	if err := p.write(filter.KeepParticipants(journals, pids), models.SnapshotJournalsFinal); err != nil {
		return nil, err
	}
	utterances, err := p.processed(models.SnapshotUtterQualified)
	switch {
	case errors.Is(err, filter.ErrInputMissing):
		p.log.Warn("No qualified utterances, skipping utterance filtering", zap.Error(err))
	case err != nil:
		return nil, err
	default:
		if err := p.write(filter.KeepParticipants(utterances, pids), models.SnapshotUtterFinal); err != nil {
			return nil, err
		}
	}

	if err := filter.WriteReport(p.conf.ProcessedPath(models.FinalFilterReport), res.Reports); err != nil {
		return nil, err
	}
	if p.store != nil && runID != "" {
		if err := p.store.SaveParticipants(ctx, runID, res.Participants); err != nil {
			p.log.Error("Failed to archive participants", zap.Error(err))
		}
	}
	return res.Reports, nil
}

func (p *Pipeline) analyse(_ context.Context, _ string) ([]models.StageReport, error) {
	participants, err := p.processed(models.SnapshotParticipantsFinal)
	if err != nil {
		return nil, err
	}
	measures, err := analysis.Measures(p.reg)
	if err != nil {
		return nil, err
	}
	stats := analysis.GroupStatistics(participants, measures, p.conf.Analysis, p.log.Named("analysis"))
	table := analysis.StatisticsFrame(stats)
	if err := table.WriteCSV(p.conf.FiguresPath(analysis.StatisticsFile)); err != nil {
		return nil, err
	}
	if err := analysis.WriteFigure(p.conf.FiguresPath(analysis.FigureFile), participants, measures); err != nil {
		return nil, err
	}
	p.log.Info("Analysis written",
		zap.String("statistics", analysis.StatisticsFile),
		zap.String("figure", analysis.FigureFile))
	return []models.StageReport{
		models.NewStageReport(1, "group statistics", "participants", participants.Len(), participants.Len()),
	}, nil
}
