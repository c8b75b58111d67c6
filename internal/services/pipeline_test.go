package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"journaling-go/internal/analysis"
	"journaling-go/internal/anonymise"
	"journaling-go/internal/config"
	"journaling-go/internal/filter"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	steps        []string
	finished     error
	participants int
	flags        int
}

func (s *fakeStore) StartRun(_ context.Context, command string) (*models.PipelineRun, error) {
	return &models.PipelineRun{ID: "run-1", Command: command}, nil
}

func (s *fakeStore) FinishRun(_ context.Context, _ *models.PipelineRun, runErr error) error {
	s.finished = runErr
	return nil
}

func (s *fakeStore) SaveStageReports(_ context.Context, _ string, step string, _ []models.StageReport) error {
	s.steps = append(s.steps, step)
	return nil
}

func (s *fakeStore) SaveParticipants(_ context.Context, _ string, f *frame.Frame) error {
	s.participants = f.Len()
	return nil
}

func (s *fakeStore) SaveFlags(_ context.Context, _ string, _ string, f *frame.Frame) error {
	s.flags = f.Len()
	return nil
}

func setup(t *testing.T, store RunStore) (*Pipeline, *config.Config) {
	t.Helper()
	conf, err := config.Load(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	reg, err := models.DefaultRegistry()
	require.NoError(t, err)
	return NewPipeline(conf, reg, store, zap.NewNop()), conf
}

func writeCSV(t *testing.T, path string, cols []string, rows [][]string) {
	t.Helper()
	require.NoError(t, frame.New(cols, rows).WriteCSV(path))
}

var mergedCols = []string{
	"ParticipantID", "StudyGroup", "JournalUniqueID", "Type", "JournalAnonymised",
	"B_WEMWBS_Total", "E_WEMWBS_Total", "B_GAD7_Total", "E_GAD7_Total", "B_PHQ9_Total", "E_PHQ9_Total",
}

// seedMerged writes snapshots 8 and 10 for eight participants with six
// entries each, six in group A and two in group B, plus the outcome file.
func seedMerged(t *testing.T, conf *config.Config) {
	t.Helper()
	var journals, utterances [][]string
	outcomes := map[string]string{}
	for i := 0; i < 8; i++ {
		pid := fmt.Sprintf("P%d", i+1)
		group := "A"
		if i >= 6 {
			group = "B"
		}
		outcomes[pid] = "Eligible"
		for j := 0; j < 6; j++ {
			id := fmt.Sprintf("%s-j%d", pid, j)
			journals = append(journals, []string{
				pid, group, id, "Journal", "today I felt rather calm",
				fmt.Sprint(40 + i), fmt.Sprint(42 + i), "10", "9", "12", "11",
			})
			utterances = append(utterances, []string{pid, id + "_1"})
		}
	}
	outcomes["P8"] = "Fraudulent"

	writeCSV(t, conf.ProcessedPath(models.SnapshotJournalsCombinedAnon), mergedCols, journals)
	writeCSV(t, conf.ProcessedPath(models.SnapshotUtterCombinedAnon), []string{"ParticipantID", "UtteranceID"}, utterances)
	require.NoError(t, anonymise.WriteJSONMap(conf.ConfigPath(conf.Filter.OutcomeFile), outcomes))
}

func TestRunQualifyThroughAnalysis(t *testing.T) {
	store := &fakeStore{}
	p, conf := setup(t, store)
	seedMerged(t, conf)

	err := p.Run(context.Background(), "test", StepAnalyse, StepQualify, StepFinalFilter)
	require.NoError(t, err)
	assert.Equal(t, []string{StepQualify, StepFinalFilter, StepAnalyse}, store.steps, "steps run in pipeline order")
	assert.NoError(t, store.finished)
	assert.Equal(t, 7, store.participants)

	qualified, err := frame.ReadCSV(conf.ProcessedPath(models.SnapshotJournalsQualified))
	require.NoError(t, err)
	assert.Equal(t, 42, qualified.Len(), "fraudulent participant removed")

	participants, err := frame.ReadCSV(conf.ProcessedPath(models.SnapshotParticipantsFinal))
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2", "P3", "P4", "P5", "P6", "P7"}, participants.Column("ParticipantID"))
	assert.Equal(t, "2", participants.Value(0, "Change_WEMWBS"))

	utterances, err := frame.ReadCSV(conf.ProcessedPath(models.SnapshotUtterFinal))
	require.NoError(t, err)
	assert.Equal(t, 7, utterances.NUnique("ParticipantID"))

	reports, err := filter.ReadReport(conf.ProcessedPath(models.FinalFilterReport))
	require.NoError(t, err)
	assert.Len(t, reports, 7)

	stats, err := frame.ReadCSV(conf.FiguresPath(analysis.StatisticsFile))
	require.NoError(t, err)
	assert.Equal(t, analysis.StatisticsColumns, stats.Columns())
	_, err = os.Stat(conf.FiguresPath(analysis.FigureFile))
	assert.NoError(t, err)
}

func TestFinalFilterIsIdempotent(t *testing.T) {
	p, conf := setup(t, nil)
	seedMerged(t, conf)
	ctx := context.Background()

	require.NoError(t, p.Run(ctx, "test", StepQualify, StepFinalFilter))
	first, err := os.ReadFile(conf.ProcessedPath(models.SnapshotParticipantsFinal))
	require.NoError(t, err)

	require.NoError(t, p.Run(ctx, "test", StepQualify, StepFinalFilter))
	second, err := os.ReadFile(conf.ProcessedPath(models.SnapshotParticipantsFinal))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestRunMissingInputAbortsWithStepName(t *testing.T) {
	store := &fakeStore{}
	p, _ := setup(t, store)

	err := p.Run(context.Background(), "test", StepFinalFilter, StepAnalyse)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInputMissing))
	assert.True(t, strings.HasPrefix(err.Error(), "final-filter: "), err.Error())
	assert.Empty(t, store.steps, "nothing after the failing step runs")
	assert.Equal(t, err, store.finished)
}

func TestRunUnknownStep(t *testing.T) {
	store := &fakeStore{}
	p, _ := setup(t, store)

	err := p.Run(context.Background(), "test", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown step "bogus"`)
	assert.Nil(t, store.finished)
}

type countingAnonymiser struct{ calls int }

func (c *countingAnonymiser) Anonymise(text string) (string, error) {
	c.calls++
	return text, nil
}

func TestJournalStepsAreIncremental(t *testing.T) {
	p, conf := setup(t, nil)
	counter := &countingAnonymiser{}
	p.WithAnonymiser(counter)
	ctx := context.Background()

	rawCols := []string{"TelegramID", "JournalTimestamp", "JournalUniqueID", "EntryType", "JournalContent"}
	writeCSV(t, conf.RawDir(BotDir, RosterFile), []string{"ParticipantID", "TelegramID", "StudyGroup", "Email"}, [][]string{
		{"P1", "111", "A", "one@x.org"},
		{"P2", "222", "B", "two@x.org"},
	})
	writeCSV(t, conf.RawDir(BotDir, SummariesFile), []string{"TelegramID", "Timestamp", "GptSummary"}, [][]string{
		{"111", "2023-07-01 21:00:00", "Saturday 1 July 2023: I was calm"},
	})
	writeCSV(t, conf.RawDir(BotDir, JournalsFile), rawCols, [][]string{
		{"111", "2023-07-01 09:00:00", "j1", "Journal", "Felt calm today. Slept well."},
		{"222", "2023-07-02 09:00:00", "j2", "Journal", "Walked the dog"},
	})

	steps := []string{StepIngest, StepEntries, StepAnonymise, StepUtterances}
	require.NoError(t, p.Run(ctx, "test", steps...))
	assert.Equal(t, 3, counter.calls)

	both, err := frame.ReadCSV(conf.ProcessedPath(models.SnapshotContentBoth))
	require.NoError(t, err)
	assert.Equal(t, 3, both.Len())
	only, err := frame.ReadCSV(conf.ProcessedPath(models.SnapshotContentOnly))
	require.NoError(t, err)
	assert.False(t, only.Has("Content"))

	utterances, err := frame.ReadCSV(conf.ProcessedPath(models.SnapshotUtterances))
	require.NoError(t, err)
	assert.Contains(t, utterances.Column("UtteranceID"), "j1_2")

	writeCSV(t, conf.RawDir(BotDir, JournalsFile), rawCols, [][]string{
		{"111", "2023-07-01 09:00:00", "j1", "Journal", "Felt calm today. Slept well."},
		{"222", "2023-07-02 09:00:00", "j2", "Journal", "Walked the dog"},
		{"222", "2023-07-03 09:00:00", "j3", "Journal", "Rainy and slow"},
	})
	counter.calls = 0
	require.NoError(t, p.Run(ctx, "test", steps...))
	assert.Equal(t, 1, counter.calls, "only the new entry is anonymised")

	both, err = frame.ReadCSV(conf.ProcessedPath(models.SnapshotContentBoth))
	require.NoError(t, err)
	assert.Equal(t, 4, both.Len())
	ingested, err := frame.ReadCSV(conf.ProcessedPath(models.SnapshotJournalsEmail))
	require.NoError(t, err)
	assert.Equal(t, []string{"j1", "j2", "j3"}, ingested.Column("JournalUniqueID"))
}

func TestScoreWithoutExportsFails(t *testing.T) {
	p, _ := setup(t, nil)
	err := p.Run(context.Background(), "test", StepScore)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInputMissing))
}
