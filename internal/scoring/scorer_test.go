package scoring

import (
	"testing"

	"journaling-go/internal/config"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *models.Registry {
	t.Helper()
	reg, err := models.ParseRegistry([]byte(`
stages:
  - {name: Baseline, prefix: B}
  - {name: Exit, prefix: E}
instruments:
  - code: MINI
    items: [MINI_1, MINI_2, MINI_3]
    responses: {"Low": 1, "High": 4}
  - code: ASQ
    recode: binary
    items: [ASQ_1, ASQ_2, ASQ_3, ASQ_4]
  - code: NIEQ
    items: [NIEQ_1, NIEQ_2, NIEQ_3, NIEQ_4]
    pairs: [[NIEQ_1, NIEQ_3], [NIEQ_2, NIEQ_4]]
    subscales:
      - {name: First, items: [NIEQ_1, NIEQ_3]}
      - {name: Second, items: [NIEQ_2, NIEQ_4]}
`))
	require.NoError(t, err)
	return reg
}

func TestMissingItemGivesMissingTotal(t *testing.T) {
	merged := frame.New(
		[]string{"Email", "Baseline_MINI_1", "Baseline_MINI_2", "Baseline_MINI_3"},
		[][]string{
			{"a@x.org", "3", "4", ""},
			{"b@x.org", "3", "4", "1"},
		})

	scores := NewScorer(testRegistry(t), zap.NewNop()).Score(merged, "Email")
	totals := scores.Totals

	assert.Equal(t, "", totals.Value(0, "B_MINI_Total"), "items [3, 4, missing] must not produce a partial sum")
	assert.Equal(t, "8", totals.Value(1, "B_MINI_Total"))
	assert.False(t, totals.Has("Baseline_MINI_1"), "item columns are not part of the totals table")
}

func TestAbsentColumnInPresentBlockIsMissing(t *testing.T) {
	merged := frame.New([]string{"Email", "Baseline_MINI_1", "Baseline_MINI_2"}, [][]string{{"a@x.org", "1", "1"}})

	totals := NewScorer(testRegistry(t), zap.NewNop()).Score(merged, "Email").Totals
	require.True(t, totals.Has("B_MINI_Total"))
	assert.Equal(t, "", totals.Value(0, "B_MINI_Total"))
}

func TestBlocksWithoutColumnsAreSkippedAndReported(t *testing.T) {
	merged := frame.New([]string{"Email", "Baseline_MINI_1", "Baseline_MINI_2", "Baseline_MINI_3"},
		[][]string{{"a@x.org", "1", "2", "3"}})

	scores := NewScorer(testRegistry(t), zap.NewNop()).Score(merged, "Email")
	assert.False(t, scores.Totals.Has("E_MINI_Total"))
	assert.Contains(t, scores.Skipped, Block{Stage: "Exit", Instrument: "MINI"})
	assert.Contains(t, scores.Skipped, Block{Stage: "Baseline", Instrument: "ASQ"})
	assert.Len(t, scores.Skipped, 5)
}

func TestBinaryRecodeBeforeSummation(t *testing.T) {
	merged := frame.New([]string{"Email", "Exit_ASQ_1", "Exit_ASQ_2", "Exit_ASQ_3", "Exit_ASQ_4"},
		[][]string{{"a@x.org", "1", "2", "3", "4"}})

	totals := NewScorer(testRegistry(t), zap.NewNop()).Score(merged, "Email").Totals
	assert.Equal(t, "2", totals.Value(0, "E_ASQ_Total"))
}

func TestPairedItemsAreAveragedThenSummed(t *testing.T) {
	merged := frame.New([]string{"Email", "Baseline_NIEQ_1", "Baseline_NIEQ_2", "Baseline_NIEQ_3", "Baseline_NIEQ_4"},
		[][]string{{"a@x.org", "2", "5", "3", "4"}})

	totals := NewScorer(testRegistry(t), zap.NewNop()).Score(merged, "Email").Totals
	// (2+3)/2 + (5+4)/2
	assert.Equal(t, "7", totals.Value(0, "B_NIEQ_Total"))
	assert.Equal(t, "5", totals.Value(0, "B_NIEQ_First"))
	assert.Equal(t, "9", totals.Value(0, "B_NIEQ_Second"))
}

func TestNonNumericAnswerBecomesMissing(t *testing.T) {
	merged := frame.New([]string{"Email", "Baseline_MINI_1", "Baseline_MINI_2", "Baseline_MINI_3"},
		[][]string{{"a@x.org", "1", "banana", "3"}})

	totals := NewScorer(testRegistry(t), zap.NewNop()).Score(merged, "Email").Totals
	assert.Equal(t, "", totals.Value(0, "B_MINI_Total"))
}

func TestRecodeValue(t *testing.T) {
	reg, err := models.DefaultRegistry()
	require.NoError(t, err)
	wem, _ := reg.Instrument("WEMWBS")

	assert.Equal(t, "4", RecodeValue(wem, "Often"))
	assert.Equal(t, "1", RecodeValue(wem, " none of the time "))
	assert.Equal(t, "3", RecodeValue(wem, "3"))
	assert.Equal(t, "", RecodeValue(wem, "Sometimes maybe"))
	assert.Equal(t, "", RecodeValue(wem, "nan"))
}

func TestPrepareAndMergeStages(t *testing.T) {
	reg := testRegistry(t)
	conf := config.ScoringConfig{
		EmailColumns:    map[string]string{"Baseline": "intro-email"},
		ExcludedEmails:  []string{"test@test.pl"},
		ExcludedDomains: []string{"prolific.com"},
	}

	baseline := frame.New([]string{"intro-email", "MINI_1", "Duration (in seconds)"}, [][]string{
		{"please provide your email address.", "MINI_1 question text", "Duration"},
		{"Jane@Uni.ac.uk", "High", "300"},
		{"jane@uni.ac.uk", "Low", "100"},
		{"test@test.pl", "Low", "10"},
		{"bot@prolific.com", "Low", "10"},
	})
	exit := frame.New([]string{"Email", "MINI_1", "Duration (in seconds)"}, [][]string{
		{"jane@uni.ac.uk", "Low", "250"},
		{"new@uni.ac.uk", "High", "n/a"},
	})

	b := PrepareStage(baseline, "Baseline", conf, reg, zap.NewNop())
	e := PrepareStage(exit, "Exit", conf, reg, zap.NewNop())
	require.Equal(t, 2, b.Len())
	assert.Equal(t, "4", b.Value(0, "Baseline_MINI_1"))

	merged := MergeStages([]string{"Prescreening", "Baseline", "Exit"}, map[string]*frame.Frame{"Baseline": b, "Exit": e})
	require.Equal(t, 2, merged.Len())
	assert.Equal(t, []string{"jane@uni.ac.uk", "new@uni.ac.uk"}, merged.Column("Email"))
	assert.Equal(t, []string{"300", ""}, merged.Column("Baseline_Duration (in seconds)"))
	assert.Equal(t, []string{"1", "4"}, merged.Column("Exit_MINI_1"))
	assert.Equal(t, []string{"jane@uni.ac.uk"}, Respondents(b))
}
