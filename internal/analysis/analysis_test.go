package analysis

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"journaling-go/internal/config"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func analysisConf() config.AnalysisConfig {
	return config.AnalysisConfig{
		Groups:          []string{"A", "B", "C"},
		GroupLabels:     map[string]string{"A": "Cognitive Sum.", "B": "Emotional Sum.", "C": "No Sum."},
		MinGroupSize:    6,
		Alpha:           0.05,
		ConfidenceLevel: 0.95,
	}
}

func measures(t *testing.T) []Measure {
	t.Helper()
	reg, err := models.DefaultRegistry()
	require.NoError(t, err)
	ms, err := Measures(reg)
	require.NoError(t, err)
	return ms
}

// participants: six in group A, two in group B. WEMWBS rises by 2 for
// everyone, GAD-7 and PHQ-9 fall by 1.
func participants() *frame.Frame {
	cols := []string{"ParticipantID", "StudyGroup",
		"B_WEMWBS_Total", "E_WEMWBS_Total", "B_GAD7_Total", "E_GAD7_Total", "B_PHQ9_Total", "E_PHQ9_Total"}
	var rows [][]string
	for i := 0; i < 8; i++ {
		group := "A"
		if i >= 6 {
			group = "B"
		}
		rows = append(rows, []string{
			fmt.Sprintf("P%d", i+1), group,
			fmt.Sprint(40 + i), fmt.Sprint(42 + i),
			fmt.Sprint(10 + i), fmt.Sprint(9 + i),
			fmt.Sprint(12 + i), fmt.Sprint(11 + i),
		})
	}
	return frame.New(cols, rows)
}

func TestGroupStatisticsTable(t *testing.T) {
	stats := GroupStatistics(participants(), measures(t), analysisConf(), zap.NewNop())
	require.Len(t, stats, 9, "pooled, A and B for three measures")

	table := StatisticsFrame(stats)
	assert.Equal(t, StatisticsColumns, table.Columns())

	pooled := table.Row(0)
	assert.Equal(t, "WEMWBS (14-70)", pooled.Get("Measure"))
	assert.Equal(t, "All groups", pooled.Get("Study Group"))
	assert.Equal(t, "8", pooled.Get("No. Ppt."))
	assert.Equal(t, "43.50", pooled.Get("Baseline Mean"))
	assert.Equal(t, "2.45", pooled.Get("Baseline St.Dev"))
	assert.Equal(t, "45.50", pooled.Get("Exit Mean"))
	assert.Equal(t, "+2.00", pooled.Get("Mean Diff."))
	assert.Equal(t, "+2.9", pooled.Get("%"))
	assert.Equal(t, "-0.816", pooled.Get("Cohen's d"))
	assert.Equal(t, "[2.00, 2.00]", pooled.Get("95% CI"))
	assert.Equal(t, "0.0", pooled.Get("Z-Stat."))
	assert.Equal(t, "0.0047", pooled.Get("P-Value"))

	groupA := table.Row(1)
	assert.Equal(t, "", groupA.Get("Measure"))
	assert.Equal(t, "Cognitive Sum.", groupA.Get("Study Group"))
	assert.NotEqual(t, "N/A", groupA.Get("P-Value"))

	groupB := table.Row(2)
	assert.Equal(t, "Emotional Sum.", groupB.Get("Study Group"))
	assert.Equal(t, "2", groupB.Get("No. Ppt."))
	for _, c := range []string{"Cohen's d", "95% CI", "Z-Stat.", "P-Value", "P-Value (FDR)", "Sig."} {
		assert.Equal(t, "N/A", groupB.Get(c), c)
	}

	gad := table.Row(3)
	assert.Equal(t, "GAD-7 (0-21)", gad.Get("Measure"))
	assert.Equal(t, "-1.00", gad.Get("Mean Diff."))
	assert.Equal(t, "-4.8", gad.Get("%"))
}

func TestFDRCorrectionCoversTestedRows(t *testing.T) {
	stats := GroupStatistics(participants(), measures(t), analysisConf(), zap.NewNop())
	tested := 0
	for _, s := range stats {
		if !s.Tested {
			continue
		}
		tested++
		assert.GreaterOrEqual(t, s.PAdjusted, s.Wilcoxon.PValue)
		assert.LessOrEqual(t, s.PAdjusted, 1.0)
	}
	assert.Equal(t, 6, tested)
}

func TestChangeLabel(t *testing.T) {
	b, e := Paired(participants(), "WEMWBS")
	assert.Equal(t, "↑ **", ChangeLabel(b, e))
	b, e = Paired(participants(), "GAD7")
	assert.Equal(t, "↓ **", ChangeLabel(b, e))
	assert.Equal(t, "N/A", ChangeLabel([]float64{1}, []float64{1}))
}

func TestRenderFigure(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderFigure(&buf, participants(), measures(t)))
	html := buf.String()
	assert.Contains(t, html, "Wellbeing")
	assert.Contains(t, html, "Depression")
	assert.Contains(t, html, "boxplot")

	path := filepath.Join(t.TempDir(), "figures", FigureFile)
	require.NoError(t, WriteFigure(path, participants(), measures(t)))
	assert.FileExists(t, path)
}

func TestMeasuresTakeMaximaFromRegistry(t *testing.T) {
	ms := measures(t)
	require.Len(t, ms, 3)
	assert.Equal(t, []float64{70, 21, 27}, []float64{ms[0].MaxPoints, ms[1].MaxPoints, ms[2].MaxPoints})

	reg, err := models.ParseRegistry([]byte(`
instruments:
  - code: WEMWBS
    max_points: 140
    items: [W_1]
  - code: GAD7
    max_points: 21
    items: [G_1]
  - code: PHQ9
    max_points: 27
    items: [P_1]
`))
	require.NoError(t, err)
	ms, err = Measures(reg)
	require.NoError(t, err)
	stats := GroupStatistics(participants(), ms, analysisConf(), zap.NewNop())
	assert.Equal(t, "+1.4", StatisticsFrame(stats).Value(0, "%"), "a +2 change is 1.4% of 140")

	reg, err = models.ParseRegistry([]byte(`
instruments:
  - code: WEMWBS
    items: [W_1]
`))
	require.NoError(t, err)
	_, err = Measures(reg)
	assert.ErrorContains(t, err, "WEMWBS has no max_points")
}
