package suspicious

import (
	"fmt"
	"testing"

	"journaling-go/internal/config"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() config.SuspiciousConfig {
	return config.SuspiciousConfig{
		ConsecutiveThreshold: 10,
		DurationCutoff:       0.4,
		IPStages:             []string{"Baseline", "Exit"},
		AllowedIPPrefixes:    []string{"0.0.0", "144.82.8"},
		IgnoreInTotal: []string{
			"Prescreening_Completed", "Baseline_Completed", "Exit_Completed",
			"Flagged_Baseline_IPAddress_Participants", "Flagged_Baseline_IPAddress_Count",
			"Flagged_Exit_IPAddress_Participants", "Flagged_Exit_IPAddress_Count",
		},
	}
}

func newDetector(t *testing.T) *Detector {
	t.Helper()
	reg, err := models.DefaultRegistry()
	require.NoError(t, err)
	return NewDetector(testConfig(), reg, zap.NewNop())
}

func TestSharedIPClusterIsFlagged(t *testing.T) {
	merged := frame.New([]string{"Email", "Exit_IPAddress"}, [][]string{
		{"a@x.org", "10.0.0.5"},
		{"b@x.org", "10.0.0.9"},
		{"c@x.org", "10.0.0.12"},
		{"d@x.org", "10.0.1.1"},
		{"e@x.org", "144.82.8.1"},
		{"f@x.org", "144.82.8.2"},
		{"g@x.org", ""},
		{"h@x.org", ""},
	})

	out := newDetector(t).Detect(merged, "Email", nil)

	for i := 0; i < 3; i++ {
		assert.Equal(t, "True", out.Value(i, "Flagged_Exit_IPAddress"), "row %d", i)
		assert.Equal(t, "3", out.Value(i, "Flagged_Exit_IPAddress_Count"), "row %d", i)
		assert.Equal(t, "a@x.org;b@x.org;c@x.org", out.Value(i, "Flagged_Exit_IPAddress_Participants"))
		assert.Equal(t, "1", out.Value(i, TotalColumn))
	}
	for i := 3; i < 8; i++ {
		assert.Equal(t, "False", out.Value(i, "Flagged_Exit_IPAddress"), "row %d", i)
		assert.Equal(t, "0", out.Value(i, "Flagged_Exit_IPAddress_Count"), "row %d", i)
	}
	assert.False(t, out.Has("Flagged_Baseline_IPAddress"), "stages without an IP column are skipped")
}

func TestConsecutiveRunWithoutSameAnswer(t *testing.T) {
	cols := []string{"Email"}
	row := []string{"a@x.org"}
	for i := 1; i <= 15; i++ {
		cols = append(cols, fmt.Sprintf("Baseline_BIS-%d", i))
		if i <= 11 {
			row = append(row, "2")
		} else {
			row = append(row, "3")
		}
	}
	merged := frame.New(cols, [][]string{row})

	out := newDetector(t).Detect(merged, "Email", map[string][]string{"Baseline": {"a@x.org"}})

	assert.Equal(t, "True", out.Value(0, "Flagged_ConsecutiveSameAnswer_Baseline"))
	assert.Equal(t, "False", out.Value(0, "Flagged_SameAnswer_Baseline"))
	assert.Equal(t, "True", out.Value(0, "Baseline_Completed"))
	assert.Equal(t, "False", out.Value(0, "Exit_Completed"))
	assert.Equal(t, "1", out.Value(0, TotalColumn))
}

func TestHasConsecutiveRun(t *testing.T) {
	ten := []string{"1", "1", "1", "1", "1", "1", "1", "1", "1", "1"}
	assert.False(t, HasConsecutiveRun(ten, 10), "exactly the threshold is not more than it")
	assert.True(t, HasConsecutiveRun(append(ten, "1.0"), 10))

	broken := append(append([]string{}, ten[:5]...), "")
	broken = append(broken, ten[:6]...)
	assert.False(t, HasConsecutiveRun(broken, 10), "a missing answer breaks the run")
}

func TestAllSame(t *testing.T) {
	assert.True(t, AllSame([]string{"2", "", "2"}))
	assert.False(t, AllSame([]string{"2", "3"}))
	assert.False(t, AllSame([]string{"", ""}))
}

func TestShortDurationAgainstTrimmedMean(t *testing.T) {
	merged := frame.New([]string{"Email", "Exit_Duration (in seconds)"}, [][]string{
		{"a@x.org", "100"},
		{"b@x.org", "110"},
		{"c@x.org", "120"},
		{"d@x.org", "130"},
		{"e@x.org", "1000"},
		{"f@x.org", "30"},
		{"g@x.org", ""},
	})

	out := newDetector(t).Detect(merged, "Email", nil)

	// trimmed mean is 115, cutoff 46
	assert.Equal(t, []string{"False", "False", "False", "False", "False", "True", "False"},
		out.Column("Flagged_Exit_Duration"))
	assert.False(t, out.Has("Flagged_Baseline_Duration"))
}

func TestIPPrefix(t *testing.T) {
	assert.Equal(t, "10.0.0", IPPrefix("10.0.0.5"))
	assert.Equal(t, "0.0.0", IPPrefix(""))
	assert.Equal(t, "fe80::1", IPPrefix("fe80::1"))
}

func TestFlagNames(t *testing.T) {
	f := frame.New([]string{"Email", "Flagged_A", "Flagged_B", "Exit_Completed"}, [][]string{{"a", "True", "False", "True"}})
	assert.Equal(t, []string{"Flagged_A"}, FlagNames(f.Row(0), f.Columns()))
}

func TestIPStagesOutsideRegistryAreIgnored(t *testing.T) {
	reg, err := models.DefaultRegistry()
	require.NoError(t, err)
	conf := testConfig()
	conf.IPStages = []string{"Exit", "Followup"}
	merged := frame.New([]string{"Email", "Exit_IPAddress", "Followup_IPAddress"}, [][]string{
		{"a@x.org", "10.0.0.5", "10.0.0.5"},
		{"b@x.org", "10.0.0.9", "10.0.0.9"},
	})

	out := NewDetector(conf, reg, zap.NewNop()).Detect(merged, "Email", nil)
	assert.True(t, out.Has("Flagged_Exit_IPAddress"))
	assert.False(t, out.Has("Flagged_Followup_IPAddress"))
}
