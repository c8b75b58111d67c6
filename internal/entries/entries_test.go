package entries

import (
	"testing"
	"time"

	"journaling-go/internal/config"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func roster() *frame.Frame {
	return frame.New([]string{"ParticipantID", "TelegramID", "StudyGroup", "Email"}, [][]string{
		{"P1", "111", "A", "one@x.org"},
		{"P2", "222", "C", "two@x.org"},
		{"P3", "333", "B", "three@x.org"},
	})
}

func newMerger(t *testing.T) *Merger {
	t.Helper()
	m, err := NewMerger(config.EntriesConfig{
		HeaderPatterns:   []string{`^(.*?\d{4}):\s*`},
		PreamblePatterns: []string{`Here are (my|the) responses to.*`},
	}, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestMergeNormalisesAndSorts(t *testing.T) {
	journals := frame.New(IngestColumns, [][]string{
		{"", "222", "2023-07-02 09:00:00", "j2", "Journal", "Sunday 2 July 2023: walked the dog in the park"},
		{"", "111", "2023-07-01 09:00:00", "j1", "Journal", "Felt calm and rested today"},
		{"", "999", "2023-07-01 09:00:00", "j0", "Journal", "unknown chat id entry"},
	})
	summaries := frame.New([]string{"TelegramID", "Timestamp", "GptSummary"}, [][]string{
		{"111", "2023-07-01 21:00:00", "Monday 3 July 2023: none Here are my responses to the prompts"},
	})

	out := newMerger(t).Merge(roster(), journals, summaries)

	assert.Equal(t, append(append([]string{}, models.EntryColumns...), "WordCount"), out.Columns())
	require.Equal(t, 4, out.Len(), "roster users without entries are join artefacts")
	assert.Equal(t, []string{"j0", "j1", "", "j2"}, out.Column("JournalUniqueID"))
	assert.Equal(t, []string{"", "P1", "P1", "P2"}, out.Column("ParticipantID"), "unmatched entries keep an empty ParticipantID")
	assert.Equal(t, []string{"", "A", "A", "C"}, out.Column("StudyGroup"))
	assert.Equal(t, "Summary", out.Value(2, "Type"))
	assert.Equal(t, "", out.Value(2, "EntryCount"))
	assert.Equal(t, "1", out.Value(1, "EntryCount"))
	assert.Equal(t, "walked the dog in the park", out.Value(3, "Content"))
	assert.Equal(t, "6", out.Value(3, "WordCount"))
	assert.Equal(t, "", out.Value(2, "Content"), "header and preamble leave nothing")
}

func TestSortEntriesTieBreaksOnEntryIDAndMissingLast(t *testing.T) {
	f := frame.New([]string{"Timestamp", "JournalUniqueID"}, [][]string{
		{"", "a"},
		{"2023-07-01 09:00:00", "c"},
		{"2023-07-01 09:00:00", "b"},
		{"2023-06-30T10:00:00Z", "d"},
	})
	out := SortEntries(f, "Timestamp")
	assert.Equal(t, []string{"d", "b", "c", "a"}, out.Column("JournalUniqueID"))
}

func TestSortEntriesAcrossTimestampSpellings(t *testing.T) {
	f := frame.New([]string{"Timestamp", "JournalUniqueID"}, [][]string{
		{"2023-07-02 23:30:00-05:00", "a"}, // 2023-07-03 04:30 UTC
		{"not a date", "d"},
		{"2023-07-03 01:00:00", "b"},
		{"", "e"},
		{"2023-07-03T02:00:00Z", "c"},
		{"2023-07-01", "f"},
		{"2023-07-03 01:00:00.000000+00:00", "a2"},
	})
	out := SortEntries(f, "Timestamp")
	assert.Equal(t, []string{"f", "a2", "b", "c", "a", "d", "e"}, out.Column("JournalUniqueID"),
		"parsed values chronologically, then unparsable text, then missing")
}

func TestParseTimestampOffsets(t *testing.T) {
	for _, s := range []string{
		"2023-07-03 04:30:00+00:00",
		"2023-07-02 23:30:00-05:00",
		"2023-07-03T04:30:00Z",
		"2023-07-03 04:30:00",
		"2023-07-03 04:30:00.000000",
	} {
		ts, ok := ParseTimestamp(s)
		require.True(t, ok, s)
		assert.True(t, ts.Equal(time.Date(2023, 7, 3, 4, 30, 0, 0, time.UTC)), s)
	}
	_, ok := ParseTimestamp("yesterday")
	assert.False(t, ok)
}

func TestMergeInterleavesSummariesWithJournals(t *testing.T) {
	journals := frame.New(IngestColumns, [][]string{
		{"", "111", "2023-07-01 09:00:00", "j1", "Journal", "morning pages"},
		{"", "222", "2023-07-01 08:00:00", "j2", "Journal", "early walk"},
		{"", "111", "", "j3", "Journal", "undated entry"},
	})
	summaries := frame.New([]string{"TelegramID", "Timestamp", "GptSummary"}, [][]string{
		{"111", "2023-07-01 08:00:00", "calm week"},
		{"222", "2023-07-01 10:00:00", "busy week"},
	})

	out := newMerger(t).Merge(roster(), journals, summaries)
	assert.Equal(t, []string{"", "j2", "j1", "", "j3"}, out.Column("JournalUniqueID"),
		"timestamp ties break on entry ID and missing timestamps sort last")
	assert.Equal(t, []string{"Summary", "Journal", "Journal", "Summary", "Journal"}, out.Column("Type"))
	assert.Equal(t, []string{"P1", "P2", "P1", "P2", "P1"}, out.Column("ParticipantID"))
}

func TestIngestIsIncrementalAndDuplicateFree(t *testing.T) {
	raw := frame.New([]string{"TelegramID", "JournalTimestamp", "JournalUniqueID", "EntryType", "JournalContent"}, [][]string{
		{"111", "2023-07-01 09:00:00", "j1", "Journal", "first"},
		{"222", "2023-07-02 09:00:00", "j2", "Journal", "second"},
	})

	first, added := Ingest(nil, raw, roster(), zap.NewNop())
	require.Equal(t, 2, added)
	assert.Equal(t, IngestColumns, first.Columns())
	assert.Equal(t, []string{"P1", "P2"}, first.Column("ParticipantID"))

	more := frame.Concat(raw, frame.New([]string{"TelegramID", "JournalTimestamp", "JournalUniqueID", "EntryType", "JournalContent"}, [][]string{
		{"333", "2023-06-30 09:00:00", "j3", "Journal", "third"},
		{"333", "2023-06-30 09:00:00", "j3", "Journal", "third again"},
	}))
	second, added := Ingest(first, more, roster(), zap.NewNop())
	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"j3", "j1", "j2"}, second.Column("JournalUniqueID"))

	third, added := Ingest(second, more, roster(), zap.NewNop())
	assert.Equal(t, 0, added)
	assert.Equal(t, second.Records(), third.Records(), "re-running on unchanged input is a no-op")
}

func TestCombineWithTotals(t *testing.T) {
	totals := frame.New([]string{"Email", "ParticipantID", "B_WEMWBS_Total"}, [][]string{
		{"one@x.org", "P1", "40"},
		{"lost@x.org", "", "33"},
	})
	rows := frame.New([]string{"ParticipantID", "JournalUniqueID"}, [][]string{
		{"P1", "j1"},
		{"P2", "j2"},
	})

	c := CombineWithTotals(totals, rows, roster(), zap.NewNop())
	assert.Equal(t, 3, c.Full.Len())
	assert.Equal(t, []string{"P1", "P2"}, c.Anonymous.Column("ParticipantID"))
	assert.False(t, c.Anonymous.Has("Email"))
	assert.Equal(t, []string{"j3"}, MissingEntries(frame.New([]string{"JournalUniqueID"}, [][]string{{"j1"}, {"j3"}}), c.Anonymous))
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 3, WordCount("  one\ttwo\nthree "))
	assert.Equal(t, 0, WordCount(""))
}
