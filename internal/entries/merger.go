package entries

import (
	"fmt"
	"regexp"
	"strings"

	"journaling-go/internal/config"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"go.uber.org/zap"
)

// presenceColumns mark a real entry; rows empty in all of them are join
// artefacts.
var presenceColumns = []string{
	models.ColTimestamp, models.ColEntryID, models.ColType, models.ColContent, models.ColEntryCount,
}

var emptyHeaderAnswer = regexp.MustCompile(`(\d{4}): none`)

// Merger normalises journals and summaries into the canonical entry table.
type Merger struct {
	header   []*regexp.Regexp
	preamble []*regexp.Regexp
	log      *zap.Logger
}

// NewMerger compiles the configured cleaning patterns.
func NewMerger(conf config.EntriesConfig, log *zap.Logger) (*Merger, error) {
	m := &Merger{log: log.Named("merger")}
	var err error
	if m.header, err = compileAll(conf.HeaderPatterns); err != nil {
		return nil, fmt.Errorf("invalid header pattern: %w", err)
	}
	if m.preamble, err = compileAll(conf.PreamblePatterns); err != nil {
		return nil, fmt.Errorf("invalid preamble pattern: %w", err)
	}
	return m, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// Merge maps entries to participants through the roster, tags summaries,
// drops join artefacts, cleans content, counts words and sorts by
// (Timestamp, JournalUniqueID). Entries without a roster match keep an empty
// ParticipantID.
func (m *Merger) Merge(roster, journals, summaries *frame.Frame) *frame.Frame {
	users := roster.Select(models.ColTelegramID, models.ColParticipantID, models.ColStudyGroup)

	j := journals.Drop(models.ColParticipantID, models.ColStudyGroup).Rename(map[string]string{
		RawContent:   models.ColContent,
		RawType:      models.ColType,
		RawTimestamp: models.ColTimestamp,
	}).WithColumn(models.ColEntryCount, func(frame.Row) string { return "1" })

	s := summaries.Drop(models.ColParticipantID, models.ColStudyGroup).Rename(map[string]string{
		RawSummary:         models.ColContent,
		"SummaryTimestamp": models.ColTimestamp,
	}).WithColumn(models.ColType, func(frame.Row) string { return models.TypeSummary })

	// Roster users without entries surface as artefact rows here.
	all := frame.Concat(
		frame.Join(users, j, models.ColTelegramID, frame.OuterJoin),
		frame.Join(users, s, models.ColTelegramID, frame.OuterJoin),
	)

	before := all.Len()
	all = all.Filter(func(r frame.Row) bool {
		for _, c := range presenceColumns {
			if !r.Missing(c) {
				return true
			}
		}
		return false
	})

	all = all.WithColumn(models.ColContent, func(r frame.Row) string {
		return m.Clean(r.Get(models.ColContent))
	})
	all = all.Select(models.EntryColumns...).WithColumn(models.ColWordCount, func(r frame.Row) string {
		if r.Missing(models.ColContent) {
			return ""
		}
		return frame.FormatFloat(float64(WordCount(r.Get(models.ColContent))))
	})

	m.log.Info("Entries merged",
		zap.Int("journals", journals.Len()),
		zap.Int("summaries", summaries.Len()),
		zap.Int("before", before),
		zap.Int("after", all.Len()),
		zap.Int("removed", before-all.Len()),
		zap.Int("unmatched", all.Len()-all.CountNonMissing(models.ColParticipantID)))

	return SortEntries(all, models.ColTimestamp)
}

// Clean strips the dated header and the templated response preamble.
func (m *Merger) Clean(content string) string {
	if content == "" {
		return ""
	}
	content = emptyHeaderAnswer.ReplaceAllString(content, "$1:")
	for _, re := range m.header {
		content = re.ReplaceAllString(content, "")
	}
	for _, re := range m.preamble {
		content = re.ReplaceAllString(content, "")
	}
	return content
}

// WordCount counts whitespace-delimited tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
