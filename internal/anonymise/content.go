package anonymise

import (
	"strings"

	"journaling-go/internal/entries"
	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"go.uber.org/zap"
)

// ContentResult holds the anonymised entry tables: Both keeps the raw
// Content next to JournalAnonymised, Only drops the raw text.
type ContentResult struct {
	Both      *frame.Frame
	Only      *frame.Frame
	Processed int
	Failed    int
}

// AnonymiseContent fills JournalAnonymised for entries not yet present in
// existing (nil on the first run). A failing entry is logged with its ID and
// left empty.
func AnonymiseContent(existing, preprocessed *frame.Frame, a Anonymiser, log *zap.Logger) ContentResult {
	done := map[string]bool{}
	if existing != nil {
		for _, id := range existing.Column(models.ColEntryID) {
			done[id] = true
		}
	}
	// Entries without an ID (summaries) are only taken on the first run.
	fresh := preprocessed.Filter(func(r frame.Row) bool {
		id := r.Get(models.ColEntryID)
		if id == "" {
			return existing == nil
		}
		return !done[id]
	})

	var failed int
	fresh = fresh.WithColumn(models.ColAnonymised, func(r frame.Row) string {
		content := r.Get(models.ColContent)
		if content == "" {
			return ""
		}
		out, err := a.Anonymise(content)
		if err != nil {
			failed++
			log.Error("Failed to anonymise entry",
				zap.String("entry_id", r.Get(models.ColEntryID)),
				zap.Int("row", r.Index()),
				zap.Error(err))
			return ""
		}
		return out
	})
	log.Info("Content anonymised", zap.Int("new", fresh.Len()), zap.Int("failed", failed))

	both := fresh
	if existing != nil {
		both = frame.Concat(existing, fresh)
	}
	both = entries.SortEntries(both, models.ColTimestamp)
	return ContentResult{
		Both:      both,
		Only:      both.Drop(models.ColContent),
		Processed: fresh.Len(),
		Failed:    failed,
	}
}

// englishTokenizer is a punkt sentence tokenizer trained on English text.
var englishTokenizer = mustEnglishTokenizer()

func mustEnglishTokenizer() *sentences.DefaultSentenceTokenizer {
	t, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		panic("anonymise: loading English sentence model: " + err.Error())
	}
	return t
}

// SplitSentences breaks text into sentences with the punkt model, which
// keeps abbreviations and initials inside their sentence.
func SplitSentences(text string) []string {
	var out []string
	for _, s := range englishTokenizer.Tokenize(text) {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Utterances explodes anonymised entries into one row per sentence with
// UtteranceID {JournalUniqueID}_{n} and a per-sentence WordCount.
func Utterances(anonymised *frame.Frame) *frame.Frame {
	withText := anonymised.Filter(func(r frame.Row) bool { return !r.Missing(models.ColAnonymised) })
	cols := withText.Drop(models.ColWordCount).Columns()
	outCols := append(append([]string{}, cols...), models.ColUtterance, models.ColWordCount, models.ColUtteranceID)

	var rows [][]string
	for _, r := range withText.Rows() {
		base := r.Values(cols...)
		id := r.Get(models.ColEntryID)
		for n, s := range SplitSentences(r.Get(models.ColAnonymised)) {
			row := append(append([]string{}, base...),
				s,
				frame.FormatFloat(float64(entries.WordCount(s))),
				id+"_"+frame.FormatFloat(float64(n+1)))
			rows = append(rows, row)
		}
	}
	return frame.New(outCols, rows)
}
