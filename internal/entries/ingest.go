// Package entries turns raw bot exports into the entry-level journal tables:
// incremental ingestion, normalisation of journals and summaries, content
// cleaning and the join with survey totals.
package entries

import (
	"time"

	"journaling-go/internal/frame"
	"journaling-go/internal/models"

	"go.uber.org/zap"
)

// Raw bot export column names.
const (
	RawTimestamp = "JournalTimestamp"
	RawType      = "EntryType"
	RawContent   = "JournalContent"
	RawSummary   = "GptSummary"
)

// IngestColumns is the schema of the ingested journal snapshot.
var IngestColumns = []string{
	models.ColParticipantID, models.ColTelegramID, RawTimestamp,
	models.ColEntryID, RawType, RawContent,
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts the timestamp spellings found in the exports. Values
// without an offset are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// timestampRank orders the three kinds of timestamp value: parsable ones
// first, then unparsable text, then missing.
func timestampRank(s string) (int, time.Time) {
	if s == "" {
		return 2, time.Time{}
	}
	if t, ok := ParseTimestamp(s); ok {
		return 0, t
	}
	return 1, time.Time{}
}

// timestampLess orders parsable timestamps chronologically, then unparsable
// values as text, then missing ones.
func timestampLess(a, b string) bool {
	ra, ta := timestampRank(a)
	rb, tb := timestampRank(b)
	if ra != rb {
		return ra < rb
	}
	if ra == 0 {
		return ta.Before(tb)
	}
	return a < b
}

// SortEntries orders rows by (timestamp, entry ID), stably.
func SortEntries(f *frame.Frame, tsCol string) *frame.Frame {
	return f.SortStable(func(a, b frame.Row) bool {
		ta, tb := a.Get(tsCol), b.Get(tsCol)
		if ta != tb {
			return timestampLess(ta, tb)
		}
		return a.Get(models.ColEntryID) < b.Get(models.ColEntryID)
	})
}

// Ingest appends journal rows not yet present in existing. existing may be
// nil on the first run. The result is sorted and projected to
// IngestColumns; added reports how many rows were new.
func Ingest(existing, raw, roster *frame.Frame, log *zap.Logger) (out *frame.Frame, added int) {
	seen := map[string]bool{}
	if existing != nil {
		for _, id := range existing.Column(models.ColEntryID) {
			seen[id] = true
		}
	}

	fresh := raw.Filter(func(r frame.Row) bool {
		id := r.Get(models.ColEntryID)
		if id == "" || seen[id] {
			return false
		}
		seen[id] = true
		return true
	})

	pids := roster.Lookup(models.ColTelegramID, models.ColParticipantID)
	fresh = fresh.WithColumn(models.ColParticipantID, func(r frame.Row) string {
		return pids[r.Get(models.ColTelegramID)]
	})

	log.Info("Journal ingestion",
		zap.Int("raw", raw.Len()),
		zap.Int("new", fresh.Len()),
		zap.Int("unmatched", fresh.Len()-fresh.CountNonMissing(models.ColParticipantID)))

	combined := fresh
	if existing != nil {
		combined = frame.Concat(existing, fresh)
	}
	return SortEntries(combined, RawTimestamp).Select(IngestColumns...), fresh.Len()
}
