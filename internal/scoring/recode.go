// Package scoring recodes questionnaire answers and aggregates them into
// instrument totals and subscale scores.
package scoring

import (
	"strings"

	"journaling-go/internal/frame"
	"journaling-go/internal/models"
)

// RecodeValue maps an answer label to its numeric code. Values that are
// already numeric pass through; anything else becomes missing.
func RecodeValue(inst models.Instrument, v string) string {
	v = strings.TrimSpace(v)
	if frame.IsMissing(v) {
		return ""
	}
	if code, ok := inst.Responses[v]; ok {
		return frame.FormatFloat(float64(code))
	}
	for label, code := range inst.Responses {
		if strings.EqualFold(label, v) {
			return frame.FormatFloat(float64(code))
		}
	}
	if n, ok := frame.ParseFloat(v); ok {
		return frame.FormatFloat(n)
	}
	return ""
}

// RecodeStage recodes every registered item column of one raw stage export.
// Column names are the unprefixed export names.
func RecodeStage(f *frame.Frame, reg *models.Registry) *frame.Frame {
	out := f
	for _, inst := range reg.Instruments {
		if len(inst.Responses) == 0 {
			continue
		}
		for _, item := range inst.Items {
			if !out.Has(item) {
				continue
			}
			inst, item := inst, item
			out = out.WithColumn(item, func(r frame.Row) string {
				return RecodeValue(inst, r.Get(item))
			})
		}
	}
	return out
}

// binary collapses a four-point agreement scale: 1,2 become 0 and 3,4 become 1.
func binary(v float64) float64 {
	switch v {
	case 1, 2:
		return 0
	case 3, 4:
		return 1
	}
	return v
}
