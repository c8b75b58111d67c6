// Package suspicious flags survey respondents whose answers look careless or
// fraudulent: constant answers, long identical runs, shared networks and
// implausibly fast completion.
package suspicious

import (
	"sort"
	"strings"

	"journaling-go/internal/config"
	"journaling-go/internal/frame"
	"journaling-go/internal/metrics"
	"journaling-go/internal/models"

	"go.uber.org/zap"
)

// ListSeparator joins co-flagged identifiers inside one CSV cell.
const ListSeparator = ";"

// TotalColumn holds the per-respondent flag count.
const TotalColumn = "Flagged_Total"

// Detector computes the suspicious-response flags.
type Detector struct {
	conf config.SuspiciousConfig
	reg  *models.Registry
	log  *zap.Logger
}

// NewDetector creates a detector.
func NewDetector(conf config.SuspiciousConfig, reg *models.Registry, log *zap.Logger) *Detector {
	return &Detector{conf: conf, reg: reg, log: log.Named("suspicious")}
}

// Detect returns one row per respondent of merged, keyed by idCol.
// respondents lists, per stage name, the identifiers that submitted that
// stage.
func (d *Detector) Detect(merged *frame.Frame, idCol string, respondents map[string][]string) *frame.Frame {
	out := merged.Select(idCol)

	for _, stage := range d.reg.Stages {
		done := make(map[string]bool, len(respondents[stage.Name]))
		for _, id := range respondents[stage.Name] {
			done[id] = true
		}
		out = out.WithColumn(stage.Name+"_Completed", func(r frame.Row) string {
			return frame.FormatBool(done[r.Get(idCol)])
		})
	}

	out = d.flagAnswers(out, merged)
	out = d.flagIPs(out, merged, idCol)
	out = d.flagDurations(out, merged)
	return d.total(out, idCol)
}

func (d *Detector) flagAnswers(out, merged *frame.Frame) *frame.Frame {
	for _, stage := range d.reg.Stages {
		same := make([]bool, merged.Len())
		runs := make([]bool, merged.Len())
		for _, inst := range d.reg.Instruments {
			cols := inst.StageColumns(stage.Name)
			var present []string
			for _, c := range cols {
				if merged.Has(c) {
					present = append(present, c)
				}
			}
			if len(present) == 0 {
				continue
			}
			for i, r := range merged.Rows() {
				vals := r.Values(present...)
				if AllSame(vals) {
					same[i] = true
				}
				if HasConsecutiveRun(vals, d.conf.ConsecutiveThreshold) {
					runs[i] = true
				}
			}
		}
		out = out.WithColumn("Flagged_SameAnswer_"+stage.Name, func(r frame.Row) string {
			return frame.FormatBool(same[r.Index()])
		})
		out = out.WithColumn("Flagged_ConsecutiveSameAnswer_"+stage.Name, func(r frame.Row) string {
			return frame.FormatBool(runs[r.Index()])
		})
		d.log.Info("Answer pattern flags",
			zap.String("stage", stage.Name),
			zap.Int("same_answer", countTrue(same)),
			zap.Int("consecutive_same_answer", countTrue(runs)))
	}
	return out
}

// AllSame reports whether the non-missing values hold exactly one distinct
// value.
func AllSame(vals []string) bool {
	distinct := map[string]bool{}
	for _, v := range vals {
		if v != "" {
			distinct[normalise(v)] = true
		}
	}
	return len(distinct) == 1
}

// HasConsecutiveRun reports a run of more than threshold identical values in
// order. A missing value breaks the run.
func HasConsecutiveRun(vals []string, threshold int) bool {
	count := 0
	last := ""
	for _, v := range vals {
		if v == "" {
			count, last = 0, ""
			continue
		}
		v = normalise(v)
		if count > 0 && v == last {
			count++
		} else {
			count, last = 1, v
		}
		if count > threshold {
			return true
		}
	}
	return false
}

// normalise makes "3" and "3.0" compare equal.
func normalise(v string) string {
	if n, ok := frame.ParseFloat(v); ok {
		return frame.FormatFloat(n)
	}
	return v
}

// IPPrefix truncates an address to its first three octets; a missing
// address maps to "0.0.0".
func IPPrefix(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "0.0.0"
	}
	parts := strings.Split(ip, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, ".")
}

func (d *Detector) flagIPs(out, merged *frame.Frame, idCol string) *frame.Frame {
	allowed := make(map[string]bool, len(d.conf.AllowedIPPrefixes))
	for _, p := range d.conf.AllowedIPPrefixes {
		allowed[p] = true
	}

	for _, stage := range d.conf.IPStages {
		if _, ok := d.reg.Stage(stage); !ok {
			d.log.Warn("Unknown stage in ip_stages, skipping", zap.String("stage", stage))
			continue
		}
		col := stage + models.ColIPAddressSuffix
		if !merged.Has(col) {
			d.log.Warn("No IP address column, skipping shared-IP check", zap.String("stage", stage))
			continue
		}

		groups := map[string][]string{}
		prefixOf := make([]string, merged.Len())
		for i, r := range merged.Rows() {
			p := IPPrefix(r.Get(col))
			prefixOf[i] = p
			groups[p] = append(groups[p], r.Get(idCol))
		}
		clusters := map[string][]string{}
		for p, ids := range groups {
			if allowed[p] || countDistinct(ids) < 2 {
				continue
			}
			clusters[p] = ids
		}

		name := "Flagged_" + col
		out = out.WithColumn(name, func(r frame.Row) string {
			_, hit := clusters[prefixOf[r.Index()]]
			return frame.FormatBool(hit)
		})
		out = out.WithColumn(name+"_Participants", func(r frame.Row) string {
			return strings.Join(clusters[prefixOf[r.Index()]], ListSeparator)
		})
		out = out.WithColumn(name+"_Count", func(r frame.Row) string {
			return frame.FormatFloat(float64(len(clusters[prefixOf[r.Index()]])))
		})

		prefixes := make([]string, 0, len(clusters))
		for p := range clusters {
			prefixes = append(prefixes, p)
		}
		sort.Strings(prefixes)
		d.log.Info("Shared IP clusters", zap.String("stage", stage), zap.Strings("prefixes", prefixes))
	}
	return out
}

func (d *Detector) flagDurations(out, merged *frame.Frame) *frame.Frame {
	for _, stage := range d.reg.Stages {
		col := stage.Name + models.ColDurationSuffix
		if !merged.Has(col) {
			continue
		}
		mean := metrics.TrimmedMean(merged.Floats(col))
		if !mean.Calculated {
			d.log.Warn("No durations to compare", zap.String("stage", stage.Name))
			continue
		}
		cutoff := d.conf.DurationCutoff * mean.Value
		flagged := 0
		out = out.WithColumn("Flagged_"+stage.Name+"_Duration", func(r frame.Row) string {
			v, ok := merged.Row(r.Index()).Float(col)
			hit := ok && v < cutoff
			if hit {
				flagged++
			}
			return frame.FormatBool(hit)
		})
		d.log.Info("Duration flags",
			zap.String("stage", stage.Name),
			zap.Float64("mean_excluding_outliers", mean.Value),
			zap.Float64("cutoff", cutoff),
			zap.Int("flagged", flagged))
	}
	return out
}

// total counts true flags and non-empty co-flagged lists, skipping the
// configured ignore-list.
func (d *Detector) total(out *frame.Frame, idCol string) *frame.Frame {
	ignore := map[string]bool{idCol: true}
	for _, c := range d.conf.IgnoreInTotal {
		ignore[c] = true
	}
	cols := out.Columns()
	return out.WithColumn(TotalColumn, func(r frame.Row) string {
		n := 0
		for _, c := range cols {
			if ignore[c] {
				continue
			}
			v := r.Get(c)
			switch {
			case v == "True":
				n++
			case strings.HasSuffix(c, "_Participants") && v != "":
				n++
			}
		}
		return frame.FormatFloat(float64(n))
	})
}

// FlagNames lists the raised boolean flags of one detector output row.
func FlagNames(r frame.Row, cols []string) []string {
	var out []string
	for _, c := range cols {
		if strings.HasPrefix(c, "Flagged_") && r.Get(c) == "True" {
			out = append(out, c)
		}
	}
	return out
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

func countDistinct(ids []string) int {
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	return len(seen)
}
