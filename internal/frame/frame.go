// Package frame is a small immutable, column-oriented table used by every
// pipeline stage. Cells are strings; the empty string is the missing value.
// Every operation returns a new Frame and never mutates its receiver.
package frame

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Frame is an ordered set of named columns over string rows.
type Frame struct {
	cols []string
	idx  map[string]int
	rows [][]string
}

// Row is a read-only view of one frame row.
type Row struct {
	f *Frame
	i int
}

var missingTokens = map[string]struct{}{
	"": {}, "nan": {}, "NaN": {}, "-nan": {}, "-NaN": {}, "NA": {}, "N/A": {}, "n/a": {},
	"<NA>": {}, "NULL": {}, "null": {}, "None": {}, "#N/A": {},
}

// IsMissing reports whether a cell holds no value.
func IsMissing(s string) bool {
	_, ok := missingTokens[strings.TrimSpace(s)]
	return ok
}

// FormatFloat renders a number the shortest way that round-trips.
func FormatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatBool renders booleans the way the study's CSV files spell them.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// New builds a frame from column names and rows. Short rows are padded with
// missing values; the inputs are copied.
func New(cols []string, rows [][]string) *Frame {
	f := &Frame{cols: append([]string(nil), cols...), idx: make(map[string]int, len(cols))}
	for i, c := range f.cols {
		f.idx[c] = i
	}
	f.rows = make([][]string, len(rows))
	for i, r := range rows {
		row := make([]string, len(cols))
		copy(row, r)
		f.rows[i] = row
	}
	return f
}

// Empty returns a frame with the given columns and no rows.
func Empty(cols ...string) *Frame {
	return New(cols, nil)
}

// adopt wraps already-owned slices without copying.
func adopt(cols []string, rows [][]string) *Frame {
	f := &Frame{cols: cols, idx: make(map[string]int, len(cols)), rows: rows}
	for i, c := range cols {
		f.idx[c] = i
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.rows) }

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string { return append([]string(nil), f.cols...) }

// Has reports whether the column exists.
func (f *Frame) Has(col string) bool {
	_, ok := f.idx[col]
	return ok
}

// Row returns a view of row i.
func (f *Frame) Row(i int) Row { return Row{f: f, i: i} }

// Rows iterates all rows in order.
func (f *Frame) Rows() []Row {
	out := make([]Row, len(f.rows))
	for i := range f.rows {
		out[i] = Row{f: f, i: i}
	}
	return out
}

// Value returns the cell at row i, column col; absent columns read as missing.
func (f *Frame) Value(i int, col string) string {
	j, ok := f.idx[col]
	if !ok {
		return ""
	}
	v := f.rows[i][j]
	if IsMissing(v) {
		return ""
	}
	return v
}

// Column returns a copy of one column's values.
func (f *Frame) Column(col string) []string {
	out := make([]string, len(f.rows))
	for i := range f.rows {
		out[i] = f.Value(i, col)
	}
	return out
}

// Index returns the row position inside its frame.
func (r Row) Index() int { return r.i }

// Get returns a cell of the row.
func (r Row) Get(col string) string { return r.f.Value(r.i, col) }

// Missing reports whether the cell is missing.
func (r Row) Missing(col string) bool { return r.f.Value(r.i, col) == "" }

// Float parses a cell as a number. Non-numeric and missing cells report false.
func (r Row) Float(col string) (float64, bool) {
	return ParseFloat(r.Get(col))
}

// ParseFloat coerces a cell to a number; anything unparsable is missing.
func ParseFloat(s string) (float64, bool) {
	if IsMissing(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Values returns the row's cells for the given columns.
func (r Row) Values(cols ...string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = r.Get(c)
	}
	return out
}

// Filter keeps rows for which keep returns true.
func (f *Frame) Filter(keep func(Row) bool) *Frame {
	rows := make([][]string, 0, len(f.rows))
	for i, r := range f.rows {
		if keep(Row{f: f, i: i}) {
			rows = append(rows, append([]string(nil), r...))
		}
	}
	return adopt(append([]string(nil), f.cols...), rows)
}

// WithColumn adds col, or replaces it in place, with values computed per row.
func (f *Frame) WithColumn(col string, fn func(Row) string) *Frame {
	cols := append([]string(nil), f.cols...)
	j, exists := f.idx[col]
	if !exists {
		cols = append(cols, col)
		j = len(cols) - 1
	}
	rows := make([][]string, len(f.rows))
	for i, r := range f.rows {
		row := make([]string, len(cols))
		copy(row, r)
		row[j] = fn(Row{f: f, i: i})
		rows[i] = row
	}
	return adopt(cols, rows)
}

// Select projects the frame onto cols, in that order. Absent columns are
// created empty.
func (f *Frame) Select(cols ...string) *Frame {
	rows := make([][]string, len(f.rows))
	for i := range f.rows {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = f.Value(i, c)
		}
		rows[i] = row
	}
	return adopt(append([]string(nil), cols...), rows)
}

// Drop removes the named columns if present.
func (f *Frame) Drop(cols ...string) *Frame {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	keep := make([]string, 0, len(f.cols))
	for _, c := range f.cols {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	return f.Select(keep...)
}

// Rename renames columns; names not in the map are unchanged.
func (f *Frame) Rename(names map[string]string) *Frame {
	cols := make([]string, len(f.cols))
	for i, c := range f.cols {
		if n, ok := names[c]; ok {
			cols[i] = n
		} else {
			cols[i] = c
		}
	}
	return New(cols, f.rows)
}

// Prefix prepends p to every column name except those in keep.
func (f *Frame) Prefix(p string, keep ...string) *Frame {
	skip := make(map[string]bool, len(keep))
	for _, k := range keep {
		skip[k] = true
	}
	names := make(map[string]string, len(f.cols))
	for _, c := range f.cols {
		if !skip[c] {
			names[c] = p + c
		}
	}
	return f.Rename(names)
}

// Concat stacks frames vertically over the union of their columns, in
// first-seen column order.
func Concat(frames ...*Frame) *Frame {
	var cols []string
	seen := map[string]bool{}
	for _, fr := range frames {
		for _, c := range fr.cols {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	var rows [][]string
	for _, fr := range frames {
		rows = append(rows, fr.Select(cols...).rows...)
	}
	return adopt(cols, rows)
}

// SortStable orders rows by less, keeping the relative order of equal rows.
func (f *Frame) SortStable(less func(a, b Row) bool) *Frame {
	order := make([]int, len(f.rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return less(Row{f: f, i: order[a]}, Row{f: f, i: order[b]})
	})
	rows := make([][]string, len(order))
	for i, o := range order {
		rows[i] = append([]string(nil), f.rows[o]...)
	}
	return adopt(append([]string(nil), f.cols...), rows)
}

// GroupFirst keeps the first row per non-missing key value. The result is
// ordered by key; rows with a missing key are dropped.
func (f *Frame) GroupFirst(key string) *Frame {
	seen := map[string]bool{}
	firsts := f.Filter(func(r Row) bool {
		k := r.Get(key)
		if k == "" || seen[k] {
			return false
		}
		seen[k] = true
		return true
	})
	return firsts.SortStable(func(a, b Row) bool { return a.Get(key) < b.Get(key) })
}

// DedupeFirst keeps the first row per key value, preserving row order.
// Rows with a missing key are kept.
func (f *Frame) DedupeFirst(key string) *Frame {
	seen := map[string]bool{}
	return f.Filter(func(r Row) bool {
		k := r.Get(key)
		if k == "" {
			return true
		}
		if seen[k] {
			return false
		}
		seen[k] = true
		return true
	})
}

// Unique returns the distinct non-missing values of col in first-seen order.
func (f *Frame) Unique(col string) []string {
	seen := map[string]bool{}
	var out []string
	for i := range f.rows {
		v := f.Value(i, col)
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// NUnique counts distinct non-missing values of col.
func (f *Frame) NUnique(col string) int { return len(f.Unique(col)) }

// Counts tallies the non-missing values of col.
func (f *Frame) Counts(col string) map[string]int {
	out := map[string]int{}
	for i := range f.rows {
		if v := f.Value(i, col); v != "" {
			out[v]++
		}
	}
	return out
}

// CountNonMissing counts rows where col holds a value.
func (f *Frame) CountNonMissing(col string) int {
	n := 0
	for i := range f.rows {
		if f.Value(i, col) != "" {
			n++
		}
	}
	return n
}

// Floats returns the numeric values of col, skipping missing cells.
func (f *Frame) Floats(col string) []float64 {
	var out []float64
	for i := range f.rows {
		if v, ok := ParseFloat(f.Value(i, col)); ok {
			out = append(out, v)
		}
	}
	return out
}

// IsIn builds a membership predicate over col.
func IsIn(col string, values []string) func(Row) bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return func(r Row) bool { return set[r.Get(col)] }
}
