package frame

// JoinKind selects which unmatched rows a join keeps.
type JoinKind int

const (
	// LeftJoin keeps every left row.
	LeftJoin JoinKind = iota
	// OuterJoin keeps every left row and every unmatched right row.
	OuterJoin
)

// Join combines two frames on key. Each left row is paired with every right
// row sharing its key; missing keys never match. Columns shared by both sides
// take the left value unless it is missing. Output columns are the left
// columns followed by the right-only columns.
func Join(left, right *Frame, key string, kind JoinKind) *Frame {
	cols := left.Columns()
	for _, c := range right.cols {
		if !left.Has(c) {
			cols = append(cols, c)
		}
	}

	byKey := map[string][]int{}
	for i := range right.rows {
		if k := right.Value(i, key); k != "" {
			byKey[k] = append(byKey[k], i)
		}
	}

	merge := func(li, ri int) []string {
		row := make([]string, len(cols))
		for j, c := range cols {
			var v string
			if li >= 0 {
				v = left.Value(li, c)
			}
			if v == "" && ri >= 0 {
				v = right.Value(ri, c)
			}
			row[j] = v
		}
		return row
	}

	var rows [][]string
	matched := make([]bool, len(right.rows))
	for li := range left.rows {
		k := left.Value(li, key)
		hits := byKey[k]
		if k == "" || len(hits) == 0 {
			rows = append(rows, merge(li, -1))
			continue
		}
		for _, ri := range hits {
			matched[ri] = true
			rows = append(rows, merge(li, ri))
		}
	}
	if kind == OuterJoin {
		for ri := range right.rows {
			if !matched[ri] {
				rows = append(rows, merge(-1, ri))
			}
		}
	}
	return adopt(cols, rows)
}

// Lookup builds a key -> value map from two columns; the first occurrence of
// a key wins.
func (f *Frame) Lookup(keyCol, valueCol string) map[string]string {
	out := map[string]string{}
	for i := range f.rows {
		k := f.Value(i, keyCol)
		if k == "" {
			continue
		}
		if _, seen := out[k]; !seen {
			out[k] = f.Value(i, valueCol)
		}
	}
	return out
}
