package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ReadCSV loads a delimited snapshot. A missing file returns an error that
// wraps os.ErrNotExist.
func ReadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	f, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return f, nil
}

// Read parses CSV from r. The first record is the header; a leading unnamed
// index column, as written by spreadsheet exports, is dropped.
func Read(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return Empty(), nil
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	cols := make([]string, 0, len(header))
	keep := make([]int, 0, len(header))
	for i, h := range header {
		if h == "" || strings.HasPrefix(h, "Unnamed:") {
			continue
		}
		cols = append(cols, h)
		keep = append(keep, i)
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]string, len(keep))
		for j, i := range keep {
			if i < len(rec) && !IsMissing(rec[i]) {
				row[j] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return adopt(cols, rows), nil
}

// WriteCSV writes the frame to path, creating parent directories.
func (f *Frame) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := f.Write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

// Write encodes the frame as CSV.
func (f *Frame) Write(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.cols); err != nil {
		return err
	}
	for _, r := range f.rows {
		if err := writer.Write(r); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Records returns the frame as a slice of column->value maps, for JSON views.
func (f *Frame) Records() []map[string]string {
	out := make([]map[string]string, len(f.rows))
	for i := range f.rows {
		rec := make(map[string]string, len(f.cols))
		for _, c := range f.cols {
			rec[c] = f.Value(i, c)
		}
		out[i] = rec
	}
	return out
}
