// Package models defines the tabular report type returned by the reporting
// connectors and written to CSV by callers.
package models

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/route1io/connectors/pkg/errors"
)

// Row is one report row keyed by column name.
type Row map[string]interface{}

// Table is an ordered set of columns and the rows that fill them. Rows may
// omit columns; missing cells render as empty strings.
type Table struct {
	Columns []string
	Rows    []Row

	index map[string]struct{}
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	t := &Table{}
	t.AddColumns(columns...)
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Has reports whether col is a column of t.
func (t *Table) Has(col string) bool {
	t.ensureIndex()
	_, ok := t.index[col]
	return ok
}

// AddColumns appends columns that are not already present, in order.
func (t *Table) AddColumns(cols ...string) {
	t.ensureIndex()
	for _, c := range cols {
		if _, ok := t.index[c]; ok {
			continue
		}
		t.index[c] = struct{}{}
		t.Columns = append(t.Columns, c)
	}
}

// Append adds row. Keys that are not yet columns are added in sorted order
// so that tables built from JSON objects have a stable layout.
func (t *Table) Append(row Row) {
	t.ensureIndex()
	var fresh []string
	for k := range row {
		if _, ok := t.index[k]; !ok {
			fresh = append(fresh, k)
		}
	}
	sort.Strings(fresh)
	t.AddColumns(fresh...)
	t.Rows = append(t.Rows, row)
}

// Concat appends the rows and columns of other.
func (t *Table) Concat(other *Table) {
	if other == nil {
		return
	}
	t.AddColumns(other.Columns...)
	t.Rows = append(t.Rows, other.Rows...)
}

// Rename renames columns in place. All names are mapped at once, so
// swaps and chains see the original names. Unknown names are ignored.
func (t *Table) Rename(names map[string]string) {
	target := func(c string) string {
		if n, ok := names[c]; ok {
			return n
		}
		return c
	}

	cols := t.Columns
	t.Columns, t.index = nil, nil
	for _, c := range cols {
		t.AddColumns(target(c))
	}

	for i, row := range t.Rows {
		out := make(Row, len(row))
		for k, v := range row {
			if _, renamed := names[k]; !renamed {
				out[k] = v
			}
		}
		for k, v := range row {
			if n, renamed := names[k]; renamed {
				out[n] = v
			}
		}
		t.Rows[i] = out
	}
}

// Select returns a table restricted to cols, in that order. Columns absent
// from t are kept and stay empty.
func (t *Table) Select(cols ...string) *Table {
	out := NewTable(cols...)
	for _, row := range t.Rows {
		r := make(Row, len(cols))
		for _, c := range cols {
			if v, ok := row[c]; ok {
				r[c] = v
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// FillMissing sets every absent or nil cell to v.
func (t *Table) FillMissing(v interface{}) {
	for _, row := range t.Rows {
		for _, c := range t.Columns {
			if cur, ok := row[c]; !ok || cur == nil {
				row[c] = v
			}
		}
	}
}

// SortBy sorts rows by cols ascending. The sort is stable; numbers compare
// numerically and everything else by its string form.
func (t *Table) SortBy(cols ...string) {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		for _, c := range cols {
			if cmp := compare(t.Rows[i][c], t.Rows[j][c]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

// Records returns the header followed by each row as strings.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Columns...))
	for _, row := range t.Rows {
		rec := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			rec[i] = FormatValue(row[c])
		}
		out = append(out, rec)
	}
	return out
}

// WriteCSV writes the header and rows to w.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write CSV")
	}
	return nil
}

// SaveCSV writes the table to path, creating parent directories.
func (t *Table) SaveCSV(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", dir)
		}
	}
	f, err := os.Create(path) //nolint:gosec // caller-controlled output path
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", path)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to close %s", path)
	}
	return nil
}

// ReadCSV parses a CSV document whose first record is the header. Ragged
// records are allowed; short rows leave trailing cells empty. A repeated
// header name gets a ".N" suffix, as pandas does, so no cell is lost.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse CSV")
	}
	if len(records) == 0 {
		return NewTable(), nil
	}

	header := uniqueNames(records[0])
	t := NewTable(header...)
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, c := range header {
			if i < len(rec) {
				row[c] = rec[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	out := make([]string, len(names))
	counts := make(map[string]int, len(names))
	for i, n := range names {
		if counts[n] == 0 {
			out[i] = n
			counts[n] = 1
			continue
		}
		name := fmt.Sprintf("%s.%d", n, counts[n])
		for seen[name] {
			counts[n]++
			name = fmt.Sprintf("%s.%d", n, counts[n])
		}
		counts[n]++
		seen[name] = true
		out[i] = name
	}
	return out
}

// LoadCSV reads a CSV file from path.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path) //nolint:gosec // caller-controlled input path
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFile, "failed to open %s", path)
	}
	defer f.Close()
	return ReadCSV(f)
}

// FormatValue renders a cell for CSV and spreadsheet output.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	case gojson.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case []interface{}, map[string]interface{}:
		data, err := gojson.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}

func (t *Table) ensureIndex() {
	if t.index != nil {
		return
	}
	t.index = make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		t.index[c] = struct{}{}
	}
}

func compare(a, b interface{}) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := FormatValue(a), FormatValue(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
