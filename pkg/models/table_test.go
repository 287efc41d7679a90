package models

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAddsColumnsInStableOrder(t *testing.T) {
	tbl := NewTable("date")
	tbl.Append(Row{"date": "2024-01-01", "clicks": 3, "spend": 1.5})
	tbl.Append(Row{"date": "2024-01-02", "impressions": 10})

	assert.Equal(t, []string{"date", "clicks", "spend", "impressions"}, tbl.Columns)
	assert.Equal(t, 2, tbl.Len())
	assert.True(t, tbl.Has("spend"))
	assert.False(t, tbl.Has("reach"))
}

func TestWriteCSV(t *testing.T) {
	tbl := NewTable("Date", "Campaign Name", "Clicks")
	tbl.Append(Row{"Date": "2024-01-01", "Campaign Name": "Brand, US", "Clicks": 4})
	tbl.Append(Row{"Date": "2024-01-02"})

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))
	assert.Equal(t, "Date,Campaign Name,Clicks\n2024-01-01,\"Brand, US\",4\n2024-01-02,,\n", buf.String())
}

func TestReadCSVPadsShortRows(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("a,b,c\n1,2,3\n4\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Columns)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"1", "2", "3"}, {"4", "", ""}}, tbl.Records())

	empty, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestReadCSVDuplicateHeaders(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		columns []string
		row     Row
	}{
		{
			name:    "repeated name",
			in:      "a,b,a,c\n1,2,3,4\n",
			columns: []string{"a", "b", "a.1", "c"},
			row:     Row{"a": "1", "b": "2", "a.1": "3", "c": "4"},
		},
		{
			name:    "three times",
			in:      "x,x,x\n1,2,3\n",
			columns: []string{"x", "x.1", "x.2"},
			row:     Row{"x": "1", "x.1": "2", "x.2": "3"},
		},
		{
			name:    "suffix already taken",
			in:      "a,a.1,a\n1,2,3\n",
			columns: []string{"a", "a.1", "a.2"},
			row:     Row{"a": "1", "a.1": "2", "a.2": "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := ReadCSV(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.columns, tbl.Columns)
			require.Equal(t, 1, tbl.Len())
			assert.Equal(t, tt.row, tbl.Rows[0])
		})
	}
}

func TestSaveAndLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	tbl := NewTable("x")
	tbl.Append(Row{"x": "1"})
	require.NoError(t, tbl.SaveCSV(path))

	loaded, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Records(), loaded.Records())
}

func TestSortBy(t *testing.T) {
	tbl := NewTable("campaign_name", "date", "spend")
	tbl.Append(Row{"campaign_name": "b", "date": "2024-01-02", "spend": 10.0})
	tbl.Append(Row{"campaign_name": "a", "date": "2024-01-02", "spend": 2.0})
	tbl.Append(Row{"campaign_name": "a", "date": "2024-01-01", "spend": 9.0})

	tbl.SortBy("campaign_name", "date")
	assert.Equal(t, []interface{}{9.0, 2.0, 10.0}, column(tbl, "spend"))

	tbl.SortBy("spend")
	assert.Equal(t, []interface{}{2.0, 9.0, 10.0}, column(tbl, "spend"))
}

func TestRenameSelectFill(t *testing.T) {
	tbl := NewTable("date", "cost")
	tbl.Append(Row{"date": "2024-01-01", "cost": 1.25})
	tbl.Append(Row{"date": "2024-01-02"})

	tbl.Rename(map[string]string{"cost": "Total Spent"})
	assert.True(t, tbl.Has("Total Spent"))
	assert.False(t, tbl.Has("cost"))

	tbl.FillMissing(0)
	assert.Equal(t, 0, tbl.Rows[1]["Total Spent"])

	sel := tbl.Select("Total Spent", "missing")
	assert.Equal(t, []string{"Total Spent", "missing"}, sel.Columns)
	assert.Equal(t, [][]string{{"Total Spent", "missing"}, {"1.25", ""}, {"0", ""}}, sel.Records())
}

func TestRenameSwapAndChain(t *testing.T) {
	tbl := NewTable("a", "b", "c")
	tbl.Append(Row{"a": 1, "b": 2, "c": 3})

	tbl.Rename(map[string]string{"a": "b", "b": "a"})
	assert.Equal(t, []string{"b", "a", "c"}, tbl.Columns)
	assert.Equal(t, Row{"b": 1, "a": 2, "c": 3}, tbl.Rows[0])

	tbl.Rename(map[string]string{"b": "c", "c": "d"})
	assert.Equal(t, []string{"c", "a", "d"}, tbl.Columns)
	assert.Equal(t, Row{"c": 1, "a": 2, "d": 3}, tbl.Rows[0])
	assert.True(t, tbl.Has("d"))
	assert.False(t, tbl.Has("b"))
}

func TestConcat(t *testing.T) {
	a := NewTable("x")
	a.Append(Row{"x": 1})
	b := NewTable("y")
	b.Append(Row{"y": 2})
	a.Concat(b)
	a.Concat(nil)
	assert.Equal(t, []string{"x", "y"}, a.Columns)
	assert.Equal(t, 2, a.Len())
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{1.5, "1.5"},
		{float64(100), "100"},
		{int64(7), "7"},
		{true, "true"},
		{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "2024-03-01"},
		{[]interface{}{"a", 1.0}, `["a",1]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in))
	}
}

func TestFlatten(t *testing.T) {
	in := map[string]interface{}{
		"campaign": map[string]interface{}{"id": "1", "name": "Brand"},
		"metrics":  map[string]interface{}{"clicks": "4"},
		"empty":    map[string]interface{}{},
		"tags":     []interface{}{"x"},
	}

	dotted := Flatten(in, ".")
	assert.Equal(t, "Brand", dotted["campaign.name"])
	assert.Equal(t, "4", dotted["metrics.clicks"])
	assert.Equal(t, []interface{}{"x"}, dotted["tags"])
	assert.Contains(t, dotted, "empty")

	underscored := Flatten(in, "_")
	assert.Equal(t, "1", underscored["campaign_id"])
}

func column(tbl *Table, name string) []interface{} {
	out := make([]interface{}, 0, tbl.Len())
	for _, r := range tbl.Rows {
		out = append(out, r[name])
	}
	return out
}
