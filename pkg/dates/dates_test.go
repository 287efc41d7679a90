package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRanges(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		incr  int
		want  [][2]string
	}{
		{
			name:  "single window",
			start: "2024-01-01", end: "2024-01-10", incr: 30,
			want: [][2]string{{"2024-01-01", "2024-01-10"}},
		},
		{
			name:  "same day",
			start: "2024-01-01", end: "2024-01-01", incr: 30,
			want: [][2]string{{"2024-01-01", "2024-01-01"}},
		},
		{
			name:  "several windows",
			start: "2024-01-01", end: "2024-03-15", incr: 30,
			want: [][2]string{
				{"2024-01-01", "2024-01-31"},
				{"2024-02-01", "2024-03-02"},
				{"2024-03-03", "2024-03-15"},
			},
		},
		{
			name:  "exact boundary",
			start: "2024-01-01", end: "2024-01-31", incr: 30,
			want: [][2]string{{"2024-01-01", "2024-01-31"}},
		},
		{
			name:  "default increment",
			start: "2024-01-01", end: "2024-02-15", incr: 0,
			want: [][2]string{{"2024-01-01", "2024-01-31"}, {"2024-02-01", "2024-02-15"}},
		},
		{
			name:  "reversed",
			start: "2024-02-01", end: "2024-01-01", incr: 30,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ranges(day(tt.start), day(tt.end), tt.incr)
			var pairs [][2]string
			for _, r := range got {
				pairs = append(pairs, [2]string{Day(r.Start), Day(r.End)})
			}
			assert.Equal(t, tt.want, pairs)
		})
	}
}

func TestMonthPeriods(t *testing.T) {
	got := MonthPeriods(day("2024-01-15"), day("2024-03-10"))
	require.Len(t, got, 3)
	assert.Equal(t, "2024-01-15", Day(got[0].Start))
	assert.Equal(t, "2024-01-31", Day(got[0].End))
	assert.Equal(t, "2024-02-01", Day(got[1].Start))
	assert.Equal(t, "2024-02-29", Day(got[1].End))
	assert.Equal(t, "2024-03-10", Day(got[2].End))

	assert.Empty(t, MonthPeriods(day("2024-02-01"), day("2024-01-01")))
}

func TestWeekStart(t *testing.T) {
	tests := map[string]string{
		"2024-03-03": "2024-03-03", // Sunday
		"2024-03-06": "2024-03-03", // Wednesday
		"2024-03-09": "2024-03-03", // Saturday
		"2024-03-10": "2024-03-10",
	}
	for in, want := range tests {
		assert.Equal(t, want, Day(WeekStart(day(in))), in)
	}
}

func TestTruncate(t *testing.T) {
	ts := time.Date(2024, 5, 6, 13, 14, 15, 16, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), Truncate(ts))
}
