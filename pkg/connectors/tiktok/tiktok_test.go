package tiktok

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/testutil"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestReportChunksDatesAndPages(t *testing.T) {
	testutil.TestLogger(t)
	var queries []url.Values
	srv := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/report/integrated/get/", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("Access-Token"))
		q := r.URL.Query()
		queries = append(queries, q)

		totalPage := 1
		if q.Get("start_date") == "2024-01-01" {
			totalPage = 2
		}
		testutil.WriteJSON(t, w, http.StatusOK, map[string]interface{}{
			"code":    0,
			"message": "OK",
			"data": map[string]interface{}{
				"list": []interface{}{map[string]interface{}{
					"metrics":    map[string]interface{}{"spend": "1.5", "ad_id": "stale"},
					"dimensions": map[string]interface{}{"ad_id": "ad-" + q.Get("page"), "stat_time_day": q.Get("start_date") + " 00:00:00"},
				}},
				"page_info": map[string]interface{}{"page": 1, "total_page": totalPage},
			},
		})
	}))

	c := New("tok", WithBaseURL(srv.URL), WithRateLimit(0))
	table, err := c.Report(testutil.TestContext(t), ReportRequest{
		AdvertiserID: "7001",
		StartDate:    day("2024-01-01"),
		EndDate:      day("2024-02-15"),
	})
	require.NoError(t, err)

	require.Len(t, queries, 3)
	first := queries[0]
	assert.Equal(t, "7001", first.Get("advertiser_id"))
	assert.Equal(t, "AUCTION", first.Get("service_type"))
	assert.Equal(t, "BASIC", first.Get("report_type"))
	assert.Equal(t, "AUCTION_AD", first.Get("data_level"))
	assert.Equal(t, `["ad_id","stat_time_day"]`, first.Get("dimensions"))
	assert.Equal(t, `["campaign_name","adgroup_name","ad_id","spend","impressions","reach","clicks"]`, first.Get("metrics"))
	assert.Equal(t, "200", first.Get("page_size"))
	assert.Equal(t, "2024-01-31", first.Get("end_date"))
	assert.Equal(t, "2", queries[1].Get("page"))
	assert.Equal(t, "2024-02-01", queries[2].Get("start_date"))
	assert.Equal(t, "2024-02-15", queries[2].Get("end_date"))

	assert.Equal(t, []string{"ad_id", "spend", "stat_time_day"}, table.Columns)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, "ad-1", table.Rows[0]["ad_id"])
	assert.Equal(t, "ad-2", table.Rows[1]["ad_id"])
}

func TestReportAPIErrors(t *testing.T) {
	tests := []struct {
		code int
		want errors.ErrorType
	}{
		{code: 40100, want: errors.ErrorTypeRateLimit},
		{code: 40105, want: errors.ErrorTypeAuthentication},
		{code: 40002, want: errors.ErrorTypeExternal},
	}
	for _, tt := range tests {
		srv := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			testutil.WriteJSON(t, w, http.StatusOK, map[string]interface{}{"code": tt.code, "message": "nope", "request_id": "r1"})
		}))
		c := New("tok", WithBaseURL(srv.URL), WithRateLimit(0))
		_, err := c.Report(testutil.TestContext(t), ReportRequest{AdvertiserID: "1"})
		require.Error(t, err)
		assert.Equal(t, tt.want, errors.GetType(err), "code %d", tt.code)
		assert.Contains(t, err.Error(), "nope")
	}
}

func TestReportRequiresAdvertiser(t *testing.T) {
	_, err := New("tok").Report(testutil.TestContext(t), ReportRequest{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
