package analytics

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/analyticsreporting/v4"
	"google.golang.org/api/option"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/json"
	"github.com/route1io/connectors/pkg/testutil"
)

func testOptions(t *testing.T, handler http.HandlerFunc) []option.ClientOption {
	srv := testutil.NewServer(t, handler)
	return []option.ClientOption{
		option.WithEndpoint(srv.URL + "/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	}
}

func TestGA4RunReportPaginates(t *testing.T) {
	testutil.TestLogger(t)
	var offsets []int64
	opts := testOptions(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/properties/123:runReport", r.URL.Path)
		var req analyticsdata.RunReportRequest
		require.NoError(t, json.Decode(r.Body, &req))
		offsets = append(offsets, req.Offset)
		require.Len(t, req.DateRanges, 1)
		assert.Equal(t, DefaultStartDate, req.DateRanges[0].StartDate)
		assert.Equal(t, DefaultEndDate, req.DateRanges[0].EndDate)
		require.Len(t, req.Dimensions, 1)
		assert.Equal(t, "country", req.Dimensions[0].Name)

		day := "20240101"
		if req.Offset > 0 {
			day = "20240102"
		}
		testutil.WriteJSON(t, w, http.StatusOK, map[string]interface{}{
			"dimensionHeaders": []interface{}{map[string]string{"name": "country"}},
			"metricHeaders":    []interface{}{map[string]string{"name": "sessions", "type": "TYPE_INTEGER"}},
			"rows": []interface{}{map[string]interface{}{
				"dimensionValues": []interface{}{map[string]string{"value": "NL-" + day}},
				"metricValues":    []interface{}{map[string]string{"value": "7"}},
			}},
			"rowCount": 2,
		})
	})

	c, err := ConnectGA4(testutil.TestContext(t), nil, opts...)
	require.NoError(t, err)
	c.pageSize = 1

	table, err := c.RunReport(testutil.TestContext(t), ReportRequest{ID: "123", Dimensions: []string{"country"}, Metrics: []string{"sessions"}})
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 1}, offsets)
	assert.Equal(t, []string{"country", "sessions"}, table.Columns)
	assert.Equal(t, [][]string{
		{"country", "sessions"},
		{"NL-20240101", "7"},
		{"NL-20240102", "7"},
	}, table.Records())
}

func TestGA4RunReportRequiresProperty(t *testing.T) {
	c, err := ConnectGA4(testutil.TestContext(t), nil, testOptions(t, func(w http.ResponseWriter, r *http.Request) {})...)
	require.NoError(t, err)
	_, err = c.RunReport(testutil.TestContext(t), ReportRequest{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestUABatchGetFollowsPageToken(t *testing.T) {
	testutil.TestLogger(t)
	var tokens []string
	opts := testOptions(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/reports:batchGet", r.URL.Path)
		var req analyticsreporting.GetReportsRequest
		require.NoError(t, json.Decode(r.Body, &req))
		require.Len(t, req.ReportRequests, 1)
		rr := req.ReportRequests[0]
		assert.Equal(t, "view-1", rr.ViewId)
		assert.Equal(t, "ga:sessions", rr.Metrics[0].Expression)
		tokens = append(tokens, rr.PageToken)

		report := map[string]interface{}{
			"columnHeader": map[string]interface{}{
				"dimensions": []string{"ga:date"},
				"metricHeader": map[string]interface{}{
					"metricHeaderEntries": []interface{}{
						map[string]string{"name": "ga:sessions"},
						map[string]string{"name": "ga:users"},
					},
				},
			},
			"data": map[string]interface{}{
				"rows": []interface{}{map[string]interface{}{
					"dimensions": []string{"2024010" + string(rune('1'+len(tokens)-1))},
					"metrics":    []interface{}{map[string]interface{}{"values": []string{"10", "8"}}},
				}},
			},
		}
		if rr.PageToken == "" {
			report["nextPageToken"] = "1"
		}
		testutil.WriteJSON(t, w, http.StatusOK, map[string]interface{}{"reports": []interface{}{report}})
	})

	c, err := ConnectUA(testutil.TestContext(t), nil, opts...)
	require.NoError(t, err)

	table, err := c.BatchGet(testutil.TestContext(t), ReportRequest{ID: "view-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"", "1"}, tokens)
	assert.Equal(t, [][]string{
		{"ga:date", "ga:sessions", "ga:users"},
		{"20240101", "10", "8"},
		{"20240102", "10", "8"},
	}, table.Records())
}

func TestUABatchGetMapsAPIErrors(t *testing.T) {
	opts := testOptions(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "User does not have sufficient permissions for this profile."}}`))
	})
	c, err := ConnectUA(testutil.TestContext(t), nil, opts...)
	require.NoError(t, err)

	_, err = c.BatchGet(testutil.TestContext(t), ReportRequest{ID: "view-1"})
	assert.True(t, errors.IsType(err, errors.ErrorTypePermission))
}
