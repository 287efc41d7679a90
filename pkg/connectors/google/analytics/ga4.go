package analytics

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/models"
	"github.com/route1io/connectors/pkg/observability"
)

// GA4 page size; the API caps a page at 250,000 rows.
const ga4PageSize = 100000

var (
	defaultGA4Dimensions = []string{"date"}
	defaultGA4Metrics    = []string{"activeUsers", "sessions"}
)

// GA4Client runs reports against GA4 properties.
type GA4Client struct {
	svc      *analyticsdata.Service
	pageSize int64
}

// ConnectGA4 creates a GA4 client. A nil ts leaves authentication to opts.
func ConnectGA4(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*GA4Client, error) {
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create analytics data service")
	}
	return &GA4Client{svc: svc, pageSize: ga4PageSize}, nil
}

// RunReport returns the report for the property req.ID, one column per
// dimension and metric, reading every page.
func (c *GA4Client) RunReport(ctx context.Context, req ReportRequest) (table *models.Table, err error) {
	ctx, done := observability.Start(ctx, connectorName, "ga4_run_report")
	defer func() { done(err) }()

	if req.ID == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "property id is required")
	}
	req = req.withDefaults(defaultGA4Dimensions, defaultGA4Metrics)

	property := req.ID
	if !strings.HasPrefix(property, "properties/") {
		property = "properties/" + property
	}

	body := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{StartDate: req.StartDate, EndDate: req.EndDate}},
		Limit:      c.pageSize,
	}
	for _, d := range req.Dimensions {
		body.Dimensions = append(body.Dimensions, &analyticsdata.Dimension{Name: d})
	}
	for _, m := range req.Metrics {
		body.Metrics = append(body.Metrics, &analyticsdata.Metric{Name: m})
	}

	var headers []string
	for {
		resp, err := c.svc.Properties.RunReport(property, body).Context(ctx).Do()
		if err != nil {
			return nil, errors.FromGoogleAPI(err)
		}
		if table == nil {
			for _, h := range resp.DimensionHeaders {
				headers = append(headers, h.Name)
			}
			for _, h := range resp.MetricHeaders {
				headers = append(headers, h.Name)
			}
			table = models.NewTable(headers...)
		}

		for _, r := range resp.Rows {
			values := make([]string, 0, len(r.DimensionValues)+len(r.MetricValues))
			for _, v := range r.DimensionValues {
				values = append(values, v.Value)
			}
			for _, v := range r.MetricValues {
				values = append(values, v.Value)
			}
			appendRow(table, headers, values)
		}

		body.Offset += int64(len(resp.Rows))
		if len(resp.Rows) == 0 || body.Offset >= resp.RowCount {
			break
		}
	}

	metrics.RecordRows(connectorName, table.Len())
	logger.WithContext(ctx).Info("fetched ga4 report",
		zap.String("property", property),
		zap.Int("rows", table.Len()))
	return table, nil
}
