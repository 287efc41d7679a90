package analytics

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/analyticsreporting/v4"
	"google.golang.org/api/option"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/models"
	"github.com/route1io/connectors/pkg/observability"
)

const uaPageSize = 10000

var (
	defaultUADimensions = []string{"ga:date"}
	defaultUAMetrics    = []string{"ga:sessions", "ga:users"}
)

// UAClient runs reports against Universal Analytics views.
type UAClient struct {
	svc      *analyticsreporting.Service
	pageSize int64
}

// ConnectUA creates a Universal Analytics client. A nil ts leaves
// authentication to opts.
func ConnectUA(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*UAClient, error) {
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := analyticsreporting.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create analytics reporting service")
	}
	return &UAClient{svc: svc, pageSize: uaPageSize}, nil
}

// BatchGet returns the report for the view req.ID, following page tokens.
func (c *UAClient) BatchGet(ctx context.Context, req ReportRequest) (table *models.Table, err error) {
	ctx, done := observability.Start(ctx, connectorName, "ua_batch_get")
	defer func() { done(err) }()

	if req.ID == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "view id is required")
	}
	req = req.withDefaults(defaultUADimensions, defaultUAMetrics)

	rr := &analyticsreporting.ReportRequest{
		ViewId:     req.ID,
		DateRanges: []*analyticsreporting.DateRange{{StartDate: req.StartDate, EndDate: req.EndDate}},
		PageSize:   c.pageSize,
	}
	for _, d := range req.Dimensions {
		rr.Dimensions = append(rr.Dimensions, &analyticsreporting.Dimension{Name: d})
	}
	for _, m := range req.Metrics {
		rr.Metrics = append(rr.Metrics, &analyticsreporting.Metric{Expression: m})
	}

	var headers []string
	for {
		resp, err := c.svc.Reports.BatchGet(&analyticsreporting.GetReportsRequest{
			ReportRequests: []*analyticsreporting.ReportRequest{rr},
		}).Context(ctx).Do()
		if err != nil {
			return nil, errors.FromGoogleAPI(err)
		}
		if len(resp.Reports) == 0 {
			return nil, errors.Newf(errors.ErrorTypeData, "no report returned for view %s", req.ID)
		}
		report := resp.Reports[0]

		if table == nil {
			if h := report.ColumnHeader; h != nil {
				headers = append(headers, h.Dimensions...)
				if h.MetricHeader != nil {
					for _, e := range h.MetricHeader.MetricHeaderEntries {
						headers = append(headers, e.Name)
					}
				}
			}
			table = models.NewTable(headers...)
		}

		if report.Data != nil {
			for _, r := range report.Data.Rows {
				values := append([]string(nil), r.Dimensions...)
				// one DateRangeValues per requested date range
				if len(r.Metrics) > 0 {
					values = append(values, r.Metrics[0].Values...)
				}
				appendRow(table, headers, values)
			}
		}

		if report.NextPageToken == "" {
			break
		}
		rr.PageToken = report.NextPageToken
	}

	metrics.RecordRows(connectorName, table.Len())
	logger.WithContext(ctx).Info("fetched universal analytics report",
		zap.String("view_id", req.ID),
		zap.Int("rows", table.Len()))
	return table, nil
}
