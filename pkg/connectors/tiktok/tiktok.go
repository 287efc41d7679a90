// Package tiktok pulls integrated reports from the TikTok Marketing API.
package tiktok

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/route1io/connectors/pkg/clients"
	"github.com/route1io/connectors/pkg/dates"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/models"
	"github.com/route1io/connectors/pkg/observability"
)

const (
	connectorName = "tiktok"

	defaultBaseURL = "https://business-api.tiktok.com/open_api/v1.3"
	reportPath     = "/report/integrated/get/"

	pageSize = 200

	defaultRequestsPerSecond = 10.0
)

// Defaults used for empty ReportRequest fields.
var (
	DefaultDataLevel  = "AUCTION_AD"
	DefaultDimensions = []string{"ad_id", "stat_time_day"}
	DefaultMetrics    = []string{
		"campaign_name",
		"adgroup_name",
		"ad_id",
		"spend",
		"impressions",
		"reach",
		"clicks",
	}
)

// API error codes with a dedicated error type.
const (
	codeRateLimited   = 40100
	codeTokenEmpty    = 40104
	codeTokenRejected = 40105
)

// ReportRequest describes a basic auction report. Zero dates default to
// the seven days ending today.
type ReportRequest struct {
	AdvertiserID string
	// DataLevel must match the ID dimension, e.g. AUCTION_CAMPAIGN for
	// campaign_id.
	DataLevel  string
	Dimensions []string
	Metrics    []string
	StartDate  time.Time
	EndDate    time.Time
}

// Client calls the reporting endpoint with an access token.
type Client struct {
	http        *clients.HTTPClient
	baseURL     string
	accessToken string
}

// Option configures a Client.
type Option func(*clients.HTTPConfig, *Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(_ *clients.HTTPConfig, c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRateLimit overrides the requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(cfg *clients.HTTPConfig, _ *Client) { cfg.RateLimit = perSecond }
}

// New creates a client for an advertiser access token.
func New(accessToken string, opts ...Option) *Client {
	cfg := clients.DefaultHTTPConfig()
	cfg.RateLimit = defaultRequestsPerSecond
	c := &Client{baseURL: defaultBaseURL, accessToken: accessToken}
	for _, opt := range opts {
		opt(cfg, c)
	}
	c.http = clients.NewHTTPClient(cfg)
	return c
}

type reportResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Data      struct {
		List []struct {
			Metrics    map[string]interface{} `json:"metrics"`
			Dimensions map[string]interface{} `json:"dimensions"`
		} `json:"list"`
		PageInfo struct {
			Page      int `json:"page"`
			TotalPage int `json:"total_page"`
		} `json:"page_info"`
	} `json:"data"`
}

func (r *reportResponse) err() error {
	if r.Code == 0 {
		return nil
	}
	typ := errors.ErrorTypeExternal
	switch r.Code {
	case codeRateLimited:
		typ = errors.ErrorTypeRateLimit
	case codeTokenEmpty, codeTokenRejected:
		typ = errors.ErrorTypeAuthentication
	}
	return errors.Newf(typ, "tiktok api error %d: %s", r.Code, r.Message).
		WithDetail("code", r.Code).
		WithDetail("request_id", r.RequestID)
}

// Report returns the report rows between the request dates, requested in
// 30-day windows. Each row holds the metrics and then the dimensions of
// one result, dimensions winning on shared keys.
func (c *Client) Report(ctx context.Context, req ReportRequest) (table *models.Table, err error) {
	ctx, done := observability.Start(ctx, connectorName, "report")
	defer func() { done(err) }()

	if req.AdvertiserID == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "advertiser id is required")
	}
	if req.DataLevel == "" {
		req.DataLevel = DefaultDataLevel
	}
	if len(req.Dimensions) == 0 {
		req.Dimensions = DefaultDimensions
	}
	if len(req.Metrics) == 0 {
		req.Metrics = DefaultMetrics
	}
	if req.EndDate.IsZero() {
		req.EndDate = dates.Today()
	}
	if req.StartDate.IsZero() {
		req.StartDate = req.EndDate.AddDate(0, 0, -7)
	}

	header := http.Header{}
	header.Set("Access-Token", c.accessToken)

	table = models.NewTable()
	requests := 0
	for _, window := range dates.Ranges(req.StartDate, req.EndDate, dates.DefaultIncrement) {
		for page := 1; ; page++ {
			q, err := clients.EncodeQuery(map[string]interface{}{
				"advertiser_id": req.AdvertiserID,
				"service_type":  "AUCTION",
				"report_type":   "BASIC",
				"data_level":    req.DataLevel,
				"dimensions":    req.Dimensions,
				"metrics":       req.Metrics,
				"start_date":    dates.Day(window.Start),
				"end_date":      dates.Day(window.End),
				"page":          page,
				"page_size":     pageSize,
			}, false)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid report parameters")
			}

			var resp reportResponse
			if err := c.http.GetJSON(ctx, c.baseURL+reportPath+"?"+q.Encode(), header, &resp); err != nil {
				return nil, err
			}
			requests++
			if err := resp.err(); err != nil {
				return nil, err
			}

			for _, item := range resp.Data.List {
				row := make(models.Row, len(item.Metrics)+len(item.Dimensions))
				for k, v := range item.Metrics {
					row[k] = v
				}
				for k, v := range item.Dimensions {
					row[k] = v
				}
				table.Append(row)
			}
			if page >= resp.Data.PageInfo.TotalPage {
				break
			}
		}
	}

	metrics.RecordRows(connectorName, table.Len())
	logger.WithContext(ctx).Info("fetched tiktok report",
		zap.String("advertiser_id", req.AdvertiserID),
		zap.Int("requests", requests),
		zap.Int("rows", table.Len()))
	return table, nil
}
