// Package linkedin pulls campaign analytics from the LinkedIn Marketing API.
package linkedin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/route1io/connectors/pkg/clients"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/models"
	"github.com/route1io/connectors/pkg/observability"
)

const (
	connectorName = "linkedin"

	defaultBaseURL = "https://api.linkedin.com/v2"

	campaignPageSize         = 100
	defaultRequestsPerSecond = 5.0
)

var analyticsFields = []string{"impressions", "clicks", "costInUsd", "dateRange", "pivotValue"}

// Report columns.
const (
	ColumnDate         = "Date"
	ColumnCampaignName = "Campaign Name"
	ColumnImpressions  = "Impressions"
	ColumnClicks       = "Clicks"
	ColumnTotalSpent   = "Total Spent"
)

// Client calls the marketing endpoints with a member access token.
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

// New creates a client for an access token with the r_ads_reporting scope.
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

// get sends a Rest.li 1.0 request: dotted query keys and bare URNs, with
// no protocol version header.
func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.accessToken)
	return c.http.GetJSON(ctx, c.baseURL+path+"?"+q.Encode(), header, out)
}

type campaignsResponse struct {
	Elements []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"elements"`
	Paging struct {
		Start int `json:"start"`
		Count int `json:"count"`
		Total int `json:"total"`
	} `json:"paging"`
}

// Campaigns maps the ID of every campaign visible to the token to its name.
func (c *Client) Campaigns(ctx context.Context) (names map[string]string, err error) {
	ctx, done := observability.Start(ctx, connectorName, "campaigns")
	defer func() { done(err) }()

	names = make(map[string]string)
	for start := 0; ; {
		q := url.Values{}
		q.Set("q", "search")
		q.Set("start", strconv.Itoa(start))
		q.Set("count", strconv.Itoa(campaignPageSize))

		var resp campaignsResponse
		if err := c.get(ctx, "/adCampaignsV2", q, &resp); err != nil {
			return nil, err
		}
		for _, e := range resp.Elements {
			names[strconv.FormatInt(e.ID, 10)] = e.Name
		}
		start += len(resp.Elements)
		if len(resp.Elements) == 0 || start >= resp.Paging.Total {
			break
		}
	}
	return names, nil
}

type dateParts struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type analyticsResponse struct {
	Elements []struct {
		Impressions int64  `json:"impressions"`
		Clicks      int64  `json:"clicks"`
		CostInUsd   string `json:"costInUsd"`
		PivotValue  string `json:"pivotValue"`
		DateRange   struct {
			Start dateParts `json:"start"`
		} `json:"dateRange"`
	} `json:"elements"`
}

// AdAnalytics returns daily campaign analytics of an ad account from start
// onwards, with columns date, id, impressions, cost and clicks.
func (c *Client) AdAnalytics(ctx context.Context, adAccountID string, start time.Time) (table *models.Table, err error) {
	ctx, done := observability.Start(ctx, connectorName, "ad_analytics")
	defer func() { done(err) }()

	if adAccountID == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "ad account id is required")
	}

	q := url.Values{}
	q.Set("q", "analytics")
	q.Set("pivot", "CAMPAIGN")
	q.Set("dateRange.start.day", strconv.Itoa(start.Day()))
	q.Set("dateRange.start.month", strconv.Itoa(int(start.Month())))
	q.Set("dateRange.start.year", strconv.Itoa(start.Year()))
	q.Set("timeGranularity", "DAILY")
	q.Set("fields", strings.Join(analyticsFields, ","))
	q.Set("accounts", "urn:li:sponsoredAccount:"+adAccountID)

	var resp analyticsResponse
	if err := c.get(ctx, "/adAnalyticsV2", q, &resp); err != nil {
		return nil, err
	}

	table = models.NewTable("date", "id", "impressions", "cost", "clicks")
	for _, e := range resp.Elements {
		d := e.DateRange.Start
		urn := strings.Split(e.PivotValue, ":")
		table.Rows = append(table.Rows, models.Row{
			"date":        fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day),
			"id":          urn[len(urn)-1],
			"impressions": e.Impressions,
			"cost":        e.CostInUsd,
			"clicks":      e.Clicks,
		})
	}
	metrics.RecordRows(connectorName, table.Len())
	return table, nil
}

// Report joins AdAnalytics with campaign names and returns the columns
// Date, Campaign Name, Impressions, Clicks and Total Spent.
func (c *Client) Report(ctx context.Context, adAccountID string, start time.Time) (*models.Table, error) {
	names, err := c.Campaigns(ctx)
	if err != nil {
		return nil, err
	}
	analytics, err := c.AdAnalytics(ctx, adAccountID, start)
	if err != nil {
		return nil, err
	}

	for _, row := range analytics.Rows {
		if name, ok := names[fmt.Sprint(row["id"])]; ok {
			row["campaign"] = name
		}
	}
	out := analytics.Select("date", "campaign", "impressions", "clicks", "cost")
	out.Rename(map[string]string{
		"date":        ColumnDate,
		"campaign":    ColumnCampaignName,
		"impressions": ColumnImpressions,
		"clicks":      ColumnClicks,
		"cost":        ColumnTotalSpent,
	})

	logger.WithContext(ctx).Info("fetched linkedin report",
		zap.String("ad_account_id", adAccountID),
		zap.Int("campaigns", len(names)),
		zap.Int("rows", out.Len()))
	return out, nil
}
