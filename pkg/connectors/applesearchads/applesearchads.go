// Package applesearchads pulls campaign reports from the Apple Search Ads
// Campaign Management API.
package applesearchads

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
	connectorName = "apple_search_ads"

	defaultBaseURL = "https://api.searchads.apple.com/api/v4"

	defaultRequestsPerSecond = 5.0
)

// ReportColumns is the column order of CampaignReport.
var ReportColumns = []string{
	"date", "campaign_id", "campaign_name", "impressions", "spend", "taps",
	"installs", "new_downloads", "redownloads", "lat_on_installs",
	"lat_off_installs", "ttr", "cpa", "cpt", "cpm", "conversion_rate",
}

// Client reads reports for one organization.
type Client struct {
	http        *clients.HTTPClient
	baseURL     string
	accessToken string
	orgID       string
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

// New creates a client for orgID.
func New(accessToken, orgID string, opts ...Option) *Client {
	cfg := clients.DefaultHTTPConfig()
	cfg.RateLimit = defaultRequestsPerSecond
	c := &Client{baseURL: defaultBaseURL, accessToken: accessToken, orgID: orgID}
	for _, opt := range opts {
		opt(cfg, c)
	}
	c.http = clients.NewHTTPClient(cfg)
	return c
}

func reportBody(start, end time.Time) map[string]interface{} {
	return map[string]interface{}{
		"startTime": dates.Day(start),
		"endTime":   dates.Day(end),
		"selector": map[string]interface{}{
			"orderBy": []interface{}{
				map[string]string{"field": "countryOrRegion", "sortOrder": "ASCENDING"},
			},
		},
		"groupBy":           []string{"countryOrRegion"},
		"timeZone":          "UTC",
		"returnRowTotals":   false,
		"granularity":       "DAILY",
		"returnGrandTotals": false,
	}
}

type reportResponse struct {
	Data struct {
		ReportingDataResponse struct {
			Row []struct {
				Metadata struct {
					CampaignID   interface{} `json:"campaignId"`
					CampaignName string      `json:"campaignName"`
				} `json:"metadata"`
				Granularity []map[string]interface{} `json:"granularity"`
			} `json:"row"`
		} `json:"reportingDataResponse"`
	} `json:"data"`
}

// CampaignReport returns daily campaign rows between start and end
// (inclusive), requested in 30-day windows and sorted by campaign name and
// date.
func (c *Client) CampaignReport(ctx context.Context, start, end time.Time) (table *models.Table, err error) {
	ctx, done := observability.Start(ctx, connectorName, "campaign_report")
	defer func() { done(err) }()

	if c.orgID == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "org id is required")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.accessToken)
	header.Set("X-AP-Context", "orgId="+c.orgID)

	all := models.NewTable()
	windows := dates.Ranges(start, end, dates.DefaultIncrement)
	for _, w := range windows {
		var resp reportResponse
		if err := c.http.PostJSON(ctx, c.baseURL+"/reports/campaigns", header, reportBody(w.Start, w.End), &resp); err != nil {
			return nil, err
		}
		for _, campaign := range resp.Data.ReportingDataResponse.Row {
			for _, g := range campaign.Granularity {
				row := granularityRow(g)
				row["campaign_id"] = campaign.Metadata.CampaignID
				row["campaign_name"] = campaign.Metadata.CampaignName
				all.Append(row)
			}
		}
	}

	all.SortBy("campaign_name", "date")
	table = all.Select(ReportColumns...)

	metrics.RecordRows(connectorName, table.Len())
	logger.WithContext(ctx).Info("fetched apple search ads report",
		zap.String("org_id", c.orgID),
		zap.Int("windows", len(windows)),
		zap.Int("rows", table.Len()))
	return table, nil
}

func granularityRow(g map[string]interface{}) models.Row {
	amount := func(key string) interface{} {
		if m, ok := g[key].(map[string]interface{}); ok {
			return m["amount"]
		}
		return nil
	}
	return models.Row{
		"impressions":      g["impressions"],
		"taps":             g["taps"],
		"installs":         g["installs"],
		"new_downloads":    g["newDownloads"],
		"redownloads":      g["redownloads"],
		"lat_on_installs":  g["latOnInstalls"],
		"lat_off_installs": g["latOffInstalls"],
		"ttr":              g["ttr"],
		"cpa":              amount("avgCPA"),
		"cpt":              amount("avgCPT"),
		"cpm":              amount("avgCPM"),
		"spend":            amount("localSpend"),
		"conversion_rate":  g["conversionRate"],
		"date":             g["date"],
	}
}
