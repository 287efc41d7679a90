// Package facebook pulls ad insights from the Facebook Marketing API.
package facebook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/route1io/connectors/pkg/clients"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/models"
	"github.com/route1io/connectors/pkg/observability"
)

const (
	connectorName = "facebook"

	// APIVersion is the Graph API version the client targets.
	APIVersion     = "v19.0"
	defaultBaseURL = "https://graph.facebook.com/" + APIVersion

	// The Graph API throttles bursts of insights requests.
	defaultRequestsPerSecond = 2.0

	pageLimit = "500"
)

// DefaultFields are requested when Insights is called without fields.
var DefaultFields = []string{
	"campaign_name", "adset_name", "ad_name", "clicks",
	"impressions", "reach", "ctr", "actions", "spend",
}

// DefaultParams returns the parameters used when Insights is called
// without params: daily rows for the last 30 days.
func DefaultParams() map[string]interface{} {
	return map[string]interface{}{
		"date_preset":    "last_30d",
		"time_increment": 1,
	}
}

// Client reads ads and their insights for an access token.
type Client struct {
	http        *clients.HTTPClient
	baseURL     string
	accessToken string
}

// Option configures a Client.
type Option func(*clients.HTTPConfig, *Client)

// WithBaseURL points the client at another Graph API root.
func WithBaseURL(u string) Option {
	return func(_ *clients.HTTPConfig, c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRateLimit overrides the requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(cfg *clients.HTTPConfig, _ *Client) { cfg.RateLimit = perSecond }
}

// New creates a client for an access token with the ads_read permission.
func New(accessToken string, opts ...Option) *Client {
	cfg := clients.DefaultHTTPConfig()
	cfg.RateLimit = defaultRequestsPerSecond
	cfg.RateBurst = 1
	c := &Client{baseURL: defaultBaseURL, accessToken: accessToken}
	for _, opt := range opts {
		opt(cfg, c)
	}
	c.http = clients.NewHTTPClient(cfg)
	return c
}

type page struct {
	Data   []map[string]interface{} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// getAll follows paging.next from rawURL and returns every object.
func (c *Client) getAll(ctx context.Context, rawURL string) ([]map[string]interface{}, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.accessToken)

	var out []map[string]interface{}
	for rawURL != "" {
		var p page
		if err := c.http.GetJSON(ctx, rawURL, header, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Data...)
		rawURL = p.Paging.Next
	}
	return out, nil
}

// accountID returns id with the act_ prefix the Graph API expects.
func accountID(id string) string {
	if strings.HasPrefix(id, "act_") {
		return id
	}
	return "act_" + id
}

// Ads returns the IDs of the ads of an ad account.
func (c *Client) Ads(ctx context.Context, adAccountID string) (ids []string, err error) {
	ctx, done := observability.Start(ctx, connectorName, "ads")
	defer func() { done(err) }()

	q := url.Values{}
	q.Set("fields", "id")
	q.Set("limit", pageLimit)
	ads, err := c.getAll(ctx, fmt.Sprintf("%s/%s/ads?%s", c.baseURL, url.PathEscape(accountID(adAccountID)), q.Encode()))
	if err != nil {
		return nil, err
	}
	for _, ad := range ads {
		if id, ok := ad["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Insights returns the insights of every ad of the account, one row per
// insight object. The actions list is spread into one column per
// action_type; cells a row lacks are 0. Rows are sorted by date_start, and
// a result without a date_start column is an empty table.
func (c *Client) Insights(ctx context.Context, adAccountID string, fields []string, params map[string]interface{}) (table *models.Table, err error) {
	ctx, done := observability.Start(ctx, connectorName, "insights")
	defer func() { done(err) }()

	if len(fields) == 0 {
		fields = DefaultFields
	}
	if params == nil {
		params = DefaultParams()
	}
	q, err := clients.EncodeQuery(params, false)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid insights parameters")
	}
	q.Set("fields", strings.Join(fields, ","))

	ads, err := c.Ads(ctx, adAccountID)
	if err != nil {
		return nil, err
	}

	table = models.NewTable()
	for _, id := range ads {
		insights, err := c.getAll(ctx, fmt.Sprintf("%s/%s/insights?%s", c.baseURL, url.PathEscape(id), q.Encode()))
		if err != nil {
			return nil, errors.WrapVendor(err, "failed to fetch insights for ad "+id)
		}
		for _, in := range insights {
			table.Append(insightRow(in))
		}
	}

	table.FillMissing(0)
	if !table.Has("date_start") {
		table = models.NewTable()
	} else {
		table.SortBy("date_start")
	}

	metrics.RecordRows(connectorName, table.Len())
	logger.WithContext(ctx).Info("fetched facebook insights",
		zap.String("ad_account_id", adAccountID),
		zap.Int("ads", len(ads)),
		zap.Int("rows", table.Len()))
	return table, nil
}

// insightRow copies an insight object, replacing actions with one key per
// action_type.
func insightRow(in map[string]interface{}) models.Row {
	row := make(models.Row, len(in))
	for k, v := range in {
		if k != "actions" {
			row[k] = v
		}
	}
	actions, _ := in["actions"].([]interface{})
	for _, a := range actions {
		action, ok := a.(map[string]interface{})
		if !ok {
			continue
		}
		if typ, ok := action["action_type"].(string); ok {
			row[typ] = action["value"]
		}
	}
	return row
}

func breakdownParams(breakdowns ...string) map[string]interface{} {
	p := DefaultParams()
	p["breakdowns"] = breakdowns
	return p
}

// AgeGenderInsights returns the last 30 days of insights broken down by
// age and gender.
func (c *Client) AgeGenderInsights(ctx context.Context, adAccountID string) (*models.Table, error) {
	return c.Insights(ctx, adAccountID, DefaultFields, breakdownParams("age", "gender"))
}

// RegionInsights returns the last 30 days of insights broken down by
// region.
func (c *Client) RegionInsights(ctx context.Context, adAccountID string) (*models.Table, error) {
	return c.Insights(ctx, adAccountID, DefaultFields, breakdownParams("region"))
}
