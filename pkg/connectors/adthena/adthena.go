// Package adthena pulls search share data from the Adthena API.
package adthena

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

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
	connectorName = "adthena"

	defaultBaseURL = "https://api.adthena.com"
	apiKeyHeader   = "Adthena-api-key"
)

// TrendRequest selects a share-of-clicks trend.
type TrendRequest struct {
	DomainID string
	// PeriodStart and PeriodEnd are YYYY-MM-DD.
	PeriodStart      string
	PeriodEnd        string
	Competitors      []string
	SearchTermGroups []string
	WholeMarket      bool
	// TrafficType defaults to "paid", Device to "mobile".
	TrafficType string
	Device      string
}

// Client calls the Adthena API with an API key.
type Client struct {
	http    *clients.HTTPClient
	baseURL string
	apiKey  string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// New creates a client for apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		http:    clients.NewHTTPClient(nil),
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type competitorTrend struct {
	Competitor string                   `json:"Competitor"`
	Data       []map[string]interface{} `json:"Data"`
}

// ShareOfClicksTrend returns one row per competitor and date. Value is
// converted to a percentage and Week holds the Sunday opening the week of
// Date.
func (c *Client) ShareOfClicksTrend(ctx context.Context, req TrendRequest) (table *models.Table, err error) {
	ctx, done := observability.Start(ctx, connectorName, "share_of_clicks_trend")
	defer func() { done(err) }()

	if req.DomainID == "" || req.PeriodStart == "" || req.PeriodEnd == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "domain id and period are required")
	}
	if req.TrafficType == "" {
		req.TrafficType = "paid"
	}
	if req.Device == "" {
		req.Device = "mobile"
	}

	q := url.Values{}
	q.Set("periodstart", req.PeriodStart)
	q.Set("periodend", req.PeriodEnd)
	q.Set("traffictype", req.TrafficType)
	q.Set("device", req.Device)
	for _, comp := range req.Competitors {
		q.Add("competitor", comp)
	}
	for _, kg := range req.SearchTermGroups {
		q.Add("kg", kg)
	}
	if req.WholeMarket {
		q.Set("wholemarket", "true")
	}

	header := http.Header{}
	header.Set(apiKeyHeader, c.apiKey)

	var trends []competitorTrend
	endpoint := fmt.Sprintf("%s/wizard/%s/share-of-clicks-trend/all?%s", c.baseURL, url.PathEscape(req.DomainID), q.Encode())
	if err := c.http.GetJSON(ctx, endpoint, header, &trends); err != nil {
		return nil, err
	}

	table = models.NewTable()
	for _, trend := range trends {
		for _, point := range trend.Data {
			row := models.Row(point)
			row["Competitor"] = trend.Competitor
			if v, ok := point["Value"].(float64); ok {
				row["Value"] = v * 100
			}
			if s, ok := point["Date"].(string); ok && len(s) >= len(dates.Layout) {
				day, err := dates.Parse(s[:len(dates.Layout)])
				if err != nil {
					return nil, errors.Wrapf(err, errors.ErrorTypeData, "invalid Date %q", s)
				}
				row["Week"] = dates.WeekStart(day)
			}
			table.Append(row)
		}
	}

	metrics.RecordRows(connectorName, table.Len())
	logger.WithContext(ctx).Info("fetched share of clicks trend",
		zap.String("domain_id", req.DomainID),
		zap.Int("competitors", len(trends)),
		zap.Int("rows", table.Len()))
	return table, nil
}
