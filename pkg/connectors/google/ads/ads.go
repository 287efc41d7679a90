// Package ads queries the Google Ads API over REST with GAQL.
package ads

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gopkg.in/yaml.v3"

	"github.com/route1io/connectors/pkg/clients"
	"github.com/route1io/connectors/pkg/dates"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/models"
	"github.com/route1io/connectors/pkg/observability"
)

const (
	connectorName = "google_ads"

	// APIVersion is the Google Ads API version the client targets.
	APIVersion     = "v18"
	defaultBaseURL = "https://googleads.googleapis.com/" + APIVersion

	// Scope grants access to the Google Ads API.
	Scope = "https://www.googleapis.com/auth/adwords"
)

// DefaultCampaignQuery selects the fields CampaignReport maps.
const DefaultCampaignQuery = `SELECT campaign.name, ad_group.name, segments.date, metrics.clicks, metrics.impressions, metrics.cost_micros
FROM ad_group
WHERE segments.date DURING LAST_30_DAYS`

// Config holds the credentials of a google-ads.yaml file.
type Config struct {
	DeveloperToken  string `yaml:"developer_token"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	RefreshToken    string `yaml:"refresh_token"`
	LoginCustomerID string `yaml:"login_customer_id"`
}

// LoadConfig reads a google-ads.yaml file. login_customer_id may be
// written with or without dashes, and as a number.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // caller-controlled path
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFile, "failed to read %s", path)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to parse %s", path)
	}
	str := func(key string) string {
		switch v := raw[key].(type) {
		case nil:
			return ""
		case string:
			return v
		default:
			return fmt.Sprint(v)
		}
	}
	cfg := &Config{
		DeveloperToken:  str("developer_token"),
		ClientID:        str("client_id"),
		ClientSecret:    str("client_secret"),
		RefreshToken:    str("refresh_token"),
		LoginCustomerID: normalizeCustomerID(str("login_customer_id")),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the OAuth client and developer token are set.
func (c *Config) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"developer_token", c.DeveloperToken},
		{"client_id", c.ClientID},
		{"client_secret", c.ClientSecret},
		{"refresh_token", c.RefreshToken},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return errors.Newf(errors.ErrorTypeConfig, "google ads config is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// TokenSource refreshes access tokens from the configured refresh token.
func (c *Config) TokenSource(ctx context.Context) oauth2.TokenSource {
	oc := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{Scope},
	}
	return oc.TokenSource(ctx, &oauth2.Token{RefreshToken: c.RefreshToken})
}

func normalizeCustomerID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

// Client runs GAQL queries.
type Client struct {
	cfg     *Config
	http    *clients.HTTPClient
	baseURL string
	ts      oauth2.TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTokenSource replaces the refresh-token source built from the config.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.ts = ts }
}

// Connect creates a client from cfg.
func Connect(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "google ads config is required")
	}
	c := &Client{cfg: cfg, baseURL: defaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	if c.ts == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		c.ts = cfg.TokenSource(ctx)
	}
	c.http = clients.NewHTTPClient(&clients.HTTPConfig{Client: oauth2.NewClient(ctx, c.ts)})
	return c, nil
}

type streamBatch struct {
	Results []map[string]interface{} `json:"results"`
}

// SearchStream runs query for customerID and returns the result rows,
// nested fields flattened with "." (e.g. metrics.costMicros).
func (c *Client) SearchStream(ctx context.Context, customerID, query string) (table *models.Table, err error) {
	ctx, done := observability.Start(ctx, connectorName, "search_stream")
	defer func() { done(err) }()

	customerID = normalizeCustomerID(customerID)
	if customerID == "" || query == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "customer id and query are required")
	}

	header := http.Header{}
	header.Set("developer-token", c.cfg.DeveloperToken)
	if c.cfg.LoginCustomerID != "" {
		header.Set("login-customer-id", c.cfg.LoginCustomerID)
	}

	var batches []streamBatch
	endpoint := fmt.Sprintf("%s/customers/%s/googleAds:searchStream", c.baseURL, url.PathEscape(customerID))
	if err := c.http.PostJSON(ctx, endpoint, header, map[string]string{"query": query}, &batches); err != nil {
		return nil, err
	}

	table = models.NewTable()
	for _, b := range batches {
		for _, r := range b.Results {
			table.Append(models.Flatten(r, "."))
		}
	}

	metrics.RecordRows(connectorName, table.Len())
	logger.WithContext(ctx).Info("fetched google ads rows",
		zap.String("customer_id", customerID),
		zap.Int("batches", len(batches)),
		zap.Int("rows", table.Len()))
	return table, nil
}

// Campaign report columns.
const (
	ColumnCampaign    = "Campaign"
	ColumnAdGroup     = "Ad group"
	ColumnDay         = "Day"
	ColumnClicks      = "Clicks"
	ColumnImpressions = "Impr."
	ColumnCost        = "Cost"
)

// CampaignReport runs query (DefaultCampaignQuery when empty) and maps
// each row to the campaign report columns. Cost is converted from micros.
func (c *Client) CampaignReport(ctx context.Context, customerID, query string) (*models.Table, error) {
	if query == "" {
		query = DefaultCampaignQuery
	}
	raw, err := c.SearchStream(ctx, customerID, query)
	if err != nil {
		return nil, err
	}

	out := models.NewTable(ColumnCampaign, ColumnAdGroup, ColumnDay, ColumnClicks, ColumnImpressions, ColumnCost)
	for _, r := range raw.Rows {
		row := models.Row{
			ColumnCampaign:    r["campaign.name"],
			ColumnAdGroup:     r["adGroup.name"],
			ColumnClicks:      toInt(r["metrics.clicks"]),
			ColumnImpressions: toInt(r["metrics.impressions"]),
			ColumnCost:        float64(toInt(r["metrics.costMicros"])) / 1e6,
		}
		if s, ok := r["segments.date"].(string); ok {
			day, err := dates.Parse(s)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeData, "invalid segments.date %q", s)
			}
			row[ColumnDay] = day
		}
		out.Append(row)
	}
	return out, nil
}

// toInt reads an int64 field, which the REST API encodes as a string.
func toInt(v interface{}) int64 {
	switch x := v.(type) {
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	case float64:
		return int64(x)
	case int64:
		return x
	case int:
		return int64(x)
	}
	return 0
}
