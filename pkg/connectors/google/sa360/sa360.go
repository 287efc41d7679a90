// Package sa360 queries the Search Ads 360 Reporting API.
package sa360

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/route1io/connectors/pkg/clients"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/models"
	"github.com/route1io/connectors/pkg/observability"
)

const (
	connectorName = "sa360"

	defaultBaseURL = "https://searchads360.googleapis.com/v0"

	// Scope grants access to Search Ads 360 reporting.
	Scope = "https://www.googleapis.com/auth/doubleclicksearch"
)

// Client runs Search Ads 360 query language searches.
type Client struct {
	http    *clients.HTTPClient
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// New creates a client authorised by ts.
func New(ctx context.Context, ts oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		http:    clients.NewHTTPClient(&clients.HTTPConfig{Client: oauth2.NewClient(ctx, ts)}),
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromAccessToken creates a client from an already refreshed token.
func NewFromAccessToken(ctx context.Context, accessToken string, opts ...Option) *Client {
	return New(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}), opts...)
}

type searchRequest struct {
	Query     string  `json:"query"`
	PageToken *string `json:"pageToken"`
}

type searchResponse struct {
	Results       []map[string]interface{} `json:"results"`
	NextPageToken string                   `json:"nextPageToken"`
}

// Search runs query against accountID and returns every page of results,
// nested fields flattened with "_" (campaign.name becomes campaign_name).
// loginCustomerID is the manager account granting access, if any.
func (c *Client) Search(ctx context.Context, accountID, query, loginCustomerID string) (table *models.Table, err error) {
	ctx, done := observability.Start(ctx, connectorName, "search")
	defer func() { done(err) }()

	if accountID == "" || query == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "account id and query are required")
	}

	header := http.Header{}
	if loginCustomerID != "" {
		header.Set("login-customer-id", loginCustomerID)
	}
	endpoint := fmt.Sprintf("%s/customers/%s/searchAds360:search", c.baseURL, url.PathEscape(accountID))

	table = models.NewTable()
	req := searchRequest{Query: query}
	pages := 0
	for {
		var resp searchResponse
		if err := c.http.PostJSON(ctx, endpoint, header, req, &resp); err != nil {
			return nil, err
		}
		pages++
		for _, r := range resp.Results {
			table.Append(models.Flatten(r, "_"))
		}
		if resp.NextPageToken == "" {
			break
		}
		token := resp.NextPageToken
		req.PageToken = &token
	}

	metrics.RecordRows(connectorName, table.Len())
	logger.WithContext(ctx).Info("fetched search ads 360 report",
		zap.String("account_id", accountID),
		zap.Int("pages", pages),
		zap.Int("rows", table.Len()))
	return table, nil
}
