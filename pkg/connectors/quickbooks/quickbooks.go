// Package quickbooks pulls timesheets from QuickBooks Time (formerly
// TSheets).
package quickbooks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
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
	connectorName = "quickbooks"

	defaultBaseURL = "https://rest.tsheets.com/api/v1"
)

// Client calls the QuickBooks Time REST API.
type Client struct {
	http        *clients.HTTPClient
	baseURL     string
	accessToken string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// New creates a client for accessToken.
func New(accessToken string, opts ...Option) *Client {
	c := &Client{
		http:        clients.NewHTTPClient(nil),
		baseURL:     defaultBaseURL,
		accessToken: accessToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.accessToken)
	return h
}

// Token is the grant endpoint response.
type Token struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	CompanyID    string `json:"company_id"`
}

// RefreshAccessToken exchanges refreshToken for a new token. The current
// access token authorises the request.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken, clientID, clientSecret string) (tok *Token, err error) {
	ctx, done := observability.Start(ctx, connectorName, "refresh_access_token")
	defer func() { done(err) }()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("refresh_token", refreshToken)

	tok = &Token{}
	if err := c.http.PostForm(ctx, c.baseURL+"/grant", c.authHeader(), form, tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, errors.New(errors.ErrorTypeAuthentication, "grant response has no access token")
	}
	return tok, nil
}

type timesheetsPage struct {
	Results struct {
		Timesheets map[string]map[string]interface{} `json:"timesheets"`
	} `json:"results"`
	More             bool `json:"more"`
	SupplementalData struct {
		Users    map[string]map[string]interface{} `json:"users"`
		Jobcodes map[string]map[string]interface{} `json:"jobcodes"`
	} `json:"supplemental_data"`
}

// Timesheets returns the timesheets between start and end, requested one
// calendar month at a time. Zero dates default to the month ending today.
// Rows carry the user's first_name and last_name and the jobcode path
// split into jobcode_1..n, root first; duration is renamed
// duration_seconds.
func (c *Client) Timesheets(ctx context.Context, start, end time.Time) (table *models.Table, err error) {
	ctx, done := observability.Start(ctx, connectorName, "timesheets")
	defer func() { done(err) }()

	if end.IsZero() {
		end = dates.Today()
	}
	if start.IsZero() {
		start = end.AddDate(0, -1, 0)
	}

	log := logger.WithContext(ctx)
	table = models.NewTable("timesheet_id")
	users := map[string]map[string]interface{}{}
	jobcodes := map[string]map[string]interface{}{}

	for _, period := range dates.MonthPeriods(start, end) {
		for page := 1; ; page++ {
			q := url.Values{}
			q.Set("start_date", dates.Day(period.Start))
			q.Set("end_date", dates.Day(period.End))
			q.Set("page", strconv.Itoa(page))

			var resp timesheetsPage
			if err := c.http.GetJSON(ctx, c.baseURL+"/timesheets?"+q.Encode(), c.authHeader(), &resp); err != nil {
				return nil, err
			}
			log.Debug("fetched timesheets page",
				zap.String("start", dates.Day(period.Start)),
				zap.String("end", dates.Day(period.End)),
				zap.Int("page", page),
				zap.Int("timesheets", len(resp.Results.Timesheets)))

			for _, id := range sortedIDs(resp.Results.Timesheets) {
				row := models.Row{"timesheet_id": id}
				for k, v := range resp.Results.Timesheets[id] {
					row[k] = v
				}
				table.Append(row)
			}
			for id, u := range resp.SupplementalData.Users {
				users[id] = u
			}
			for id, j := range resp.SupplementalData.Jobcodes {
				jobcodes[id] = j
			}
			if !resp.More {
				break
			}
		}
	}

	paths := JobcodePaths(jobcodes)
	depth := 0
	for _, p := range paths {
		if len(p) > depth {
			depth = len(p)
		}
	}
	extra := []string{"first_name", "last_name"}
	for i := 1; i <= depth; i++ {
		extra = append(extra, fmt.Sprintf("jobcode_%d", i))
	}
	table.AddColumns(extra...)

	for _, row := range table.Rows {
		userID := idString(row["user_id"])
		row["user_id"] = userID
		if u, ok := users[userID]; ok {
			row["first_name"] = u["first_name"]
			row["last_name"] = u["last_name"]
		}

		jobcodeID := idString(row["jobcode_id"])
		row["jobcode_id"] = jobcodeID
		if path, ok := paths[jobcodeID]; ok {
			for i := 0; i < depth; i++ {
				col := fmt.Sprintf("jobcode_%d", i+1)
				if i < len(path) {
					row[col] = path[i]
				} else {
					row[col] = ""
				}
			}
		}
	}
	table.Rename(map[string]string{"duration": "duration_seconds"})

	metrics.RecordRows(connectorName, table.Len())
	log.Info("fetched timesheets",
		zap.String("start", dates.Day(start)),
		zap.String("end", dates.Day(end)),
		zap.Int("rows", table.Len()))
	return table, nil
}

// JobcodePaths returns, for every jobcode, the names from its root down to
// itself, following parent_id. A parent_id of 0 or one that is not in
// jobcodes ends the path.
func JobcodePaths(jobcodes map[string]map[string]interface{}) map[string][]string {
	paths := make(map[string][]string, len(jobcodes))
	for id := range jobcodes {
		var names []string
		seen := map[string]bool{}
		for cur := id; cur != "" && !seen[cur]; {
			seen[cur] = true
			j, ok := jobcodes[cur]
			if !ok {
				break
			}
			name, _ := j["name"].(string)
			if name == "" {
				name = cur
			}
			names = append(names, name)
			cur = parentID(j["parent_id"])
		}
		for i, k := 0, len(names)-1; i < k; i, k = i+1, k-1 {
			names[i], names[k] = names[k], names[i]
		}
		paths[id] = names
	}
	return paths
}

func parentID(v interface{}) string {
	switch s := idString(v); s {
	case "", "0", "None", "null":
		return ""
	default:
		return s
	}
}

// idString renders an ID that the API may send as a number or a string.
func idString(v interface{}) string {
	if v == nil {
		return ""
	}
	return models.FormatValue(v)
}

// sortedIDs returns the keys of m in numeric order when they are numbers.
func sortedIDs(m map[string]map[string]interface{}) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aerr := strconv.ParseInt(ids[i], 10, 64)
		b, berr := strconv.ParseInt(ids[j], 10, 64)
		if aerr == nil && berr == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}
