// Package clients provides the HTTP plumbing shared by the REST connectors
package clients

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/json"
	"github.com/route1io/connectors/pkg/logger"
)

// DefaultUserAgent is sent when HTTPConfig.UserAgent is empty
const DefaultUserAgent = "route1-connectors/1.0"

// HTTPClient wraps *http.Client with rate limiting, JSON helpers and typed
// errors for non-2xx responses.
type HTTPClient struct {
	config      *HTTPConfig
	logger      *zap.Logger
	httpClient  *http.Client
	rateLimiter RateLimiter
}

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// RequestTimeout bounds a whole request. Zero means no timeout beyond ctx.
	RequestTimeout time.Duration
	UserAgent      string

	// RateLimit is requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int

	// EnableHTTP2 negotiates HTTP/2 over TLS on the transport built by
	// NewHTTPClient. Ignored when Client is set.
	EnableHTTP2     bool
	IdleConnTimeout time.Duration

	// Client is used instead of a fresh *http.Client when set, e.g. an
	// oauth2 client or an httptest server client.
	Client *http.Client
}

// DefaultHTTPConfig returns default configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		RequestTimeout:  60 * time.Second,
		UserAgent:       DefaultUserAgent,
		EnableHTTP2:     true,
		IdleConnTimeout: 90 * time.Second,
	}
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(config *HTTPConfig) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	c := &HTTPClient{
		config:     config,
		logger:     logger.With(zap.String("component", "http_client")),
		httpClient: config.Client,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: c.newTransport(),
			Timeout:   config.RequestTimeout,
		}
	}
	if config.RateLimit > 0 {
		c.rateLimiter = NewRateLimiter(config.RateLimit, config.RateBurst)
	}
	return c
}

func (c *HTTPClient) newTransport() *http.Transport {
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		IdleConnTimeout:       c.config.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if c.config.EnableHTTP2 {
		if err := http2.ConfigureTransport(t); err != nil {
			c.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}
	return t
}

// HTTP returns the underlying *http.Client
func (c *HTTPClient) HTTP() *http.Client {
	return c.httpClient
}

// Do sends req after waiting on the rate limiter. The caller owns the
// response body. Transport failures are wrapped as connection errors; the
// status code is not inspected.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "rate limiter wait cancelled")
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "request cancelled")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
	}

	c.logger.Debug("http request",
		zap.String("method", req.Method),
		zap.String("host", req.URL.Host),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// DoJSON sends a request whose body, when non-nil, is encoded as JSON and
// decodes a 2xx response into out (skipped when out is nil).
func (c *HTTPClient) DoJSON(ctx context.Context, method, rawURL string, header http.Header, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.EncodeToBuffer(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode request body")
		}
		defer json.PutBuffer(buf)
		reader = bytes.NewReader(buf.Bytes())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request")
	}
	copyHeader(req.Header, header)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, rawURL string, header http.Header, out interface{}) error {
	return c.DoJSON(ctx, http.MethodGet, rawURL, header, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out.
func (c *HTTPClient) PostJSON(ctx context.Context, rawURL string, header http.Header, body, out interface{}) error {
	return c.DoJSON(ctx, http.MethodPost, rawURL, header, body, out)
}

// PostForm issues a POST with a form-encoded body and decodes the JSON
// response into out.
func (c *HTTPClient) PostForm(ctx context.Context, rawURL string, header http.Header, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request")
	}
	copyHeader(req.Header, header)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return c.send(req, out)
}

func (c *HTTPClient) send(req *http.Request, out interface{}) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := CheckResponse(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.Decode(resp.Body, out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode response").
			WithDetail("url", req.URL.Redacted())
	}
	return nil
}

// CheckResponse returns a typed error for a non-2xx response, reading (but
// not closing) the body for the message.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	e := errors.FromHTTPStatus(resp.StatusCode, body)
	if resp.Request != nil && resp.Request.URL != nil {
		e = e.WithDetail("url", resp.Request.URL.Redacted())
	}
	return e
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
