// Package slack posts messages to a Slack incoming webhook.
package slack

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/route1io/connectors/pkg/clients"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/observability"
)

const connectorName = "slack"

// Client posts to one webhook URL.
type Client struct {
	http       *clients.HTTPClient
	webhookURL string
}

// Option configures a Client.
type Option func(*clients.HTTPConfig)

// WithHTTPClient sends requests through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *clients.HTTPConfig) { cfg.Client = hc }
}

// New creates a client for webhookURL.
func New(webhookURL string, opts ...Option) (*Client, error) {
	if webhookURL == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "slack webhook URL is empty")
	}
	cfg := clients.DefaultHTTPConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{http: clients.NewHTTPClient(cfg), webhookURL: webhookURL}, nil
}

// Message sends a plain text message.
func (c *Client) Message(ctx context.Context, text string) error {
	return c.post(ctx, "message", map[string]string{"text": text})
}

// BlockMessage sends a formatted message. payload is sent as is, so it
// usually carries a "blocks" array and a fallback "text".
func (c *Client) BlockMessage(ctx context.Context, payload map[string]interface{}) error {
	if len(payload) == 0 {
		return errors.New(errors.ErrorTypeValidation, "block message is empty")
	}
	return c.post(ctx, "block_message", payload)
}

func (c *Client) post(ctx context.Context, op string, body interface{}) (err error) {
	ctx, done := observability.Start(ctx, connectorName, op)
	defer func() { done(err) }()

	// the webhook answers with a plain "ok", so nothing is decoded
	if err := c.http.PostJSON(ctx, c.webhookURL, nil, body, nil); err != nil {
		return err
	}
	logger.WithContext(ctx).Debug("posted slack message", zap.String("operation", op))
	return nil
}
