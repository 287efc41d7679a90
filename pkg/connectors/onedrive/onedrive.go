package onedrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/route1io/connectors/pkg/clients"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/json"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/observability"
)

const (
	connectorName = "onedrive"

	defaultGraphURL = "https://graph.microsoft.com/v1.0"

	// Graph accepts simple PUT uploads up to 4 MiB.
	defaultSimpleUploadLimit = 4 << 20
	// Upload session chunks must be multiples of 320 KiB.
	defaultChunkSize = 32 * 320 << 10
)

// DriveItem is the subset of the Graph driveItem resource callers use.
type DriveItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	WebURL string `json:"webUrl"`
}

// Client talks to the drives endpoints of Microsoft Graph.
type Client struct {
	api         *clients.HTTPClient
	raw         *clients.HTTPClient
	baseURL     string
	simpleLimit int64
	chunkSize   int64
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another Graph root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// New creates a client authorised by ts.
func New(ctx context.Context, ts oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		api:         clients.NewHTTPClient(&clients.HTTPConfig{Client: oauth2.NewClient(ctx, ts)}),
		raw:         clients.NewHTTPClient(nil),
		baseURL:     defaultGraphURL,
		simpleLimit: defaultSimpleUploadLimit,
		chunkSize:   defaultChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromAccessToken creates a client from a bare access token.
func NewFromAccessToken(ctx context.Context, accessToken string, opts ...Option) *Client {
	return New(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}), opts...)
}

// UploadFile uploads localPath to remotePath (e.g. "/reports/daily.csv")
// on the drive, replacing any existing file. Files above 4 MiB go through
// an upload session.
func (c *Client) UploadFile(ctx context.Context, driveID, remotePath, localPath string) (item *DriveItem, err error) {
	ctx, done := observability.Start(ctx, connectorName, "upload_file")
	defer func() { done(err) }()

	if driveID == "" || remotePath == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "drive id and remote path are required")
	}

	f, err := os.Open(localPath) //nolint:gosec // caller-controlled path
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFile, "failed to open %s", localPath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFile, "failed to stat %s", localPath)
	}

	if info.Size() <= c.simpleLimit {
		item, err = c.simpleUpload(ctx, driveID, remotePath, f, info.Size())
	} else {
		item, err = c.sessionUpload(ctx, driveID, remotePath, f, info.Size())
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordBytes(connectorName, metrics.DirectionUpload, info.Size())
	logger.WithContext(ctx).Info("uploaded file to drive",
		zap.String("drive_id", driveID),
		zap.String("remote_path", remotePath),
		zap.Int64("bytes", info.Size()))
	return item, nil
}

func (c *Client) simpleUpload(ctx context.Context, driveID, remotePath string, body io.Reader, size int64) (*DriveItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.itemURL(driveID, remotePath, "content"), body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to build upload request")
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	var item DriveItem
	if err := c.do(c.api, req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

type uploadSession struct {
	UploadURL string `json:"uploadUrl"`
}

func (c *Client) sessionUpload(ctx context.Context, driveID, remotePath string, f io.ReaderAt, size int64) (*DriveItem, error) {
	body := map[string]interface{}{
		"item": map[string]string{"@microsoft.graph.conflictBehavior": "replace"},
	}
	var session uploadSession
	if err := c.api.PostJSON(ctx, c.itemURL(driveID, remotePath, "createUploadSession"), nil, body, &session); err != nil {
		return nil, errors.WrapVendor(err, "failed to create upload session")
	}
	if session.UploadURL == "" {
		return nil, errors.New(errors.ErrorTypeData, "upload session has no uploadUrl")
	}

	for offset := int64(0); offset < size; offset += c.chunkSize {
		end := offset + c.chunkSize
		if end > size {
			end = size
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, io.NewSectionReader(f, offset, end-offset))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to build chunk request")
		}
		req.ContentLength = end - offset
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end-1, size))

		// The upload URL is pre-authenticated and rejects Authorization headers.
		if end < size {
			if err := c.do(c.raw, req, nil); err != nil {
				return nil, err
			}
			continue
		}
		var item DriveItem
		if err := c.do(c.raw, req, &item); err != nil {
			return nil, err
		}
		return &item, nil
	}
	return nil, errors.New(errors.ErrorTypeData, "upload session finished without a drive item")
}

// DownloadFile writes the file at remotePath on the drive to localPath.
func (c *Client) DownloadFile(ctx context.Context, driveID, remotePath, localPath string) (err error) {
	ctx, done := observability.Start(ctx, connectorName, "download_file")
	defer func() { done(err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.itemURL(driveID, remotePath, "content"), nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "failed to build download request")
	}
	resp, err := c.api.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := clients.CheckResponse(resp); err != nil {
		return err
	}

	if dir := filepath.Dir(localPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", dir)
		}
	}
	out, err := os.Create(localPath) //nolint:gosec // caller-controlled path
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", localPath)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to write %s", localPath)
	}
	metrics.RecordBytes(connectorName, metrics.DirectionDownload, n)
	return nil
}

func (c *Client) do(hc *clients.HTTPClient, req *http.Request, out interface{}) error {
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := clients.CheckResponse(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.Decode(resp.Body, out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode graph response")
	}
	return nil
}

// itemURL addresses a drive item by path: /drives/{id}/root:/a/b.csv:/{action}
func (c *Client) itemURL(driveID, remotePath, action string) string {
	segments := strings.Split(strings.Trim(remotePath, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/drives/%s/root:/%s:/%s", c.baseURL, url.PathEscape(driveID), strings.Join(segments, "/"), action)
}
