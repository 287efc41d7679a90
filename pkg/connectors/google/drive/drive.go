// Package drive uploads files to and downloads files from Google Drive,
// shared drives included.
package drive

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/observability"
)

const connectorName = "gdrive"

// Scope grants access to files created or opened by the app.
const Scope = gdrive.DriveFileScope

// Client wraps the Drive v3 files API.
type Client struct {
	svc *gdrive.Service
}

// Connect creates a client. A nil ts leaves authentication to opts.
func Connect(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create drive service")
	}
	return &Client{svc: svc}, nil
}

// UploadFile creates a file on Drive from the local file at path and
// returns the created resource. name defaults to the base name of path;
// folderID, when set, becomes the parent folder.
func (c *Client) UploadFile(ctx context.Context, path, name, folderID string) (file *gdrive.File, err error) {
	ctx, done := observability.Start(ctx, connectorName, "upload_file")
	defer func() { done(err) }()

	f, err := os.Open(path) //nolint:gosec // caller-controlled path
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFile, "failed to open %s", path)
	}
	defer f.Close()

	if name == "" {
		name = filepath.Base(path)
	}
	meta := &gdrive.File{Name: name}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}

	file, err = c.svc.Files.Create(meta).
		Media(f).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, errors.FromGoogleAPI(err)
	}

	if info, statErr := f.Stat(); statErr == nil {
		metrics.RecordBytes(connectorName, metrics.DirectionUpload, info.Size())
	}
	logger.WithContext(ctx).Info("uploaded file to drive",
		zap.String("file_id", file.Id),
		zap.String("name", name),
		zap.String("folder_id", folderID))
	return file, nil
}

// DownloadFile writes the content of the Drive file fileID to path.
func (c *Client) DownloadFile(ctx context.Context, fileID, path string) (err error) {
	ctx, done := observability.Start(ctx, connectorName, "download_file")
	defer func() { done(err) }()

	resp, err := c.svc.Files.Get(fileID).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return errors.FromGoogleAPI(err)
	}
	defer resp.Body.Close()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", dir)
		}
	}
	out, err := os.Create(path) //nolint:gosec // caller-controlled path
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", path)
	}
	n, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		return errors.Wrapf(err, errors.ErrorTypeConnection, "failed to download %s", fileID)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to close %s", path)
	}

	metrics.RecordBytes(connectorName, metrics.DirectionDownload, n)
	logger.WithContext(ctx).Info("downloaded file from drive",
		zap.String("file_id", fileID),
		zap.String("path", path),
		zap.Int64("bytes", n))
	return nil
}
