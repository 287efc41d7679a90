// Package dcm runs Campaign Manager 360 reports and downloads the
// resulting files.
package dcm

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/dfareporting/v4"
	"google.golang.org/api/option"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/observability"
)

const connectorName = "dcm"

// Scope grants access to Campaign Manager 360 reporting.
const Scope = dfareporting.DfareportingScope

// File statuses reported while a report runs.
const (
	StatusProcessing      = "PROCESSING"
	StatusReportAvailable = "REPORT_AVAILABLE"
	StatusFailed          = "FAILED"
	StatusCancelled       = "CANCELLED"
)

const (
	defaultInitialWait = 2 * time.Second
	defaultMaxWait     = 5 * time.Minute
)

// Client runs reports for a Campaign Manager 360 user profile.
type Client struct {
	svc         *dfareporting.Service
	initialWait time.Duration
	maxWait     time.Duration
}

// Connect creates a client. A nil ts leaves authentication to opts.
func Connect(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := dfareporting.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create dfareporting service")
	}
	return &Client{svc: svc, initialWait: defaultInitialWait, maxWait: defaultMaxWait}, nil
}

// RunReport starts a new run of an existing report and returns the file
// being generated.
func (c *Client) RunReport(ctx context.Context, profileID, reportID int64) (file *dfareporting.File, err error) {
	ctx, done := observability.Start(ctx, connectorName, "run_report")
	defer func() { done(err) }()

	file, err = c.svc.Reports.Run(profileID, reportID).Context(ctx).Do()
	if err != nil {
		return nil, errors.FromGoogleAPI(err)
	}
	logger.WithContext(ctx).Info("report run requested",
		zap.Int64("report_id", reportID),
		zap.Int64("file_id", file.Id),
		zap.String("status", file.Status))
	return file, nil
}

// WaitForReport polls the report file until it is available, waiting two
// seconds after the first check and doubling the wait after each one.
func (c *Client) WaitForReport(ctx context.Context, reportID, fileID int64) (file *dfareporting.File, err error) {
	ctx, done := observability.Start(ctx, connectorName, "wait_for_report")
	defer func() { done(err) }()

	log := logger.WithContext(ctx)
	wait := c.initialWait
	for {
		file, err = c.svc.Files.Get(reportID, fileID).Context(ctx).Do()
		if err != nil {
			return nil, errors.FromGoogleAPI(err)
		}

		switch file.Status {
		case StatusReportAvailable:
			return file, nil
		case StatusFailed, StatusCancelled:
			return nil, errors.Newf(errors.ErrorTypeExternal, "report %d file %d finished with status %s", reportID, fileID, file.Status).
				WithDetail("status", file.Status)
		}

		log.Debug("report not ready", zap.String("status", file.Status), zap.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), errors.ErrorTypeTimeout, "gave up waiting for report %d file %d", reportID, fileID)
		case <-time.After(wait):
		}
		wait *= 2
		if wait > c.maxWait {
			wait = c.maxWait
		}
	}
}

// DownloadReport writes the content of a finished report file to path.
func (c *Client) DownloadReport(ctx context.Context, file *dfareporting.File, path string) (err error) {
	ctx, done := observability.Start(ctx, connectorName, "download_report")
	defer func() { done(err) }()

	if file == nil || file.Status != StatusReportAvailable {
		return errors.New(errors.ErrorTypeValidation, "report file is not available for download")
	}

	resp, err := c.svc.Files.Get(file.ReportId, file.Id).Context(ctx).Download()
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
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to download report")
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to close %s", path)
	}
	metrics.RecordBytes(connectorName, metrics.DirectionDownload, n)
	return nil
}

// GetReport runs the report, waits for it and downloads it to path.
func (c *Client) GetReport(ctx context.Context, profileID, reportID int64, path string) error {
	file, err := c.RunReport(ctx, profileID, reportID)
	if err != nil {
		return err
	}
	if file.Status != StatusReportAvailable {
		file, err = c.WaitForReport(ctx, reportID, file.Id)
		if err != nil {
			return err
		}
	}
	if err := c.DownloadReport(ctx, file, path); err != nil {
		return err
	}
	logger.WithContext(ctx).Info("downloaded report",
		zap.Int64("report_id", reportID),
		zap.String("path", path))
	return nil
}
