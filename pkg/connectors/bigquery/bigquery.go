// Package bigquery loads local CSV files into BigQuery tables.
package bigquery

import (
	"context"
	stderrors "errors"
	"io"
	"os"

	bq "cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/observability"
)

const connectorName = "bigquery"

// Scope grants access to BigQuery datasets and jobs.
const Scope = bq.Scope

// LoadOptions tune a CSV load job.
type LoadOptions struct {
	// Truncate replaces the table contents instead of appending.
	Truncate bool
	// Schema disables schema autodetection when set.
	Schema bq.Schema
	// SkipLeadingRows defaults to 1, the header row.
	SkipLeadingRows int64
	// MaxBadRecords is the number of rows BigQuery may reject before the job
	// fails.
	MaxBadRecords int64
}

// Client runs load jobs in one project.
type Client struct {
	bq *bq.Client
}

// Connect creates a client for projectID. A nil ts leaves authentication to
// opts, which falls back to application default credentials.
func Connect(ctx context.Context, projectID string, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	if projectID == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bigquery project id is required")
	}
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	client, err := bq.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create bigquery client")
	}
	return &Client{bq: client}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.bq.Close()
}

// LoadCSV loads the CSV file at path into dataset.table, creating the table
// if needed, and returns the number of rows written.
func (c *Client) LoadCSV(ctx context.Context, path, dataset, table string, opts LoadOptions) (rows int64, err error) {
	ctx, done := observability.Start(ctx, connectorName, "load_csv")
	defer func() { done(err) }()

	f, err := os.Open(path) //nolint:gosec // caller-controlled path
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeFile, "failed to open %s", path)
	}
	defer f.Close()

	loader := c.loader(f, dataset, table, opts)
	job, err := loader.Run(ctx)
	if err != nil {
		return 0, classify(err, "failed to start load job for "+dataset+"."+table)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, classify(err, "load job "+job.ID()+" did not complete")
	}
	if err := status.Err(); err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeData, "load job %s failed", job.ID()).
			WithDetail("errors", len(status.Errors))
	}

	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bq.LoadStatistics); ok {
			rows = stats.OutputRows
			metrics.RecordBytes(connectorName, metrics.DirectionUpload, stats.InputFileBytes)
		}
	}
	metrics.RecordRows(connectorName, int(rows))
	logger.WithContext(ctx).Info("loaded csv",
		zap.String("filename", path),
		zap.String("table", dataset+"."+table),
		zap.Int64("rows", rows),
		zap.String("job_id", job.ID()))
	return rows, nil
}

func (c *Client) loader(r io.Reader, dataset, table string, opts LoadOptions) *bq.Loader {
	src := bq.NewReaderSource(r)
	src.SourceFormat = bq.CSV
	src.SkipLeadingRows = opts.SkipLeadingRows
	if src.SkipLeadingRows == 0 {
		src.SkipLeadingRows = 1
	}
	src.MaxBadRecords = opts.MaxBadRecords
	src.AllowQuotedNewlines = true
	if len(opts.Schema) > 0 {
		src.Schema = opts.Schema
	} else {
		src.AutoDetect = true
	}

	loader := c.bq.Dataset(dataset).Table(table).LoaderFrom(src)
	loader.CreateDisposition = bq.CreateIfNeeded
	loader.WriteDisposition = bq.WriteAppend
	if opts.Truncate {
		loader.WriteDisposition = bq.WriteTruncate
	}
	return loader
}

func classify(err error, msg string) error {
	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) {
		return errors.FromGoogleAPI(err)
	}
	return errors.Wrap(err, errors.ErrorTypeExternal, msg)
}
