// Package s3 moves files between the local filesystem and Amazon S3.
package s3

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/observability"
)

const connectorName = "s3"

// API is the subset of *s3.Client the connector calls. The uploader needs
// the multipart operations as well.
type API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Credentials identify an AWS account and region.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	// Endpoint overrides the S3 endpoint, e.g. for LocalStack.
	Endpoint string
}

// Client uploads and downloads objects.
type Client struct {
	api      API
	uploader *manager.Uploader
}

// Connect builds a client from static credentials.
func Connect(ctx context.Context, creds Credentials) (*Client, error) {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "aws access key id and secret access key are required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(creds.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if creds.Endpoint != "" {
			o.BaseEndpoint = aws.String(creds.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewFromAPI(client), nil
}

// NewFromAPI wraps an existing S3 API implementation.
func NewFromAPI(api API) *Client {
	return &Client{
		api:      api,
		uploader: manager.NewUploader(api),
	}
}

// MostRecentKey returns the key of the most recently modified object under
// prefix. An empty listing is a not_found error.
func (c *Client) MostRecentKey(ctx context.Context, bucket, prefix string) (key string, err error) {
	ctx, done := observability.Start(ctx, connectorName, "most_recent_key")
	defer func() { done(err) }()

	var latest time.Time
	found := false
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrorTypeExternal, "failed to list s3://%s/%s", bucket, prefix)
		}
		for _, obj := range page.Contents {
			modified := aws.ToTime(obj.LastModified)
			if !found || modified.After(latest) {
				latest = modified
				key = aws.ToString(obj.Key)
				found = true
			}
		}
	}

	if !found {
		return "", errors.Newf(errors.ErrorTypeNotFound, "no objects in s3://%s/%s", bucket, prefix)
	}
	return key, nil
}

// Upload uploads each local file to bucket. Keys may be shorter than
// filenames only when empty; see pairFiles for how missing keys are filled.
func (c *Client) Upload(ctx context.Context, bucket string, filenames, keys []string) (err error) {
	ctx, done := observability.Start(ctx, connectorName, "upload")
	defer func() { done(err) }()

	pairs, err := pairFiles(filenames, keys, filenamesRequired)
	if err != nil {
		return err
	}

	for _, p := range pairs {
		if err := c.uploadOne(ctx, bucket, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) uploadOne(ctx context.Context, bucket string, p Pair) error {
	f, err := os.Open(p.Filename) //nolint:gosec // caller-controlled path
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to open %s", p.Filename)
	}
	defer f.Close()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	if _, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(p.Key),
		Body:   f,
	}); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeExternal, "failed to upload %s to s3://%s/%s", p.Filename, bucket, p.Key)
	}

	metrics.RecordBytes(connectorName, metrics.DirectionUpload, size)
	logger.WithContext(ctx).Info("uploaded file",
		zap.String("bucket", bucket),
		zap.String("key", p.Key),
		zap.String("filename", p.Filename))
	return nil
}

// Download downloads each key from bucket and returns the local paths in
// key order. Missing filenames default to the key's base name.
func (c *Client) Download(ctx context.Context, bucket string, keys, filenames []string) (paths []string, err error) {
	ctx, done := observability.Start(ctx, connectorName, "download")
	defer func() { done(err) }()

	pairs, err := pairFiles(filenames, keys, keysRequired)
	if err != nil {
		return nil, err
	}

	paths = make([]string, 0, len(pairs))
	for _, p := range pairs {
		if err := c.downloadOne(ctx, bucket, p); err != nil {
			return nil, err
		}
		paths = append(paths, p.Filename)
	}
	return paths, nil
}

func (c *Client) downloadOne(ctx context.Context, bucket string, p Pair) error {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(p.Key),
	})
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeExternal, "failed to get s3://%s/%s", bucket, p.Key)
	}
	defer out.Body.Close()

	if dir := filepath.Dir(p.Filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", dir)
		}
	}
	f, err := os.Create(p.Filename) //nolint:gosec // caller-controlled path
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", p.Filename)
	}
	n, err := io.Copy(f, out.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to write %s", p.Filename)
	}

	metrics.RecordBytes(connectorName, metrics.DirectionDownload, n)
	logger.WithContext(ctx).Info("downloaded object",
		zap.String("bucket", bucket),
		zap.String("key", p.Key),
		zap.String("filename", p.Filename))
	return nil
}
