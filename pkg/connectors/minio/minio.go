// Package minio moves files between the local filesystem and
// S3-compatible object stores such as MinIO.
package minio

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/observability"
)

const connectorName = "minio"

// API is the subset of *minio.Client the connector calls.
type API interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, path string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucket, object, path string, opts minio.GetObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// Credentials locate and authenticate against an object store.
type Credentials struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// Client uploads and downloads objects.
type Client struct {
	api API
}

// Connect creates a client from static credentials.
func Connect(creds Credentials) (*Client, error) {
	if creds.Endpoint == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "minio endpoint is required")
	}
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "minio access key and secret key are required")
	}
	mc, err := minio.New(creds.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, ""),
		Secure: creds.UseSSL,
		Region: creds.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create minio client")
	}
	return NewFromAPI(mc), nil
}

// NewFromAPI wraps an existing API implementation.
func NewFromAPI(api API) *Client {
	return &Client{api: api}
}

// EnsureBucket creates bucket when it does not exist.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) (err error) {
	ctx, done := observability.Start(ctx, connectorName, "ensure_bucket")
	defer func() { done(err) }()

	exists, err := c.api.BucketExists(ctx, bucket)
	if err != nil {
		return classify(err, "failed to check bucket "+bucket)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return classify(err, "failed to create bucket "+bucket)
	}
	logger.WithContext(ctx).Info("created bucket", zap.String("bucket", bucket))
	return nil
}

// Upload copies the local file at path to bucket. object defaults to the
// base name of path.
func (c *Client) Upload(ctx context.Context, path, bucket, object string) (err error) {
	ctx, done := observability.Start(ctx, connectorName, "upload")
	defer func() { done(err) }()

	if object == "" {
		object = filepath.Base(path)
	}
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to stat %s", path)
	}
	info, err := c.api.FPutObject(ctx, bucket, object, path, minio.PutObjectOptions{})
	if err != nil {
		return classify(err, "failed to upload "+path)
	}

	metrics.RecordBytes(connectorName, metrics.DirectionUpload, info.Size)
	logger.WithContext(ctx).Info("uploaded file",
		zap.String("bucket", bucket),
		zap.String("object", object),
		zap.String("filename", path),
		zap.String("etag", info.ETag))
	return nil
}

// Download copies object to the local path and returns it. path defaults
// to the base name of object.
func (c *Client) Download(ctx context.Context, bucket, object, path string) (_ string, err error) {
	ctx, done := observability.Start(ctx, connectorName, "download")
	defer func() { done(err) }()

	if path == "" {
		path = filepath.Base(object)
	}
	if err := c.api.FGetObject(ctx, bucket, object, path, minio.GetObjectOptions{}); err != nil {
		return "", classify(err, "failed to download "+bucket+"/"+object)
	}
	if st, err := os.Stat(path); err == nil {
		metrics.RecordBytes(connectorName, metrics.DirectionDownload, st.Size())
	}
	logger.WithContext(ctx).Info("downloaded object",
		zap.String("bucket", bucket),
		zap.String("object", object),
		zap.String("filename", path))
	return path, nil
}

// MostRecentObject returns the key of the most recently modified object
// under prefix, searching recursively. An empty listing is a not_found
// error.
func (c *Client) MostRecentObject(ctx context.Context, bucket, prefix string) (key string, err error) {
	ctx, done := observability.Start(ctx, connectorName, "most_recent_object")
	defer func() { done(err) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var latest time.Time
	for obj := range c.api.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return "", classify(obj.Err, "failed to list "+bucket+"/"+prefix)
		}
		if key == "" || obj.LastModified.After(latest) {
			key, latest = obj.Key, obj.LastModified
		}
	}
	if key == "" {
		return "", errors.Newf(errors.ErrorTypeNotFound, "no objects in %s/%s", bucket, prefix)
	}
	return key, nil
}

func classify(err error, msg string) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return errors.Wrap(err, errors.ErrorTypeNotFound, msg)
	case "AccessDenied":
		return errors.Wrap(err, errors.ErrorTypePermission, msg)
	}
	if resp.StatusCode != 0 {
		return errors.Wrap(err, errors.TypeForStatus(resp.StatusCode), msg).
			WithDetail("status", resp.StatusCode)
	}
	return errors.Wrap(err, errors.ErrorTypeExternal, msg)
}
