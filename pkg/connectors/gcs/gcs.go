// Package gcs moves files between the local filesystem and Google Cloud
// Storage.
package gcs

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/observability"
)

const connectorName = "gcs"

// Scope grants read and write access to buckets.
const Scope = storage.ScopeReadWrite

// ObjectInfo is the part of an object listing the connector uses.
type ObjectInfo struct {
	Name    string
	Size    int64
	Updated time.Time
}

// API is the subset of Cloud Storage the connector calls.
type API interface {
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// Client uploads and downloads objects.
type Client struct {
	api API
}

// Connect creates a client. A nil ts leaves authentication to opts, which
// falls back to application default credentials.
func Connect(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	sc, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create storage client")
	}
	return NewFromAPI(&storageAPI{client: sc}), nil
}

// NewFromAPI wraps an existing API implementation.
func NewFromAPI(api API) *Client {
	return &Client{api: api}
}

// Upload copies the local file at path to bucket. object defaults to the
// base name of path.
func (c *Client) Upload(ctx context.Context, path, bucket, object string) (err error) {
	ctx, done := observability.Start(ctx, connectorName, "upload")
	defer func() { done(err) }()

	if object == "" {
		object = filepath.Base(path)
	}
	f, err := os.Open(path) //nolint:gosec // caller-controlled path
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to open %s", path)
	}
	defer f.Close()

	w := c.api.NewWriter(ctx, bucket, object)
	n, err := io.Copy(w, f)
	if err != nil {
		_ = w.Close()
		return classify(err, "failed to upload "+path)
	}
	// the object is committed on Close
	if err := w.Close(); err != nil {
		return classify(err, "failed to upload "+path)
	}

	metrics.RecordBytes(connectorName, metrics.DirectionUpload, n)
	logger.WithContext(ctx).Info("uploaded file",
		zap.String("bucket", bucket),
		zap.String("object", object),
		zap.String("filename", path))
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
	r, err := c.api.NewReader(ctx, bucket, object)
	if err != nil {
		return "", classify(err, "failed to read gs://"+bucket+"/"+object)
	}
	defer r.Close()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", dir)
		}
	}
	f, err := os.Create(path) //nolint:gosec // caller-controlled path
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", path)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrorTypeFile, "failed to write %s", path)
	}

	metrics.RecordBytes(connectorName, metrics.DirectionDownload, n)
	logger.WithContext(ctx).Info("downloaded object",
		zap.String("bucket", bucket),
		zap.String("object", object),
		zap.String("filename", path))
	return path, nil
}

// MostRecentObject returns the name of the most recently updated object
// under prefix. An empty listing is a not_found error.
func (c *Client) MostRecentObject(ctx context.Context, bucket, prefix string) (name string, err error) {
	ctx, done := observability.Start(ctx, connectorName, "most_recent_object")
	defer func() { done(err) }()

	objects, err := c.api.List(ctx, bucket, prefix)
	if err != nil {
		return "", classify(err, "failed to list gs://"+bucket+"/"+prefix)
	}
	var latest time.Time
	for _, o := range objects {
		if name == "" || o.Updated.After(latest) {
			name, latest = o.Name, o.Updated
		}
	}
	if name == "" {
		return "", errors.Newf(errors.ErrorTypeNotFound, "no objects in gs://%s/%s", bucket, prefix)
	}
	return name, nil
}

func classify(err error, msg string) error {
	if stderrors.Is(err, storage.ErrObjectNotExist) || stderrors.Is(err, storage.ErrBucketNotExist) {
		return errors.Wrap(err, errors.ErrorTypeNotFound, msg)
	}
	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) {
		return errors.FromGoogleAPI(err)
	}
	return errors.Wrap(err, errors.ErrorTypeExternal, msg)
}

type storageAPI struct {
	client *storage.Client
}

func (s *storageAPI) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	return s.client.Bucket(bucket).Object(object).NewWriter(ctx)
}

func (s *storageAPI) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return s.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (s *storageAPI) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ObjectInfo{Name: attrs.Name, Size: attrs.Size, Updated: attrs.Updated})
	}
}
