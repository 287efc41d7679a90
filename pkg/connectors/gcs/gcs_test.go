package gcs

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/testutil"
)

// memoryAPI keeps objects in a map keyed by bucket/object.
type memoryAPI struct {
	objects map[string][]byte
	updated map[string]time.Time
	listErr error
}

func newMemoryAPI() *memoryAPI {
	return &memoryAPI{objects: map[string][]byte{}, updated: map[string]time.Time{}}
}

type memoryWriter struct {
	bytes.Buffer
	api *memoryAPI
	key string
}

func (w *memoryWriter) Close() error {
	w.api.objects[w.key] = w.Bytes()
	w.api.updated[w.key] = time.Now()
	return nil
}

func (m *memoryAPI) NewWriter(_ context.Context, bucket, object string) io.WriteCloser {
	return &memoryWriter{api: m, key: bucket + "/" + object}
}

func (m *memoryAPI) NewReader(_ context.Context, bucket, object string) (io.ReadCloser, error) {
	data, ok := m.objects[bucket+"/"+object]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryAPI) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []ObjectInfo
	for key, data := range m.objects {
		name, ok := strings.CutPrefix(key, bucket+"/")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, ObjectInfo{Name: name, Size: int64(len(data)), Updated: m.updated[key]})
	}
	return out, nil
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := testutil.WriteFile(t, dir, "report.csv", "a,b\n1,2\n")
	api := newMemoryAPI()
	c := NewFromAPI(api)
	ctx := testutil.TestContext(t)

	require.NoError(t, c.Upload(ctx, src, "bucket", ""))
	assert.Equal(t, []byte("a,b\n1,2\n"), api.objects["bucket/report.csv"])

	require.NoError(t, c.Upload(ctx, src, "bucket", "reports/2024/daily.csv"))
	dst := filepath.Join(dir, "out", "daily.csv")
	path, err := c.Download(ctx, "bucket", "reports/2024/daily.csv", dst)
	require.NoError(t, err)
	assert.Equal(t, dst, path)
	assert.Equal(t, "a,b\n1,2\n", testutil.ReadFile(t, dst))
}

func TestDownloadMissingObject(t *testing.T) {
	c := NewFromAPI(newMemoryAPI())
	_, err := c.Download(testutil.TestContext(t), "bucket", "nope.csv", filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestUploadMissingFile(t *testing.T) {
	c := NewFromAPI(newMemoryAPI())
	err := c.Upload(testutil.TestContext(t), filepath.Join(t.TempDir(), "missing.csv"), "bucket", "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestMostRecentObject(t *testing.T) {
	api := newMemoryAPI()
	now := time.Now()
	for name, age := range map[string]time.Duration{
		"exports/old.csv":    48 * time.Hour,
		"exports/newest.csv": time.Minute,
		"exports/mid.csv":    time.Hour,
		"other/latest.csv":   0,
	} {
		api.objects["bucket/"+name] = []byte("x")
		api.updated["bucket/"+name] = now.Add(-age)
	}
	c := NewFromAPI(api)
	ctx := testutil.TestContext(t)

	name, err := c.MostRecentObject(ctx, "bucket", "exports/")
	require.NoError(t, err)
	assert.Equal(t, "exports/newest.csv", name)

	_, err = c.MostRecentObject(ctx, "bucket", "missing/")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	api.listErr = &googleapi.Error{Code: 403, Message: "forbidden"}
	_, err = c.MostRecentObject(ctx, "bucket", "exports/")
	assert.True(t, errors.IsType(err, errors.ErrorTypePermission))
}
