package automation

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/route1io/connectors/pkg/compression"
	"github.com/route1io/connectors/pkg/config"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/json"
	"github.com/route1io/connectors/pkg/testutil"
)

func TestDefaultRegistry(t *testing.T) {
	assert.Equal(t, []string{"gcs", "gsheets", "minio", "s3"}, Default().Extractors())
	assert.Equal(t, []string{"bigquery", "drive", "gcs", "gsheets", "minio", "postgres", "s3"}, Default().Loaders())
}

func TestBuiltinsRequireSettings(t *testing.T) {
	ctx := testutil.TestContext(t)
	empty := &config.Settings{}

	_, err := Default().CreateExtractor(ctx, "s3", empty)
	assert.ErrorContains(t, err, "AWS_ACCESS_KEY_ID")
	_, err = Default().CreateExtractor(ctx, "gsheets", empty)
	assert.ErrorContains(t, err, "GCP_REFRESH_TOKEN")
	_, err = Default().CreateExtractor(ctx, "minio", empty)
	assert.ErrorContains(t, err, "MINIO_ENDPOINT")
	_, err = Default().CreateLoader(ctx, "postgres", empty)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = Default().CreateLoader(ctx, "drive", empty)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, *config.Settings) (Extractor, error) { return nil, nil }
	require.NoError(t, r.RegisterExtractor("x", noop))
	err := r.RegisterExtractor("x", noop)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestStepObjectName(t *testing.T) {
	step := Step{Path: "/work/out/report.csv.gz", Params: config.Params{"key": "remote/report.csv"}, Suffix: ".gz"}
	assert.Equal(t, "remote/report.csv.gz", step.ObjectName("key"))
	assert.Equal(t, "report.csv.gz", step.ObjectName("object"))
}

func extractDoc(t *testing.T, yamlDoc string) *config.ExtractDocument {
	t.Helper()
	var doc config.ExtractDocument
	require.NoError(t, config.Parse([]byte(yamlDoc), &doc))
	return &doc
}

func loadDoc(t *testing.T, yamlDoc string) *config.LoadDocument {
	t.Helper()
	var doc config.LoadDocument
	require.NoError(t, config.Parse([]byte(yamlDoc), &doc))
	return &doc
}

func TestRunExtract(t *testing.T) {
	var steps []Step
	r := NewRegistry()
	require.NoError(t, r.RegisterExtractor("fake", func(context.Context, *config.Settings) (Extractor, error) {
		return ExtractorFunc(func(_ context.Context, step Step) error {
			steps = append(steps, step)
			return os.WriteFile(step.Path, []byte(step.Params.String("body")), 0o600)
		}), nil
	}))

	settings := &config.Settings{WorkingDir: t.TempDir()}
	doc := extractDoc(t, `
extract:
  sources:
    - name: first
      source_type: fake
      filename: raw/first.csv
      body: "a,b"
    - name: second
      source_type: fake
      filename: second.csv
      body: "c,d"
`)

	res, err := r.RunExtract(testutil.TestContext(t), doc, settings)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, res.Completed)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, steps, 2)
	assert.Equal(t, filepath.Join(settings.WorkingDir, "raw", "first.csv"), steps[0].Path)
	assert.Equal(t, "a,b", testutil.ReadFile(t, steps[0].Path))
	assert.Equal(t, "fake", steps[1].Type)
}

func TestRunExtractDecompress(t *testing.T) {
	staging := testutil.WriteFile(t, t.TempDir(), "export.csv", "id,clicks\n1,2\n")
	compressed, err := compression.CompressFile(staging, compression.Zstd)
	require.NoError(t, err)

	r := NewRegistry()
	require.NoError(t, r.RegisterExtractor("fake", func(context.Context, *config.Settings) (Extractor, error) {
		return ExtractorFunc(func(_ context.Context, step Step) error {
			data, err := os.ReadFile(compressed)
			if err != nil {
				return err
			}
			return os.WriteFile(step.Path, data, 0o600)
		}), nil
	}))

	settings := &config.Settings{WorkingDir: t.TempDir()}
	doc := extractDoc(t, `
extract:
  sources:
    - name: export
      source_type: fake
      filename: export.csv.zst
      decompress: true
`)
	_, err = r.RunExtract(testutil.TestContext(t), doc, settings)
	require.NoError(t, err)
	assert.Equal(t, "id,clicks\n1,2\n", testutil.ReadFile(t, filepath.Join(settings.WorkingDir, "export.csv")))
}

func TestRunLoadCompresses(t *testing.T) {
	var got Step
	var uploaded []byte
	r := NewRegistry()
	require.NoError(t, r.RegisterLoader("fake", func(context.Context, *config.Settings) (Loader, error) {
		return LoaderFunc(func(_ context.Context, step Step) error {
			got = step
			var err error
			uploaded, err = os.ReadFile(step.Path)
			return err
		}), nil
	}))

	settings := &config.Settings{WorkingDir: t.TempDir()}
	testutil.WriteFile(t, settings.WorkingDir, "report.csv", "a,b\n1,2\n")
	doc := loadDoc(t, `
load:
  targets:
    - name: archive
      target_type: fake
      filename: report.csv
      compression: gzip
      key: archive/report.csv
`)

	_, err := r.RunLoad(testutil.TestContext(t), doc, settings)
	require.NoError(t, err)
	assert.Equal(t, ".gz", got.Suffix)
	assert.Equal(t, "archive/report.csv.gz", got.ObjectName("key"))
	assert.Equal(t, filepath.Join(settings.WorkingDir, "report.csv.gz"), got.Path)
	assert.NoFileExists(t, got.Path)

	restored := testutil.WriteFile(t, t.TempDir(), "copy.csv.gz", string(uploaded))
	plain, err := compression.DecompressFile(restored)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", testutil.ReadFile(t, plain))
}

func TestRunStopsAtUnknownType(t *testing.T) {
	calls := 0
	r := NewRegistry()
	require.NoError(t, r.RegisterLoader("fake", func(context.Context, *config.Settings) (Loader, error) {
		return LoaderFunc(func(context.Context, Step) error {
			calls++
			return nil
		}), nil
	}))

	doc := loadDoc(t, `
load:
  targets:
    - {name: one, target_type: fake, filename: a.csv}
    - {name: two, target_type: ftp, filename: b.csv}
    - {name: three, target_type: fake, filename: c.csv}
`)
	res, err := r.RunLoad(testutil.TestContext(t), doc, &config.Settings{WorkingDir: t.TempDir()})
	require.Error(t, err)
	assert.ErrorContains(t, err, `"ftp"`)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Equal(t, "two", res.Failed)
	assert.Equal(t, []string{"one"}, res.Completed)
	assert.Equal(t, 1, calls)
}

func TestRunNotifiesSlack(t *testing.T) {
	var messages []string
	srv := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]string
		require.NoError(t, json.Unmarshal(data, &body))
		messages = append(messages, body["text"])
		_, _ = w.Write([]byte("ok"))
	}))

	r := NewRegistry()
	require.NoError(t, r.RegisterExtractor("broken", func(context.Context, *config.Settings) (Extractor, error) {
		return ExtractorFunc(func(context.Context, Step) error {
			return errors.New(errors.ErrorTypeNotFound, "no such sheet")
		}), nil
	}))
	settings := &config.Settings{WorkingDir: t.TempDir(), SlackWebhookURL: srv.URL}

	notify := extractDoc(t, `
extract:
  notify: true
  sources:
    - {name: sheet, source_type: broken, filename: s.csv}
`)
	_, err := r.RunExtract(testutil.TestContext(t), notify, settings)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "failed at sheet")
	assert.Contains(t, messages[0], "no such sheet")

	quiet := extractDoc(t, `
extract:
  sources:
    - {name: sheet, source_type: broken, filename: s.csv}
`)
	_, err = r.RunExtract(testutil.TestContext(t), quiet, settings)
	assert.Error(t, err)
	assert.Len(t, messages, 1)
}

func TestRunValidatesDocument(t *testing.T) {
	_, err := NewRegistry().RunExtract(testutil.TestContext(t), &config.ExtractDocument{}, &config.Settings{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
