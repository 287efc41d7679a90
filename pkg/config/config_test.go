package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	trequire "github.com/stretchr/testify/require"

	"github.com/route1io/connectors/pkg/errors"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("ROUTE1_TEST_SET", "value")
	t.Setenv("ROUTE1_TEST_EMPTY", "")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "no vars", "no vars"},
		{"set", "a: ${ROUTE1_TEST_SET}", "a: value"},
		{"unset", "a: ${ROUTE1_TEST_UNSET}", "a: "},
		{"default used", "a: ${ROUTE1_TEST_UNSET:-fallback}", "a: fallback"},
		{"default on empty", "a: ${ROUTE1_TEST_EMPTY:-fallback}", "a: fallback"},
		{"default ignored", "a: ${ROUTE1_TEST_SET:-fallback}", "a: value"},
		{"several", "${ROUTE1_TEST_SET}/${ROUTE1_TEST_SET}", "value/value"},
		{"unterminated", "a: ${ROUTE1_TEST_SET", "a: ${ROUTE1_TEST_SET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.in))
		})
	}
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "load.yaml")

	var doc LoadDocument
	doc.Load.Targets = []Target{{
		Name:        "upload",
		TargetType:  "s3",
		Filename:    "out/report.csv",
		Compression: "gzip",
		Params:      Params{"bucket": "b", "key": "k"},
	}}
	trequire.NoError(t, Save(path, &doc))

	var loaded LoadDocument
	trequire.NoError(t, Load(path, &loaded))
	trequire.Len(t, loaded.Load.Targets, 1)
	target := loaded.Load.Targets[0]
	assert.Equal(t, "s3", target.TargetType)
	assert.Equal(t, "gzip", target.Compression)
	assert.Equal(t, "b", target.Params.String("bucket"))
	assert.NoError(t, loaded.Validate())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	var doc ExtractDocument
	err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &doc)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestParseInvalidYAML(t *testing.T) {
	var doc ExtractDocument
	err := Parse([]byte("extract: [unclosed"), &doc)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestDocumentValidate(t *testing.T) {
	var empty ExtractDocument
	assert.True(t, errors.IsType(empty.Validate(), errors.ErrorTypeConfig))

	var doc ExtractDocument
	doc.Extract.Sources = []Source{{Name: "a", SourceType: "s3"}}
	assert.ErrorContains(t, doc.Validate(), "filename is required")

	var load LoadDocument
	load.Load.Targets = []Target{{Name: "a", TargetType: "s3", Filename: "f", Compression: "rar"}}
	assert.ErrorContains(t, load.Validate(), "unsupported compression")
}

func TestParams(t *testing.T) {
	p := Params{"bucket": "b", "port": 5432, "secure": "false", "flag": true}
	assert.Equal(t, "b", p.String("bucket"))
	assert.Equal(t, "5432", p.String("port"))
	assert.Equal(t, "", p.String("missing"))
	assert.False(t, p.Bool("secure", true))
	assert.True(t, p.Bool("flag", false))
	assert.True(t, p.Bool("missing", true))
	assert.NoError(t, p.Require("bucket", "port"))
	assert.ErrorContains(t, p.Require("bucket", "key"), `"key"`)
}

func TestLoadSettings(t *testing.T) {
	t.Setenv("ROUTE1_WORKING_DIR", "/tmp/work")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_REGION", "")
	t.Setenv("MINIO_USE_SSL", "false")

	s, err := LoadSettings()
	trequire.NoError(t, err)
	assert.Equal(t, "/tmp/work", s.WorkingDir)
	assert.Equal(t, "AKIA", s.AWSAccessKeyID)
	assert.False(t, s.MinioUseSSL)

	s.AWSRegion = ""
	err = s.RequireAWS()
	trequire.Error(t, err)
	assert.Contains(t, err.Error(), "AWS_REGION")

	s.GCPRefreshToken = ""
	assert.ErrorContains(t, s.RequireGCP(), "GCP_REFRESH_TOKEN")
}
