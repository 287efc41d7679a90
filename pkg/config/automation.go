package config

import (
	"fmt"
	"strconv"

	"github.com/route1io/connectors/pkg/compression"
	"github.com/route1io/connectors/pkg/errors"
)

// ExtractDocument is the root of an extract.yaml file.
type ExtractDocument struct {
	Extract struct {
		Notify  bool     `yaml:"notify,omitempty"`
		Sources []Source `yaml:"sources"`
	} `yaml:"extract"`
}

// LoadDocument is the root of a load.yaml file.
type LoadDocument struct {
	Load struct {
		Notify  bool     `yaml:"notify,omitempty"`
		Targets []Target `yaml:"targets"`
	} `yaml:"load"`
}

// Params holds the connector-specific keys of a source or target
// (bucket, key, sheet_id, ...).
type Params map[string]interface{}

// String returns the parameter as a string, or "" when absent.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns the parameter as a bool, or def when absent or unparsable.
func (p Params) Bool(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Require returns an error naming the first missing key.
func (p Params) Require(keys ...string) error {
	for _, key := range keys {
		if p.String(key) == "" {
			return errors.Newf(errors.ErrorTypeConfig, "missing required parameter %q", key)
		}
	}
	return nil
}

// Source is one entry of extract.sources.
type Source struct {
	Name       string `yaml:"name"`
	SourceType string `yaml:"source_type"`
	// Filename is relative to the working directory.
	Filename string `yaml:"filename"`
	Params   Params `yaml:",inline"`
}

// Target is one entry of load.targets.
type Target struct {
	Name       string `yaml:"name"`
	TargetType string `yaml:"target_type"`
	// Filename is relative to the working directory.
	Filename string `yaml:"filename"`
	// Compression is one of gzip, zstd, lz4, snappy or empty.
	Compression string `yaml:"compression,omitempty"`
	Params      Params `yaml:",inline"`
}

// Validate checks the document structure. Connector types are checked when
// the step is dispatched.
func (d *ExtractDocument) Validate() error {
	if len(d.Extract.Sources) == 0 {
		return errors.New(errors.ErrorTypeConfig, "extract.sources is empty")
	}
	for i, s := range d.Extract.Sources {
		if s.Name == "" {
			return errors.Newf(errors.ErrorTypeConfig, "extract.sources[%d]: name is required", i)
		}
		if s.SourceType == "" {
			return errors.Newf(errors.ErrorTypeConfig, "extract.sources[%d] (%s): source_type is required", i, s.Name)
		}
		if s.Filename == "" {
			return errors.Newf(errors.ErrorTypeConfig, "extract.sources[%d] (%s): filename is required", i, s.Name)
		}
	}
	return nil
}

// Validate checks the document structure.
func (d *LoadDocument) Validate() error {
	if len(d.Load.Targets) == 0 {
		return errors.New(errors.ErrorTypeConfig, "load.targets is empty")
	}
	for i, t := range d.Load.Targets {
		if t.Name == "" {
			return errors.Newf(errors.ErrorTypeConfig, "load.targets[%d]: name is required", i)
		}
		if t.TargetType == "" {
			return errors.Newf(errors.ErrorTypeConfig, "load.targets[%d] (%s): target_type is required", i, t.Name)
		}
		if t.Filename == "" {
			return errors.Newf(errors.ErrorTypeConfig, "load.targets[%d] (%s): filename is required", i, t.Name)
		}
		if _, err := compression.ParseAlgorithm(t.Compression); err != nil {
			return errors.Newf(errors.ErrorTypeConfig, "load.targets[%d] (%s): unsupported compression %q", i, t.Name, t.Compression)
		}
	}
	return nil
}
