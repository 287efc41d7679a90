// Package compression compresses files before they are uploaded and
// restores files that were downloaded compressed.
//
// Supported algorithms and the extension each one adds:
//
//	gzip    .gz
//	zstd    .zst
//	lz4     .lz4
//	snappy  .sz  (framed, written with s2 in snappy-compatible mode)
package compression

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/route1io/connectors/pkg/errors"
)

// Algorithm names a compression format.
type Algorithm string

const (
	None   Algorithm = "none"
	Gzip   Algorithm = "gzip"
	Zstd   Algorithm = "zstd"
	LZ4    Algorithm = "lz4"
	Snappy Algorithm = "snappy"
)

// Level trades speed for ratio.
type Level int

const (
	Fastest Level = 1
	Default Level = 5
	Best    Level = 9
)

var extensions = map[Algorithm]string{
	Gzip:   ".gz",
	Zstd:   ".zst",
	LZ4:    ".lz4",
	Snappy: ".sz",
}

// ParseAlgorithm parses a configured algorithm name. The empty string is
// None; "gz" and "zst" are accepted as aliases.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "zstd", "zst":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	case "snappy", "sz":
		return Snappy, nil
	default:
		return "", errors.Newf(errors.ErrorTypeConfig, "unknown compression algorithm %q", s)
	}
}

// Extension returns the file extension for algo, or "" for None.
func Extension(algo Algorithm) string {
	return extensions[algo]
}

// FromExtension returns the algorithm whose extension path ends with, or
// None.
func FromExtension(path string) Algorithm {
	ext := strings.ToLower(filepath.Ext(path))
	for algo, e := range extensions {
		if e == ext {
			return algo
		}
	}
	return None
}

// NewWriter returns a writer that compresses into w. Closing it flushes the
// stream but does not close w.
func NewWriter(w io.Writer, algo Algorithm, level Level) (io.WriteCloser, error) {
	switch algo {
	case Gzip:
		return gzip.NewWriterLevel(w, gzipLevel(level))
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevel(level)))
	case LZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid lz4 level")
		}
		return zw, nil
	case Snappy:
		return s2.NewWriter(w, s2.WriterSnappyCompat()), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "cannot compress with %q", algo)
	}
}

// NewReader returns a reader that decompresses r.
func NewReader(r io.Reader, algo Algorithm) (io.ReadCloser, error) {
	switch algo {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid gzip stream")
		}
		return zr, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid zstd stream")
		}
		return zr.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Snappy:
		return io.NopCloser(s2.NewReader(r)), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "cannot decompress %q", algo)
	}
}

// CompressFile writes path compressed with algo next to it and returns the
// new path, which is path plus the algorithm's extension. None returns path
// unchanged.
func CompressFile(path string, algo Algorithm) (string, error) {
	return CompressFileLevel(path, algo, Default)
}

// CompressFileLevel is CompressFile with an explicit level.
func CompressFileLevel(path string, algo Algorithm, level Level) (string, error) {
	if algo == None || algo == "" {
		return path, nil
	}
	out := path + Extension(algo)
	err := transform(path, out, func(dst io.Writer, src io.Reader) error {
		w, err := NewWriter(dst, algo, level)
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, src); err != nil {
			_ = w.Close()
			return errors.Wrapf(err, errors.ErrorTypeFile, "failed to compress %s", path)
		}
		if err := w.Close(); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeFile, "failed to compress %s", path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// DecompressFile restores a file compressed by CompressFile, choosing the
// algorithm from the extension, and returns the path without it. Files
// without a known extension are returned unchanged.
func DecompressFile(path string) (string, error) {
	algo := FromExtension(path)
	if algo == None {
		return path, nil
	}
	out := strings.TrimSuffix(path, filepath.Ext(path))
	err := transform(path, out, func(dst io.Writer, src io.Reader) error {
		r, err := NewReader(src, algo)
		if err != nil {
			return err
		}
		defer r.Close()
		if _, err := io.Copy(dst, r); err != nil { //nolint:gosec // G110: inputs are our own downloads
			return errors.Wrapf(err, errors.ErrorTypeData, "failed to decompress %s", path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func transform(in, out string, fn func(io.Writer, io.Reader) error) error {
	src, err := os.Open(in) //nolint:gosec // caller-controlled path
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to open %s", in)
	}
	defer src.Close()

	dst, err := os.Create(out) //nolint:gosec // caller-controlled path
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", out)
	}
	bw := bufio.NewWriter(dst)
	err = fn(bw, bufio.NewReader(src))
	if err == nil {
		err = bw.Flush()
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out)
		if _, ok := err.(*errors.Error); ok {
			return err
		}
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to write %s", out)
	}
	return nil
}

func gzipLevel(level Level) int {
	switch {
	case level <= Fastest:
		return gzip.BestSpeed
	case level >= Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func zstdLevel(level Level) zstd.EncoderLevel {
	switch {
	case level <= Fastest:
		return zstd.SpeedFastest
	case level >= Best:
		return zstd.SpeedBestCompression
	case level > Default:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedDefault
	}
}

func lz4Level(level Level) lz4.CompressionLevel {
	switch {
	case level <= Fastest:
		return lz4.Fast
	case level >= Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}
