// Package json is the JSON codec of the connectors. It wraps goccy/go-json
// and never HTML-escapes, since payloads go to vendor APIs and not to
// browsers.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// maxPooled is the largest buffer capacity kept for reuse.
const maxPooled = 1 << 20

var buffers = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// GetBuffer returns an empty buffer from the pool.
func GetBuffer() *bytes.Buffer {
	buf := buffers.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer hands buf back to the pool. Oversized buffers are dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooled {
		return
	}
	buffers.Put(buf)
}

// Marshal is encoding/json.Marshal without HTML escaping.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.MarshalWithOption(v, gojson.DisableHTMLEscape())
}

// MarshalIndent is encoding/json.MarshalIndent without HTML escaping.
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndentWithOption(v, prefix, indent, gojson.DisableHTMLEscape())
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// Encode writes v to w followed by a newline.
func Encode(w io.Writer, v interface{}) error {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Decode reads one JSON value from r into v.
func Decode(r io.Reader, v interface{}) error {
	return gojson.NewDecoder(r).Decode(v)
}

// EncodeToBuffer encodes v into a pooled buffer, which the caller returns
// with PutBuffer when done with it.
func EncodeToBuffer(v interface{}) (*bytes.Buffer, error) {
	buf := GetBuffer()
	if err := Encode(buf, v); err != nil {
		PutBuffer(buf)
		return nil, err
	}
	return buf, nil
}
