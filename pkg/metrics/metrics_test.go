package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCall(t *testing.T) {
	before := testutil.ToFloat64(ConnectorCalls.WithLabelValues("test", "op", statusError))
	RecordCall("test", "op", errors.New("boom"), time.Millisecond)
	after := testutil.ToFloat64(ConnectorCalls.WithLabelValues("test", "op", statusError))
	assert.Equal(t, before+1, after)

	before = testutil.ToFloat64(ConnectorCalls.WithLabelValues("test", "op", statusSuccess))
	RecordCall("test", "op", nil, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(ConnectorCalls.WithLabelValues("test", "op", statusSuccess)))
}

func TestRecordBytesIgnoresNonPositive(t *testing.T) {
	c := BytesTransferred.WithLabelValues("test", DirectionUpload)
	before := testutil.ToFloat64(c)
	RecordBytes("test", DirectionUpload, 0)
	RecordBytes("test", DirectionUpload, -4)
	RecordBytes("test", DirectionUpload, 10)
	assert.Equal(t, before+10, testutil.ToFloat64(c))
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}

func TestWriteTextfile(t *testing.T) {
	RecordRows("textfile", 3)
	path := filepath.Join(t.TempDir(), "route1.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `route1_rows_fetched_total{connector="textfile"}`)
}
