// Package metrics exposes Prometheus collectors for connector calls.
//
// # Basic Usage
//
//	timer := metrics.NewTimer()
//	err := client.Upload(ctx, ...)
//	metrics.RecordCall("s3", "upload", err, timer.Stop())
//	metrics.BytesTransferred.WithLabelValues("s3", metrics.DirectionUpload).Add(float64(n))
//
// All collectors are registered with the default Prometheus registry on
// package initialisation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// DirectionUpload labels bytes sent to a vendor
	DirectionUpload = "upload"
	// DirectionDownload labels bytes received from a vendor
	DirectionDownload = "download"

	statusSuccess = "success"
	statusError   = "error"
)

var (
	// ConnectorCalls counts connector operations by outcome
	ConnectorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route1_connector_calls_total",
			Help: "Total number of connector operations",
		},
		[]string{"connector", "operation", "status"},
	)

	// CallDuration tracks connector operation latency in seconds
	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "route1_connector_call_duration_seconds",
			Help:    "Connector operation latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"connector", "operation"},
	)

	// BytesTransferred counts file bytes moved to or from vendors
	BytesTransferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route1_bytes_transferred_total",
			Help: "Total bytes uploaded to or downloaded from vendors",
		},
		[]string{"connector", "direction"},
	)

	// RowsFetched counts report rows returned by reporting connectors
	RowsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route1_rows_fetched_total",
			Help: "Total report rows fetched from vendor APIs",
		},
		[]string{"connector"},
	)
)

// RecordCall records the outcome and duration of one connector operation.
func RecordCall(connector, operation string, err error, d time.Duration) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	ConnectorCalls.WithLabelValues(connector, operation, status).Inc()
	CallDuration.WithLabelValues(connector, operation).Observe(d.Seconds())
}

// RecordBytes adds n to the transferred bytes counter. Non-positive values
// are ignored.
func RecordBytes(connector, direction string, n int64) {
	if n <= 0 {
		return
	}
	BytesTransferred.WithLabelValues(connector, direction).Add(float64(n))
}

// RecordRows adds n to the fetched rows counter.
func RecordRows(connector string, n int) {
	if n <= 0 {
		return
	}
	RowsFetched.WithLabelValues(connector).Add(float64(n))
}

// Timer measures elapsed time
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// WriteTextfile writes every registered collector to path in the text
// exposition format read by the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
