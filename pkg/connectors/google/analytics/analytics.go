// Package analytics pulls reports from Google Analytics: GA4 properties
// through the Analytics Data API and Universal Analytics views through the
// Reporting API v4.
package analytics

import (
	"github.com/route1io/connectors/pkg/models"
)

const connectorName = "google_analytics"

// Scope grants read access to Analytics data.
const Scope = "https://www.googleapis.com/auth/analytics.readonly"

// Relative dates accepted by both APIs.
const (
	DefaultStartDate = "7daysAgo"
	DefaultEndDate   = "today"
)

// ReportRequest describes a report. Empty dates default to the last seven
// days; empty dimension and metric lists default per API.
type ReportRequest struct {
	// ID is the GA4 property ID or the Universal Analytics view ID.
	ID         string
	Dimensions []string
	Metrics    []string
	StartDate  string
	EndDate    string
}

func (r ReportRequest) withDefaults(dimensions, metrics []string) ReportRequest {
	if r.StartDate == "" {
		r.StartDate = DefaultStartDate
	}
	if r.EndDate == "" {
		r.EndDate = DefaultEndDate
	}
	if len(r.Dimensions) == 0 {
		r.Dimensions = dimensions
	}
	if len(r.Metrics) == 0 {
		r.Metrics = metrics
	}
	return r
}

// appendRow adds a row built from parallel header and value slices.
func appendRow(t *models.Table, headers, values []string) {
	row := make(models.Row, len(headers))
	for i, h := range headers {
		if i < len(values) {
			row[h] = values[i]
		}
	}
	t.Rows = append(t.Rows, row)
}
