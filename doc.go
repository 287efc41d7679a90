// Package connectors is a set of thin clients for the marketing, analytics
// and storage services route1 exchanges data with.
//
// Every connector lives in its own package under pkg/connectors and is
// shaped the same way: build an authenticated client, then call one of a
// few operations that download a file, upload a file or return a report as
// a *models.Table.
//
//	creds, err := credentials.FromRefreshToken(ctx, refreshToken, clientID, clientSecret, sheets.Scope)
//	if err != nil {
//	    return err
//	}
//	client, err := sheets.Connect(ctx, creds.TokenSource(ctx))
//	if err != nil {
//	    return err
//	}
//	err = client.Download(ctx, "out/spend.csv", spreadsheetID, "Spend")
//
// # Packages
//
//   - pkg/connectors/s3, gcs, minio: object storage upload, download and
//     most-recent-object lookup
//   - pkg/connectors/google/...: Sheets, Drive, Campaign Manager 360, Search
//     Ads 360, Google Ads and Analytics
//   - pkg/connectors/facebook, tiktok, linkedin, applesearchads, adthena:
//     advertising reports
//   - pkg/connectors/onedrive, quickbooks, slack: file transfer, timesheets
//     and notifications
//   - pkg/connectors/bigquery, postgres: CSV bulk loads
//   - pkg/automation: runs extract.yaml and load.yaml documents through the
//     registered connectors, used by cmd/route1
//
// # Errors
//
// Operations return *errors.Error values from pkg/errors. The Type field
// classifies the failure (authentication, not_found, rate_limit, ...) and the
// vendor's own error is kept as the cause:
//
//	if errors.IsType(err, errors.ErrorTypeRateLimit) {
//	    // back off
//	}
//
// # Observability
//
// Each operation logs through pkg/logger (zap), records Prometheus metrics
// through pkg/metrics and opens an OpenTelemetry span. Tracing is off until
// observability.InitTracing is called.
package connectors
