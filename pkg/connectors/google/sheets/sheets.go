// Package sheets uploads CSV files to Google Sheets and downloads sheets
// back to CSV.
package sheets

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/models"
	"github.com/route1io/connectors/pkg/observability"
)

const connectorName = "gsheets"

// Scope grants read and write access to spreadsheets.
const Scope = gsheets.SpreadsheetsScope

// naValues are the CSV cells treated as missing and sent as empty strings.
var naValues = map[string]struct{}{
	"NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"NULL": {}, "null": {}, "None": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {},
	"<NA>": {}, "1.#IND": {}, "1.#QNAN": {}, "-1.#IND": {}, "-1.#QNAN": {},
}

// Client reads and writes spreadsheet values.
type Client struct {
	svc *gsheets.Service
}

// Connect creates a client. A nil ts leaves authentication to opts.
func Connect(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create sheets service")
	}
	return &Client{svc: svc}, nil
}

// Service returns the underlying Sheets API service.
func (c *Client) Service() *gsheets.Service {
	return c.svc
}

func fullRange(sheetName string) string {
	return sheetName + "!A1:Z"
}

// Clear empties columns A to Z of the sheet.
func (c *Client) Clear(ctx context.Context, spreadsheetID, sheetName string) (err error) {
	ctx, done := observability.Start(ctx, connectorName, "clear")
	defer func() { done(err) }()

	_, err = c.svc.Spreadsheets.Values.
		Clear(spreadsheetID, fullRange(sheetName), &gsheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return errors.FromGoogleAPI(err)
	}
	return nil
}

// Upload replaces the content of the sheet with the CSV file at filename,
// header included. Missing values are written as empty cells.
func (c *Client) Upload(ctx context.Context, filename, spreadsheetID, sheetName string) (err error) {
	ctx, done := observability.Start(ctx, connectorName, "upload")
	defer func() { done(err) }()

	table, err := models.LoadCSV(filename)
	if err != nil {
		return err
	}
	records := table.Records()
	values := make([][]interface{}, len(records))
	for i, rec := range records {
		row := make([]interface{}, len(rec))
		for j, cell := range rec {
			if _, na := naValues[cell]; na && i > 0 {
				cell = ""
			}
			row[j] = cell
		}
		values[i] = row
	}

	if err := c.Clear(ctx, spreadsheetID, sheetName); err != nil {
		return err
	}

	resp, err := c.svc.Spreadsheets.Values.
		Update(spreadsheetID, sheetName+"!A1", &gsheets.ValueRange{
			MajorDimension: "ROWS",
			Values:         values,
		}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return errors.FromGoogleAPI(err)
	}

	metrics.RecordRows(connectorName, table.Len())
	logger.WithContext(ctx).Info("uploaded sheet",
		zap.String("spreadsheet_id", spreadsheetID),
		zap.String("sheet", sheetName),
		zap.Int64("updated_cells", resp.UpdatedCells))
	return nil
}

// Download writes columns A to Z of the sheet to filename as CSV. The first
// row is the header; shorter rows are padded with empty cells.
func (c *Client) Download(ctx context.Context, filename, spreadsheetID, sheetName string) (err error) {
	ctx, done := observability.Start(ctx, connectorName, "download")
	defer func() { done(err) }()

	resp, err := c.svc.Spreadsheets.Values.
		Get(spreadsheetID, fullRange(sheetName)).
		Context(ctx).
		Do()
	if err != nil {
		return errors.FromGoogleAPI(err)
	}
	if len(resp.Values) == 0 {
		return errors.Newf(errors.ErrorTypeData, "sheet %q of %s is empty", sheetName, spreadsheetID)
	}

	header := cells(resp.Values[0])
	records := make([][]string, 0, len(resp.Values))
	records = append(records, header)
	for i, raw := range resp.Values[1:] {
		rec := cells(raw)
		if len(rec) > len(header) {
			return errors.Newf(errors.ErrorTypeData, "row %d has %d cells but the header has %d", i+2, len(rec), len(header))
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		records = append(records, rec)
	}

	if err := writeCSV(filename, records); err != nil {
		return err
	}
	metrics.RecordRows(connectorName, len(records)-1)
	logger.WithContext(ctx).Info("downloaded sheet",
		zap.String("spreadsheet_id", spreadsheetID),
		zap.String("sheet", sheetName),
		zap.String("filename", filename))
	return nil
}

func cells(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if s, ok := v.(string); ok {
			out[i] = s
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

// writeCSV keeps duplicate header names, which models.Table cannot.
func writeCSV(path string, records [][]string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", dir)
		}
	}
	f, err := os.Create(path) //nolint:gosec // caller-controlled output path
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", path)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to write %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to close %s", path)
	}
	return nil
}
