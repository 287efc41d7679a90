// Package postgres bulk loads local CSV files into PostgreSQL tables with
// COPY.
package postgres

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
	"github.com/route1io/connectors/pkg/observability"
)

const connectorName = "postgres"

// Conn is the subset of *pgxpool.Pool the connector calls.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// LoadOptions tune a CSV load.
type LoadOptions struct {
	// Truncate empties the table before copying.
	Truncate bool
	// KeepEmpty copies empty cells as empty strings instead of NULL.
	KeepEmpty bool
}

// Client loads into one database.
type Client struct {
	conn Conn
	pool *pgxpool.Pool
}

// Connect opens a pool for dsn and checks that the server answers.
func Connect(ctx context.Context, dsn string) (*Client, error) {
	if dsn == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres dsn")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to reach postgres")
	}
	return &Client{conn: pool, pool: pool}, nil
}

// NewFromConn wraps an existing connection.
func NewFromConn(conn Conn) *Client {
	return &Client{conn: conn}
}

// Close closes the pool opened by Connect.
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// LoadCSV copies the CSV file at path into table, which may be schema
// qualified. The header row names the target columns. It returns the
// number of rows copied.
func (c *Client) LoadCSV(ctx context.Context, path, table string, opts LoadOptions) (rows int64, err error) {
	ctx, done := observability.Start(ctx, connectorName, "load_csv")
	defer func() { done(err) }()

	ident := ParseIdentifier(table)
	if len(ident) == 0 {
		return 0, errors.New(errors.ErrorTypeValidation, "table name is required")
	}

	f, err := os.Open(path) //nolint:gosec // caller-controlled path
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeFile, "failed to open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return 0, errors.Newf(errors.ErrorTypeData, "%s is empty", path)
	}
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeData, "failed to read header of %s", path)
	}

	if opts.Truncate {
		if _, err := c.conn.Exec(ctx, "TRUNCATE TABLE "+ident.Sanitize()); err != nil {
			return 0, classify(err, "failed to truncate "+table)
		}
	}

	src := &csvSource{r: r, width: len(header), keepEmpty: opts.KeepEmpty}
	rows, err = c.conn.CopyFrom(ctx, ident, header, src)
	if src.err != nil {
		return 0, errors.Wrapf(src.err, errors.ErrorTypeData, "failed to read %s", path)
	}
	if err != nil {
		return 0, classify(err, "failed to copy into "+table)
	}

	metrics.RecordRows(connectorName, int(rows))
	logger.WithContext(ctx).Info("loaded csv",
		zap.String("filename", path),
		zap.String("table", ident.Sanitize()),
		zap.Int64("rows", rows))
	return rows, nil
}

// ParseIdentifier splits a dotted, optionally quoted, table name.
func ParseIdentifier(name string) pgx.Identifier {
	var ident pgx.Identifier
	for _, part := range strings.Split(name, ".") {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part != "" {
			ident = append(ident, part)
		}
	}
	return ident
}

// csvSource streams records into CopyFrom.
type csvSource struct {
	r         *csv.Reader
	width     int
	keepEmpty bool
	values    []any
	err       error
}

func (s *csvSource) Next() bool {
	if s.err != nil {
		return false
	}
	rec, err := s.r.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		s.err = err
		return false
	}
	if len(rec) != s.width {
		s.err = errors.Newf(errors.ErrorTypeData, "record has %d fields, header has %d", len(rec), s.width)
		return false
	}
	s.values = make([]any, len(rec))
	for i, v := range rec {
		if v == "" && !s.keepEmpty {
			continue
		}
		s.values[i] = v
	}
	return true
}

func (s *csvSource) Values() ([]any, error) {
	return s.values, nil
}

func (s *csvSource) Err() error {
	return s.err
}

func classify(err error, msg string) error {
	var pgErr *pgconn.PgError
	if !stderrors.As(err, &pgErr) {
		return errors.Wrap(err, errors.ErrorTypeExternal, msg)
	}
	t := errors.ErrorTypeExternal
	switch {
	case pgErr.Code == "42P01" || pgErr.Code == "42703":
		t = errors.ErrorTypeNotFound
	case pgErr.Code == "42501":
		t = errors.ErrorTypePermission
	case strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23"):
		t = errors.ErrorTypeData
	case strings.HasPrefix(pgErr.Code, "08"):
		t = errors.ErrorTypeConnection
	}
	return errors.Wrap(err, t, msg).WithDetail("sqlstate", pgErr.Code)
}
