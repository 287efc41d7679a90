// Package logger holds the process-wide zap logger used by every connector
// and by the route1 CLI.
package logger

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/route1io/connectors/pkg/errors"
)

var global atomic.Pointer[zap.Logger]

// Config selects the level, encoding and sinks of a logger.
type Config struct {
	Level string
	// Encoding is "json" or "console".
	Encoding    string
	Development bool
	OutputPaths []string
}

// DefaultConfig is what Get uses when Init was never called.
func DefaultConfig() Config {
	return Config{Level: "info", Encoding: "json"}
}

// Init installs a logger built from cfg, replacing any previous one.
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// New builds a logger from cfg without installing it.
func New(cfg Config) (*zap.Logger, error) {
	def := DefaultConfig()
	if cfg.Level == "" {
		cfg.Level = def.Level
	}
	if cfg.Encoding == "" {
		cfg.Encoding = def.Encoding
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stderr"}
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "invalid log level %q", cfg.Level)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.Encoding == "console" && cfg.Development {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         cfg.Encoding,
		EncoderConfig:    enc,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to build logger")
	}
	return l, nil
}

// Set installs l as the global logger. A nil l makes Get rebuild the
// default one.
func Set(l *zap.Logger) {
	global.Store(l)
}

// Get returns the global logger, creating a default one on first use.
func Get() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	l, err := New(DefaultConfig())
	if err != nil {
		l = zap.NewNop()
	}
	if !global.CompareAndSwap(nil, l) {
		return global.Load()
	}
	return l
}

type ctxKey struct{}

// callInfo is what connectors and the automation runner attach to a
// context for log correlation.
type callInfo struct {
	runID     string
	connector string
	operation string
}

func infoFrom(ctx context.Context) callInfo {
	if ctx == nil {
		return callInfo{}
	}
	info, _ := ctx.Value(ctxKey{}).(callInfo)
	return info
}

// ContextWithRunID tags ctx with the id of the current extract/load run.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	info := infoFrom(ctx)
	info.runID = runID
	return context.WithValue(ctx, ctxKey{}, info)
}

// ContextWithConnector tags ctx with the connector call in flight.
func ContextWithConnector(ctx context.Context, connector, operation string) context.Context {
	info := infoFrom(ctx)
	info.connector, info.operation = connector, operation
	return context.WithValue(ctx, ctxKey{}, info)
}

// WithContext returns the global logger carrying whatever run and
// connector fields ctx holds.
func WithContext(ctx context.Context) *zap.Logger {
	info := infoFrom(ctx)
	fields := make([]zap.Field, 0, 3)
	if info.runID != "" {
		fields = append(fields, zap.String("run_id", info.runID))
	}
	if info.connector != "" {
		fields = append(fields, zap.String("connector", info.connector))
	}
	if info.operation != "" {
		fields = append(fields, zap.String("operation", info.operation))
	}
	return Get().With(fields...)
}

// Debug, Info and Warn log through the global logger.
func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { Get().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { Get().Warn(msg, fields...) }

// With returns a child of the global logger.
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Sync flushes the global logger, if one was built.
func Sync() error {
	if l := global.Load(); l != nil {
		return l.Sync()
	}
	return nil
}
