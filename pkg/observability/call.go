package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
	"github.com/route1io/connectors/pkg/metrics"
)

// DoneFunc finishes a call started with Start.
type DoneFunc func(err error)

// Start opens a span named connector.operation, tags ctx for logging and
// returns a func that records the outcome. The usual shape is:
//
//	ctx, done := observability.Start(ctx, "s3", "upload")
//	defer func() { done(err) }()
func Start(ctx context.Context, connector, operation string, attrs ...attribute.KeyValue) (context.Context, DoneFunc) {
	ctx = logger.ContextWithConnector(ctx, connector, operation)
	attrs = append(attrs,
		attribute.String("connector.name", connector),
		attribute.String("connector.operation", operation),
	)
	ctx, span := Tracer().Start(ctx, connector+"."+operation)
	span.SetAttributes(attrs...)

	timer := metrics.NewTimer()
	log := logger.WithContext(ctx)
	log.Debug("connector call started")

	return ctx, func(err error) {
		elapsed := timer.Stop()
		metrics.RecordCall(connector, operation, err, elapsed)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("error.type", string(errors.GetType(err))))
			log.Debug("connector call failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		} else {
			span.SetStatus(codes.Ok, "")
			log.Debug("connector call finished", zap.Duration("elapsed", elapsed))
		}
		span.End()
	}
}
