package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/fieldops/transition"
)

// tracerName is the instrumentation scope name for fieldops tracing.
const tracerName = "github.com/xraph/fieldops"

// Tracing returns middleware that wraps transition application in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
//
// Span attributes include: fieldops.job.id, fieldops.transition.target,
// fieldops.transition.source, fieldops.actor.id. On error, the span
// status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, req transition.Request, next Handler) (*transition.Result, error) {
		ctx, span := tracer.Start(ctx, "fieldops.transition.apply",
			trace.WithAttributes(
				attribute.String("fieldops.job.id", req.JobID.String()),
				attribute.String("fieldops.transition.target", string(req.Target)),
				attribute.String("fieldops.transition.source", string(req.Source)),
				attribute.String("fieldops.actor.id", req.ActorID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		res, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return res, err
	}
}
