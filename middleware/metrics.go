package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/fieldops/transition"
)

// meterName is the instrumentation scope name for fieldops metrics.
const meterName = "github.com/xraph/fieldops"

// Metrics returns middleware that records per-transition metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - fieldops.transition.duration (Float64Histogram): application time in
//     seconds, with attributes: target, source, outcome
//   - fieldops.transition.applications (Int64Counter): total applications,
//     with attributes: target, source, outcome ("ok", "noop", or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"fieldops.transition.duration",
		metric.WithDescription("Duration of transition application in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	applications, aErr := meter.Int64Counter(
		"fieldops.transition.applications",
		metric.WithDescription("Total number of transition applications"),
		metric.WithUnit("{application}"),
	)
	_ = aErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, req transition.Request, next Handler) (*transition.Result, error) {
		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case res.NoOp:
			outcome = "noop"
		}

		attrs := metric.WithAttributes(
			attribute.String("target", string(req.Target)),
			attribute.String("source", string(req.Source)),
			attribute.String("outcome", outcome),
		)

		duration.Record(ctx, elapsed, attrs)
		applications.Add(ctx, 1, attrs)

		return res, err
	}
}
