package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/fieldops/ext"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/transition"
)

// meterName is the instrumentation scope name for fieldops metrics.
const meterName = "github.com/xraph/fieldops"

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.TransitionApplied  = (*MetricsExtension)(nil)
	_ ext.TransitionRejected = (*MetricsExtension)(nil)
	_ ext.TechnicianClaimed  = (*MetricsExtension)(nil)
	_ ext.TechnicianReleased = (*MetricsExtension)(nil)
	_ ext.GeofenceTriggered  = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters. Register it
// as a FieldOps extension to track transition rates per status and
// source, rejection rates, claim/release balance, and geofence triggers.
type MetricsExtension struct {
	transitions metric.Int64Counter
	rejections  metric.Int64Counter
	claims      metric.Int64Counter
	releases    metric.Int64Counter
	triggers    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. Without a configured provider the instruments are
// noops and the extension is a pass-through.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific
// MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	// On error the OTel API returns noop instruments, so the extension
	// degrades gracefully.
	m.transitions, _ = meter.Int64Counter(
		"fieldops.transitions",
		metric.WithDescription("Committed job transitions"),
		metric.WithUnit("{transition}"),
	)
	m.rejections, _ = meter.Int64Counter(
		"fieldops.transition.rejections",
		metric.WithDescription("Rejected transition requests"),
		metric.WithUnit("{rejection}"),
	)
	m.claims, _ = meter.Int64Counter(
		"fieldops.technician.claims",
		metric.WithDescription("Technician claims"),
		metric.WithUnit("{claim}"),
	)
	m.releases, _ = meter.Int64Counter(
		"fieldops.technician.releases",
		metric.WithDescription("Technician releases"),
		metric.WithUnit("{release}"),
	)
	m.triggers, _ = meter.Int64Counter(
		"fieldops.geofence.triggers",
		metric.WithDescription("Geofence threshold crossings"),
		metric.WithUnit("{trigger}"),
	)
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnTransitionApplied implements ext.TransitionApplied.
func (m *MetricsExtension) OnTransitionApplied(ctx context.Context, j *job.Job, from job.Status, req transition.Request) error {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(j.Status)),
		attribute.String("source", string(req.Source)),
	))
	return nil
}

// OnTransitionRejected implements ext.TransitionRejected.
func (m *MetricsExtension) OnTransitionRejected(ctx context.Context, req transition.Request, _ error) error {
	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", string(req.Target)),
		attribute.String("source", string(req.Source)),
	))
	return nil
}

// OnTechnicianClaimed implements ext.TechnicianClaimed.
func (m *MetricsExtension) OnTechnicianClaimed(ctx context.Context, _ id.JobID, _ id.TechnicianID) error {
	m.claims.Add(ctx, 1)
	return nil
}

// OnTechnicianReleased implements ext.TechnicianReleased.
func (m *MetricsExtension) OnTechnicianReleased(ctx context.Context, _ id.JobID, _ id.TechnicianID) error {
	m.releases.Add(ctx, 1)
	return nil
}

// OnGeofenceTriggered implements ext.GeofenceTriggered.
func (m *MetricsExtension) OnGeofenceTriggered(ctx context.Context, req transition.Request, _ float64) error {
	m.triggers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", string(req.Target)),
	))
	return nil
}
