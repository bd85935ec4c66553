// Package observability provides OpenTelemetry-based metrics for
// FieldOps. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for transitions, rejections, technician claims
// and releases, and geofence triggers.
//
// For per-request latency and tracing, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
