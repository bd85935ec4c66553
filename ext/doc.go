// Package ext defines the extension system for FieldOps.
// Extensions are notified of lifecycle events (transition applied or
// rejected, technician claimed or released, geofence triggered) and can
// react to them — auditing, metrics, streaming, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about. Hook errors are logged and never
// propagated: an extension can observe the pipeline but not stall it.
package ext
