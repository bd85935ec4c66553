// Package fieldops is a coordination engine for dispatching field-service
// jobs to mobile technicians and tracking each job through its lifecycle.
//
// FieldOps is designed as a library, not a service. Import it, configure a
// store, and submit transition requests — manual actions from dispatcher and
// technician UIs, and automatic requests derived from geolocation proximity —
// through a single arbitration entry point.
//
// # Quick Start
//
//	c, err := fieldops.New(
//	    fieldops.WithStore(memStore),
//	    fieldops.WithLogger(logger),
//	)
//
// # Architecture
//
// The job lifecycle is a closed state graph (job.Graph). Every mutation of
// the four invariant-bearing fields — job status, assigned technician,
// technician availability, current job — flows through the availability
// coordinator's single atomic commit, applied by the transition machine and
// serialized per job by the arbiter. The geofence engine turns location
// samples into transition requests; it never mutates state directly.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package fieldops
