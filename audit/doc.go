// Package audit is a FieldOps extension that turns lifecycle hooks into
// an audit trail. It does two things on every committed transition:
// appends the event to the job's timeline (the event package), and
// optionally emits a structured audit event through the [Recorder]
// interface for an external backend.
//
// Rejections, claims, releases, and geofence triggers only reach the
// Recorder; the job timeline records committed transitions exclusively.
//
// # Usage
//
//	audit.New(eventLog,
//	    audit.WithRecorder(audit.RecorderFunc(func(ctx context.Context, evt *audit.Event) error {
//	        return trail.Write(ctx, evt.Action, evt.ResourceID, evt.Metadata)
//	    })),
//	)
//
// # Selective filtering
//
//	audit.New(eventLog, audit.WithActions(
//	    audit.ActionTransitionRejected,
//	    audit.ActionGeofenceTriggered,
//	))
package audit
