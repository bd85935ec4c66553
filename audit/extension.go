package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/fieldops/event"
	"github.com/xraph/fieldops/ext"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/transition"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*Extension)(nil)
	_ ext.TransitionApplied  = (*Extension)(nil)
	_ ext.TransitionRejected = (*Extension)(nil)
	_ ext.TechnicianClaimed  = (*Extension)(nil)
	_ ext.TechnicianReleased = (*Extension)(nil)
	_ ext.GeofenceTriggered  = (*Extension)(nil)
)

// Recorder is the interface audit backends must implement. It is
// defined locally so this package does not depend on any particular
// backend — callers inject an adapter at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *Event) error
}

// Event is a structured audit record.
type Event struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension appends committed transitions to the job timeline and
// bridges lifecycle events to an audit backend.
type Extension struct {
	log      *event.Log
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// Option configures an Extension.
type Option func(*Extension)

// WithRecorder sets the external audit backend. Without one the
// extension only maintains the job timeline.
func WithRecorder(r Recorder) Option {
	return func(e *Extension) { e.recorder = r }
}

// WithActions restricts the Recorder to the listed actions. The job
// timeline is unaffected. Unknown actions are silently ignored.
func WithActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			e.enabled[a] = true
		}
	}
}

// WithLogger sets a custom logger for the extension.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

// New creates the audit extension over the given event log.
func New(log *event.Log, opts ...Option) *Extension {
	e := &Extension{
		log:    log,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit" }

// OnTransitionApplied implements ext.TransitionApplied.
func (e *Extension) OnTransitionApplied(ctx context.Context, j *job.Job, from job.Status, req transition.Request) error {
	if e.log != nil {
		if _, err := e.log.Record(ctx, j, from, req); err != nil {
			return fmt.Errorf("audit: append timeline event: %w", err)
		}
	}
	return e.record(ctx, ActionTransitionApplied, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"from", string(from),
		"to", string(j.Status),
		"source", string(req.Source),
		"actor_id", req.ActorID,
	)
}

// OnTransitionRejected implements ext.TransitionRejected.
func (e *Extension) OnTransitionRejected(ctx context.Context, req transition.Request, reason error) error {
	return e.record(ctx, ActionTransitionRejected, SeverityWarning, OutcomeFailure,
		ResourceJob, req.JobID.String(), CategoryJob, reason,
		"target", string(req.Target),
		"source", string(req.Source),
		"actor_id", req.ActorID,
	)
}

// OnTechnicianClaimed implements ext.TechnicianClaimed.
func (e *Extension) OnTechnicianClaimed(ctx context.Context, jobID id.JobID, techID id.TechnicianID) error {
	return e.record(ctx, ActionTechnicianClaimed, SeverityInfo, OutcomeSuccess,
		ResourceTechnician, techID.String(), CategoryTechnician, nil,
		"job_id", jobID.String(),
	)
}

// OnTechnicianReleased implements ext.TechnicianReleased.
func (e *Extension) OnTechnicianReleased(ctx context.Context, jobID id.JobID, techID id.TechnicianID) error {
	return e.record(ctx, ActionTechnicianReleased, SeverityInfo, OutcomeSuccess,
		ResourceTechnician, techID.String(), CategoryTechnician, nil,
		"job_id", jobID.String(),
	)
}

// OnGeofenceTriggered implements ext.GeofenceTriggered.
func (e *Extension) OnGeofenceTriggered(ctx context.Context, req transition.Request, distanceMeters float64) error {
	return e.record(ctx, ActionGeofenceTriggered, SeverityInfo, OutcomeSuccess,
		ResourceJob, req.JobID.String(), CategoryGeofence, nil,
		"target", string(req.Target),
		"distance_m", distanceMeters,
	)
}

// record builds and emits one audit event through the Recorder.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.recorder == nil {
		return nil
	}
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &Event{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}
	return e.recorder.Record(ctx, evt)
}
