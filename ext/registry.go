package ext

import (
	"context"
	"log/slog"

	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/transition"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type transitionAppliedEntry struct {
	name string
	hook TransitionApplied
}

type transitionRejectedEntry struct {
	name string
	hook TransitionRejected
}

type technicianClaimedEntry struct {
	name string
	hook TechnicianClaimed
}

type technicianReleasedEntry struct {
	name string
	hook TechnicianReleased
}

type geofenceTriggeredEntry struct {
	name string
	hook GeofenceTriggered
}

type contractFiredEntry struct {
	name string
	hook ContractFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	transitionApplied  []transitionAppliedEntry
	transitionRejected []transitionRejectedEntry
	technicianClaimed  []technicianClaimedEntry
	technicianReleased []technicianReleasedEntry
	geofenceTriggered  []geofenceTriggeredEntry
	contractFired      []contractFiredEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(TransitionApplied); ok {
		r.transitionApplied = append(r.transitionApplied, transitionAppliedEntry{name, h})
	}
	if h, ok := e.(TransitionRejected); ok {
		r.transitionRejected = append(r.transitionRejected, transitionRejectedEntry{name, h})
	}
	if h, ok := e.(TechnicianClaimed); ok {
		r.technicianClaimed = append(r.technicianClaimed, technicianClaimedEntry{name, h})
	}
	if h, ok := e.(TechnicianReleased); ok {
		r.technicianReleased = append(r.technicianReleased, technicianReleasedEntry{name, h})
	}
	if h, ok := e.(GeofenceTriggered); ok {
		r.geofenceTriggered = append(r.geofenceTriggered, geofenceTriggeredEntry{name, h})
	}
	if h, ok := e.(ContractFired); ok {
		r.contractFired = append(r.contractFired, contractFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Transition event emitters
// ──────────────────────────────────────────────────

// EmitTransitionApplied notifies all extensions that implement TransitionApplied.
func (r *Registry) EmitTransitionApplied(ctx context.Context, j *job.Job, from job.Status, req transition.Request) {
	for _, e := range r.transitionApplied {
		if err := e.hook.OnTransitionApplied(ctx, j, from, req); err != nil {
			r.logHookError("OnTransitionApplied", e.name, err)
		}
	}
}

// EmitTransitionRejected notifies all extensions that implement TransitionRejected.
func (r *Registry) EmitTransitionRejected(ctx context.Context, req transition.Request, reason error) {
	for _, e := range r.transitionRejected {
		if err := e.hook.OnTransitionRejected(ctx, req, reason); err != nil {
			r.logHookError("OnTransitionRejected", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Availability event emitters
// ──────────────────────────────────────────────────

// EmitTechnicianClaimed notifies all extensions that implement TechnicianClaimed.
func (r *Registry) EmitTechnicianClaimed(ctx context.Context, jobID id.JobID, techID id.TechnicianID) {
	for _, e := range r.technicianClaimed {
		if err := e.hook.OnTechnicianClaimed(ctx, jobID, techID); err != nil {
			r.logHookError("OnTechnicianClaimed", e.name, err)
		}
	}
}

// EmitTechnicianReleased notifies all extensions that implement TechnicianReleased.
func (r *Registry) EmitTechnicianReleased(ctx context.Context, jobID id.JobID, techID id.TechnicianID) {
	for _, e := range r.technicianReleased {
		if err := e.hook.OnTechnicianReleased(ctx, jobID, techID); err != nil {
			r.logHookError("OnTechnicianReleased", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Geofence event emitters
// ──────────────────────────────────────────────────

// EmitGeofenceTriggered notifies all extensions that implement GeofenceTriggered.
func (r *Registry) EmitGeofenceTriggered(ctx context.Context, req transition.Request, distanceMeters float64) {
	for _, e := range r.geofenceTriggered {
		if err := e.hook.OnGeofenceTriggered(ctx, req, distanceMeters); err != nil {
			r.logHookError("OnGeofenceTriggered", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Contract event emitters
// ──────────────────────────────────────────────────

// EmitContractFired notifies all extensions that implement ContractFired.
func (r *Registry) EmitContractFired(ctx context.Context, contractName string, jobID id.JobID) {
	for _, e := range r.contractFired {
		if err := e.hook.OnContractFired(ctx, contractName, jobID); err != nil {
			r.logHookError("OnContractFired", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
