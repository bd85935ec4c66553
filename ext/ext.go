package ext

import (
	"context"

	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/transition"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Transition lifecycle hooks
// ──────────────────────────────────────────────────

// TransitionApplied is called after a transition commits. from is the
// status the job held before the edge was taken.
type TransitionApplied interface {
	OnTransitionApplied(ctx context.Context, j *job.Job, from job.Status, req transition.Request) error
}

// TransitionRejected is called when a request fails graph, guard, or
// conflict checks. Idempotent no-ops are not rejections.
type TransitionRejected interface {
	OnTransitionRejected(ctx context.Context, req transition.Request, reason error) error
}

// ──────────────────────────────────────────────────
// Availability hooks
// ──────────────────────────────────────────────────

// TechnicianClaimed is called after a commit binds a technician to a job.
type TechnicianClaimed interface {
	OnTechnicianClaimed(ctx context.Context, jobID id.JobID, techID id.TechnicianID) error
}

// TechnicianReleased is called after a commit frees a technician.
type TechnicianReleased interface {
	OnTechnicianReleased(ctx context.Context, jobID id.JobID, techID id.TechnicianID) error
}

// ──────────────────────────────────────────────────
// Geofence hooks
// ──────────────────────────────────────────────────

// GeofenceTriggered is called when a location sample crosses a threshold
// and the engine emits an automatic transition request.
type GeofenceTriggered interface {
	OnGeofenceTriggered(ctx context.Context, req transition.Request, distanceMeters float64) error
}

// ──────────────────────────────────────────────────
// Contract hooks
// ──────────────────────────────────────────────────

// ContractFired is called when the contract generator creates a job
// from a recurring service contract.
type ContractFired interface {
	OnContractFired(ctx context.Context, contractName string, jobID id.JobID) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
