package job

import (
	"fmt"

	"github.com/xraph/fieldops"
)

// EffectKind names a side-effect intent produced by taking an edge.
// The graph computes intents; the arbiter dispatches them to the
// notification and metrics collaborators off the critical path.
type EffectKind string

const (
	// EffectNotifyCustomer asks the notification collaborator to message
	// the job's customer.
	EffectNotifyCustomer EffectKind = "notify_customer"
	// EffectComputeTravelMetrics asks the metrics collaborator to compute
	// travel metrics for the completed job.
	EffectComputeTravelMetrics EffectKind = "compute_travel_metrics"
)

// Effect is a side-effect intent with its parameter.
type Effect struct {
	Kind EffectKind `json:"kind"`
	// Reason is the customer-facing reason for a notification effect.
	Reason string `json:"reason,omitempty"`
}

// Edge describes a single allowed transition: what it requires of the
// technician binding and which side-effect intents it produces.
type Edge struct {
	From Status
	To   Status

	// Claims means entering To binds a technician to the job; the
	// transition request must carry a technician ID.
	Claims bool

	// Releases means taking this edge frees the job's technician in the
	// same atomic commit as the status write.
	Releases bool

	// Effects are the fire-and-forget intents for this edge.
	Effects []Effect
}

// graph is the complete transition table. Any pair not present here is
// rejected with fieldops.ErrInvalidTransition.
var graph = map[Status]map[Status]Edge{
	StatusDraft: {
		StatusPending: {From: StatusDraft, To: StatusPending},
	},
	StatusPending: {
		StatusAssigned:  {From: StatusPending, To: StatusAssigned, Claims: true},
		StatusCancelled: {From: StatusPending, To: StatusCancelled, Releases: true},
	},
	StatusAssigned: {
		StatusEnRoute: {
			From: StatusAssigned, To: StatusEnRoute,
			Effects: []Effect{{Kind: EffectNotifyCustomer, Reason: "technician departing"}},
		},
		StatusCancelled: {From: StatusAssigned, To: StatusCancelled, Releases: true},
	},
	StatusEnRoute: {
		StatusInProgress: {From: StatusEnRoute, To: StatusInProgress},
		StatusCancelled:  {From: StatusEnRoute, To: StatusCancelled, Releases: true},
	},
	StatusInProgress: {
		StatusCompleted: {
			From: StatusInProgress, To: StatusCompleted, Releases: true,
			Effects: []Effect{{Kind: EffectComputeTravelMetrics}},
		},
		StatusCancelled: {From: StatusInProgress, To: StatusCancelled, Releases: true},
	},
	StatusCompleted: {
		StatusPendingInvoice: {From: StatusCompleted, To: StatusPendingInvoice},
	},
	StatusPendingInvoice: {
		// Finishing releases only a technician still bound to this job;
		// a no-op when the Completed edge already freed them or another
		// job has since claimed them.
		StatusFinished: {From: StatusPendingInvoice, To: StatusFinished, Releases: true},
	},
}

// EdgeFor returns the edge from one status to another, or
// fieldops.ErrInvalidTransition if the graph has no such edge.
func EdgeFor(from, to Status) (Edge, error) {
	targets, ok := graph[from]
	if !ok {
		return Edge{}, fmt.Errorf("%w: %s → %s", fieldops.ErrInvalidTransition, from, to)
	}
	e, ok := targets[to]
	if !ok {
		return Edge{}, fmt.Errorf("%w: %s → %s", fieldops.ErrInvalidTransition, from, to)
	}
	return e, nil
}

// CanTransition reports whether the graph allows from → to.
func CanTransition(from, to Status) bool {
	_, err := EdgeFor(from, to)
	return err == nil
}

// Targets returns the statuses reachable in one edge from the given status.
// Terminal statuses return nil.
func Targets(from Status) []Status {
	targets := graph[from]
	if len(targets) == 0 {
		return nil
	}
	out := make([]Status, 0, len(targets))
	for to := range targets {
		out = append(out, to)
	}
	return out
}

// CheckGuard validates the edge's guards against the job's current record.
// A job may not leave in_progress while a break is open.
func CheckGuard(j *Job, e Edge) error {
	if e.From == StatusInProgress && j.HasOpenBreak() {
		return fmt.Errorf("%w: job %s", fieldops.ErrBreakOpen, j.ID)
	}
	return nil
}
