// Package transition defines the transition request — the unit of work the
// arbiter serializes — and the state machine that applies one request
// against a job.
package transition

import (
	"fmt"
	"time"

	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
)

// Source identifies who produced a transition request.
type Source string

const (
	// SourceManual is a dispatcher or technician UI action.
	SourceManual Source = "manual"
	// SourceGeofence is an automatic proximity trigger.
	SourceGeofence Source = "geofence"
	// SourceSystem is an internal producer (contract generator, batch import).
	SourceSystem Source = "system"
)

// Request asks for a single job status transition. Requests are ephemeral;
// they are never persisted.
type Request struct {
	JobID  id.JobID   `json:"job_id"`
	Target job.Status `json:"target"`
	Source Source     `json:"source"`

	// ActorID identifies the dispatcher or technician behind a manual
	// request; empty for automatic sources.
	ActorID string `json:"actor_id,omitempty"`

	// TechnicianID names the technician to claim. Required when Target
	// is assigned, ignored otherwise.
	TechnicianID id.TechnicianID `json:"technician_id,omitempty"`

	// Timestamp is when the request was produced. Zero means now.
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the request is well formed before it touches any state.
func (r Request) Validate() error {
	if r.JobID.IsNil() {
		return fmt.Errorf("transition: request missing job id")
	}
	if !r.Target.Valid() {
		return fmt.Errorf("transition: unknown target status %q", r.Target)
	}
	switch r.Source {
	case SourceManual, SourceGeofence, SourceSystem:
	default:
		return fmt.Errorf("transition: unknown source %q", r.Source)
	}
	return nil
}

// Result reports the outcome of applying a request.
type Result struct {
	// Job is the committed record after the transition (or the unchanged
	// record for a no-op).
	Job *job.Job

	// From is the status the job held before the edge was taken. For a
	// no-op it equals the job's current status.
	From job.Status

	// NoOp is true when the request's target equaled the job's current
	// status. No state changed and no effects were produced.
	NoOp bool

	// Effects are the side-effect intents for the taken edge, to be
	// dispatched off the critical path.
	Effects []job.Effect
}
