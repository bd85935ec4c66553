package event

import (
	"time"

	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/transition"
)

// Event is one committed transition in a job's history. The sequence of
// events for a job is the customer-facing tracking timeline and the
// dispatcher-facing audit trail.
type Event struct {
	ID           id.EventID        `json:"id"`
	JobID        id.JobID          `json:"job_id"`
	From         job.Status        `json:"from"`
	To           job.Status        `json:"to"`
	Source       transition.Source `json:"source"`
	ActorID      string            `json:"actor_id,omitempty"`
	TechnicianID id.TechnicianID   `json:"technician_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
