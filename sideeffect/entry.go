package sideeffect

import (
	"time"

	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
)

// Entry represents a side-effect dispatch that exhausted its retry
// budget and was moved to the dead letter queue.
type Entry struct {
	ID         id.DeadLetterID `json:"id"`
	JobID      id.JobID        `json:"job_id"`
	Kind       job.EffectKind  `json:"kind"`
	Reason     string          `json:"reason,omitempty"`
	Error      string          `json:"error"`
	Attempts   int             `json:"attempts"`
	FailedAt   time.Time       `json:"failed_at"`
	ReplayedAt *time.Time      `json:"replayed_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Effect reconstructs the original effect intent.
func (e *Entry) Effect() job.Effect {
	return job.Effect{Kind: e.Kind, Reason: e.Reason}
}
