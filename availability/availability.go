// Package availability enforces the technician↔job exclusivity invariant:
// a technician is unavailable exactly while one job claims them, and the
// job-side and technician-side records change together, atomically.
//
// Every write to the four invariant-bearing fields — job Status, job
// AssignedTechnicianID, technician IsAvailable, technician CurrentJobID —
// flows through [Store.Commit]. The transition machine and the
// coordinator are its only callers; no other code path may touch those
// fields.
package availability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/technician"
)

// Commit is the unit of atomic persistence for invariant-bearing state.
// A backend applies the job write and the technician claim/release as one
// transactional write: both commit or neither does.
type Commit struct {
	// Job is the full job record to persist. Nil means a technician-only
	// commit (standalone release).
	Job *job.Job

	// Claim binds this technician to Job: IsAvailable=false,
	// CurrentJobID=Job.ID. The backend must re-check, inside the same
	// transaction, that the technician is not claimed by a different job,
	// and fail the whole commit with fieldops.ErrTechnicianConflict.
	Claim id.TechnicianID

	// Release frees this technician: IsAvailable=true, CurrentJobID=nil.
	// Releasing an already-free technician is a no-op, not an error.
	Release id.TechnicianID
}

// Store is the persistence contract for availability-invariant writes.
type Store interface {
	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error)

	// GetTechnician retrieves a technician by ID.
	GetTechnician(ctx context.Context, techID id.TechnicianID) (*technician.Technician, error)

	// Commit atomically applies the job write and technician claim/release.
	Commit(ctx context.Context, c Commit) error
}

// Coordinator owns claim and release of technicians. It is safe for
// concurrent use; the conditional check inside Store.Commit arbitrates
// racing claims from different jobs.
type Coordinator struct {
	store  Store
	logger *slog.Logger
}

// NewCoordinator creates an availability coordinator.
func NewCoordinator(store Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: store, logger: logger}
}

// Claim binds a technician to a job: the technician becomes unavailable
// with CurrentJobID set, and the job records AssignedTechnicianID, in one
// atomic write. Claiming the same pair again is a no-op. A technician
// already bound to a different job fails with fieldops.ErrTechnicianConflict.
func (c *Coordinator) Claim(ctx context.Context, jobID id.JobID, techID id.TechnicianID) error {
	t, err := c.store.GetTechnician(ctx, techID)
	if err != nil {
		return err
	}
	if !t.CurrentJobID.IsNil() {
		if t.CurrentJobID.String() == jobID.String() {
			return nil
		}
		return fmt.Errorf("%w: technician %s on job %s", fieldops.ErrTechnicianConflict, techID, t.CurrentJobID)
	}

	j, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	j.AssignedTechnicianID = techID

	return c.store.Commit(ctx, Commit{Job: j, Claim: techID})
}

// Release frees a technician. Idempotent: releasing an already-free
// technician succeeds without a write.
func (c *Coordinator) Release(ctx context.Context, techID id.TechnicianID) error {
	t, err := c.store.GetTechnician(ctx, techID)
	if err != nil {
		return err
	}
	if t.Free() {
		return nil
	}

	c.logger.Debug("releasing technician",
		slog.String("technician_id", techID.String()),
		slog.String("job_id", t.CurrentJobID.String()),
	)
	return c.store.Commit(ctx, Commit{Release: techID})
}

// CommitTransition persists a job's status change together with any claim
// or release the edge implies, as one atomic write. The transition machine
// is the only caller.
func (c *Coordinator) CommitTransition(ctx context.Context, commit Commit) error {
	return c.store.Commit(ctx, commit)
}
