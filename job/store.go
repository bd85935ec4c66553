package job

import (
	"context"
	"time"

	"github.com/xraph/fieldops/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// CompanyID filters by company. Empty means all companies.
	CompanyID string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// CompanyID filters by company. Empty means all companies.
	CompanyID string
	// Status filters by job status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for jobs.
//
// Status and AssignedTechnicianID are written only through the
// availability store's atomic commit; UpdateJob callers must leave both
// fields as loaded.
type Store interface {
	// CreateJob persists a new job.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job's descriptive fields
	// (title, location, schedule, tracking token).
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListJobsByStatus returns jobs matching the given status, ordered by
	// ScheduledAt ascending.
	ListJobsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Job, error)

	// ListJobsForTechnician returns jobs currently bound to a technician.
	ListJobsForTechnician(ctx context.Context, techID id.TechnicianID) ([]*Job, error)

	// StartBreak appends an open break to an in_progress job as a single
	// per-document update.
	StartBreak(ctx context.Context, jobID id.JobID, at time.Time) error

	// EndBreak closes the job's open break. A job without an open break
	// is left unchanged.
	EndBreak(ctx context.Context, jobID id.JobID, at time.Time) error

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
