package job

import (
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
)

// Status represents the lifecycle status of a job.
type Status string

const (
	// StatusDraft means the job has been sketched but not yet released
	// for scheduling.
	StatusDraft Status = "draft"
	// StatusPending means the job is scheduled and waiting for a technician.
	StatusPending Status = "pending"
	// StatusAssigned means a technician has been claimed for the job.
	StatusAssigned Status = "assigned"
	// StatusEnRoute means the technician is travelling to the job site.
	StatusEnRoute Status = "en_route"
	// StatusInProgress means the technician is working on site.
	StatusInProgress Status = "in_progress"
	// StatusCompleted means the field work is done.
	StatusCompleted Status = "completed"
	// StatusPendingInvoice means the job awaits invoicing.
	StatusPendingInvoice Status = "pending_invoice"
	// StatusFinished means the job is fully closed out.
	StatusFinished Status = "finished"
	// StatusCancelled means the job was explicitly cancelled.
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusAssigned, StatusEnRoute,
		StatusInProgress, StatusCompleted, StatusPendingInvoice,
		StatusFinished, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing edges. A terminal job never
// transitions again, manually or automatically.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// Active reports whether a job in this status binds a technician.
// The availability invariant holds exactly over this set.
func (s Status) Active() bool {
	return s == StatusAssigned || s == StatusEnRoute || s == StatusInProgress
}

// Watchable reports whether the geofence engine watches a job in this
// status. Only assigned and en_route jobs derive automatic transitions
// from location samples.
func (s Status) Watchable() bool {
	return s == StatusAssigned || s == StatusEnRoute
}

// Break is a pause in on-site work. An open break has no End.
type Break struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Open reports whether the break has not been ended.
func (b Break) Open() bool { return b.End == nil }

// Job represents a field-service visit worked by a single technician.
type Job struct {
	fieldops.Entity

	ID          id.JobID `json:"id"`
	CompanyID   string   `json:"company_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Priority    int      `json:"priority"`

	// AssignedTechnicianID is non-nil exactly while Status.Active().
	AssignedTechnicianID id.TechnicianID `json:"assigned_technician_id,omitempty"`

	Location    geo.Point `json:"location"`
	Address     string    `json:"address,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`

	// Per-transition timestamps, stamped once when the status is entered.
	AssignedAt   *time.Time `json:"assigned_at,omitempty"`
	EnRouteAt    *time.Time `json:"en_route_at,omitempty"`
	InProgressAt *time.Time `json:"in_progress_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	Breaks []Break `json:"breaks,omitempty"`

	// Customer-facing tracking token, regenerated on assignment.
	TrackingToken     string     `json:"tracking_token,omitempty"`
	TrackingExpiresAt *time.Time `json:"tracking_expires_at,omitempty"`

	// ContractID links jobs generated by a recurring contract.
	ContractID id.ContractID `json:"contract_id,omitempty"`
}

// HasOpenBreak reports whether any break is missing its End timestamp.
func (j *Job) HasOpenBreak() bool {
	for _, b := range j.Breaks {
		if b.Open() {
			return true
		}
	}
	return false
}

// StampStatus records the timestamp for entering the given status.
// Stamps are written once; re-entering a status (which the graph forbids)
// would not overwrite an existing stamp.
func (j *Job) StampStatus(s Status, at time.Time) {
	set := func(field **time.Time) {
		if *field == nil {
			t := at
			*field = &t
		}
	}
	switch s {
	case StatusAssigned:
		set(&j.AssignedAt)
	case StatusEnRoute:
		set(&j.EnRouteAt)
	case StatusInProgress:
		set(&j.InProgressAt)
	case StatusCompleted:
		set(&j.CompletedAt)
	case StatusFinished:
		set(&j.FinishedAt)
	case StatusCancelled:
		set(&j.CancelledAt)
	}
}

// StatusEnteredAt returns the recorded entry timestamp for a status, or
// nil if the job never entered it.
func (j *Job) StatusEnteredAt(s Status) *time.Time {
	switch s {
	case StatusAssigned:
		return j.AssignedAt
	case StatusEnRoute:
		return j.EnRouteAt
	case StatusInProgress:
		return j.InProgressAt
	case StatusCompleted:
		return j.CompletedAt
	case StatusFinished:
		return j.FinishedAt
	case StatusCancelled:
		return j.CancelledAt
	}
	return nil
}
