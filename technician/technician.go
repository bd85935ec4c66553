// Package technician defines the technician entity and store interface.
//
// A technician's availability and current job form one half of the
// exclusivity invariant: IsAvailable is true exactly when CurrentJobID is
// nil, and both flip together with the paired job write in a single
// atomic commit (see the availability package).
package technician

import (
	"context"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
)

// Technician represents a mobile field worker.
type Technician struct {
	fieldops.Entity

	ID        id.TechnicianID `json:"id"`
	CompanyID string          `json:"company_id,omitempty"`
	Name      string          `json:"name"`
	Skills    []string        `json:"skills,omitempty"`

	// IsAvailable is true exactly when CurrentJobID is nil.
	IsAvailable  bool     `json:"is_available"`
	CurrentJobID id.JobID `json:"current_job_id,omitempty"`

	// Location is the last reported position, updated by the location
	// sample stream — the highest-frequency write in the system.
	Location  geo.Point  `json:"location"`
	LocatedAt *time.Time `json:"located_at,omitempty"`
}

// Free reports whether the technician satisfies the free half of the
// availability invariant.
func (t *Technician) Free() bool {
	return t.IsAvailable && t.CurrentJobID.IsNil()
}

// Busy reports whether the technician satisfies the claimed half of the
// availability invariant.
func (t *Technician) Busy() bool {
	return !t.IsAvailable && !t.CurrentJobID.IsNil()
}

// ListOpts controls pagination and filtering for technician list queries.
type ListOpts struct {
	// Limit is the maximum number of technicians to return. Zero means
	// no limit.
	Limit int
	// Offset is the number of technicians to skip.
	Offset int
	// CompanyID filters by company. Empty means all companies.
	CompanyID string
}

// Store defines the persistence contract for technicians.
//
// IsAvailable and CurrentJobID are written only through the availability
// store's atomic commit; UpdateTechnician callers must leave both fields
// as loaded.
type Store interface {
	// CreateTechnician persists a new technician, available and unclaimed.
	CreateTechnician(ctx context.Context, t *Technician) error

	// GetTechnician retrieves a technician by ID.
	GetTechnician(ctx context.Context, techID id.TechnicianID) (*Technician, error)

	// UpdateTechnician persists changes to descriptive fields (name, skills).
	UpdateTechnician(ctx context.Context, t *Technician) error

	// DeleteTechnician removes a technician by ID.
	DeleteTechnician(ctx context.Context, techID id.TechnicianID) error

	// UpdateTechnicianLocation records the latest position sample. It is a
	// single-field write on the hot path and never touches availability.
	UpdateTechnicianLocation(ctx context.Context, techID id.TechnicianID, loc geo.Point, at time.Time) error

	// ListAvailableTechnicians returns free technicians, ordered by name.
	ListAvailableTechnicians(ctx context.Context, opts ListOpts) ([]*Technician, error)
}
