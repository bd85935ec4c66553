package contract

import (
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
)

// Contract represents a recurring service agreement that generates
// jobs on a schedule.
type Contract struct {
	fieldops.Entity

	ID        id.ContractID `json:"id"`
	Name      string        `json:"name"`
	CompanyID string        `json:"company_id,omitempty"`
	Schedule  string        `json:"schedule"`

	// Job template fields.
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    int       `json:"priority,omitempty"`
	Location    geo.Point `json:"location"`
	Address     string    `json:"address,omitempty"`

	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LockedBy    id.NodeID  `json:"locked_by,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Enabled     bool       `json:"enabled"`
}
