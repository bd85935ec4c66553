package event

import (
	"context"

	"github.com/xraph/fieldops/id"
)

// Store defines the persistence contract for transition events.
type Store interface {
	// AppendEvent persists a new event at the end of its job's timeline.
	AppendEvent(ctx context.Context, evt *Event) error

	// ListEventsForJob returns a job's events ordered by CreatedAt
	// ascending. limit of zero means no limit.
	ListEventsForJob(ctx context.Context, jobID id.JobID, limit int) ([]*Event, error)

	// GetEvent retrieves a single event by ID.
	GetEvent(ctx context.Context, eventID id.EventID) (*Event, error)
}
