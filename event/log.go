// Package event records the committed transition history of every job —
// one append-only timeline per job, backed by a store.
package event

import (
	"context"
	"time"

	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/transition"
)

// Log provides high-level append/read operations over an event Store.
type Log struct {
	store Store
}

// NewLog creates an event log backed by the given store.
func NewLog(store Store) *Log {
	return &Log{store: store}
}

// Record appends the event for a committed transition.
func (l *Log) Record(ctx context.Context, j *job.Job, from job.Status, req transition.Request) (*Event, error) {
	evt := &Event{
		ID:           id.NewEventID(),
		JobID:        j.ID,
		From:         from,
		To:           j.Status,
		Source:       req.Source,
		ActorID:      req.ActorID,
		TechnicianID: j.AssignedTechnicianID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.store.AppendEvent(ctx, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// History returns a job's timeline, oldest first.
func (l *Log) History(ctx context.Context, jobID id.JobID, limit int) ([]*Event, error) {
	return l.store.ListEventsForJob(ctx, jobID, limit)
}

// Store returns the underlying event store.
func (l *Log) Store() Store { return l.store }
