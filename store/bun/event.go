package bunstore

import (
	"context"
	"fmt"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/event"
	"github.com/xraph/fieldops/id"
)

// AppendEvent persists one timeline event. Events are immutable once
// written.
func (s *Store) AppendEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("fieldops/bun: append event: %w", err)
	}
	return nil
}

// ListEventsForJob returns a job's timeline, oldest first.
func (s *Store) ListEventsForJob(ctx context.Context, jobID id.JobID, limit int) ([]*event.Event, error) {
	var models []eventModel
	q := s.db.NewSelect().Model(&models).
		Where("job_id = ?", jobID.String()).
		Order("created_at ASC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fieldops/bun: list events: %w", err)
	}

	events := make([]*event.Event, 0, len(models))
	for i := range models {
		evt, convErr := fromEventModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("fieldops/bun: list events convert: %w", convErr)
		}
		events = append(events, evt)
	}
	return events, nil
}

// GetEvent retrieves a single event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.Event, error) {
	m := new(eventModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", eventID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fieldops.ErrEventNotFound
		}
		return nil, fmt.Errorf("fieldops/bun: get event: %w", err)
	}
	return fromEventModel(m)
}
