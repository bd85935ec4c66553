package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/event"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/transition"
)

// AppendEvent records one applied transition. The per-job List preserves
// append order, which is the audit trail's only ordering requirement.
func (s *Store) AppendEvent(ctx context.Context, evt *event.Event) error {
	eID := evt.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, eventKey(eID), eventToMap(evt))
	pipe.RPush(ctx, jobEventsKey(evt.JobID.String()), eID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/redis: append event: %w", err)
	}
	return nil
}

// ListEventsForJob returns a job's transition history, oldest first.
// A non-positive limit returns the full history.
func (s *Store) ListEventsForJob(ctx context.Context, jobID id.JobID, limit int) ([]*event.Event, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := s.client.LRange(ctx, jobEventsKey(jobID.String()), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: list events lrange: %w", err)
	}

	events := make([]*event.Event, 0, len(ids))
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, eventKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		evt, convErr := mapToEvent(vals)
		if convErr != nil {
			return nil, convErr
		}
		events = append(events, evt)
	}
	return events, nil
}

// GetEvent retrieves a single event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.Event, error) {
	vals, err := s.client.HGetAll(ctx, eventKey(eventID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: get event: %w", err)
	}
	if len(vals) == 0 {
		return nil, fieldops.ErrEventNotFound
	}
	return mapToEvent(vals)
}

// ── helpers ──

func eventToMap(evt *event.Event) map[string]interface{} {
	return map[string]interface{}{
		"id":            evt.ID.String(),
		"job_id":        evt.JobID.String(),
		"from_status":   string(evt.From),
		"to_status":     string(evt.To),
		"source":        string(evt.Source),
		"actor_id":      evt.ActorID,
		"technician_id": evt.TechnicianID.String(),
		"created_at":    evt.CreatedAt.Format(time.RFC3339Nano),
	}
}

func mapToEvent(m map[string]string) (*event.Event, error) {
	eID, err := id.ParseEventID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: parse event id: %w", err)
	}
	jID, err := id.ParseJobID(m["job_id"])
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: parse job id: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	evt := &event.Event{
		ID:        eID,
		JobID:     jID,
		From:      job.Status(m["from_status"]),
		To:        job.Status(m["to_status"]),
		Source:    transition.Source(m["source"]),
		ActorID:   m["actor_id"],
		CreatedAt: createdAt,
	}
	if tid := m["technician_id"]; tid != "" {
		evt.TechnicianID, _ = id.ParseTechnicianID(tid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	return evt, nil
}
