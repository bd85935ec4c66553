package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/event"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/transition"
)

const eventColumns = `
	id, job_id, from_status, to_status, source, actor_id, technician_id, created_at`

// AppendEvent records one applied transition in the audit trail.
func (s *Store) AppendEvent(ctx context.Context, evt *event.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fieldops_events (
			id, job_id, from_status, to_status, source, actor_id, technician_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		evt.ID.String(), evt.JobID.String(), string(evt.From), string(evt.To),
		string(evt.Source), evt.ActorID, idString(evt.TechnicianID), evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: append event: %w", err)
	}
	return nil
}

// ListEventsForJob returns a job's transition history, oldest first.
// A non-positive limit returns the full history.
func (s *Store) ListEventsForJob(ctx context.Context, jobID id.JobID, limit int) ([]*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM fieldops_events WHERE job_id = $1 ORDER BY created_at ASC`
	args := []interface{}{jobID.String()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fieldops/postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		evt, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("fieldops/postgres: scan event row: %w", scanErr)
		}
		events = append(events, evt)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("fieldops/postgres: iterate event rows: %w", err)
	}
	return events, nil
}

// GetEvent retrieves a single event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM fieldops_events WHERE id = $1`,
		eventID.String(),
	)

	evt, err := scanEvent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fieldops.ErrEventNotFound
		}
		return nil, fmt.Errorf("fieldops/postgres: get event: %w", err)
	}
	return evt, nil
}

// scanEvent scans a single event row.
func scanEvent(row pgx.Row) (*event.Event, error) {
	var (
		evt       event.Event
		idStr     string
		jobStr    string
		fromStr   string
		toStr     string
		sourceStr string
		techStr   string
	)
	err := row.Scan(
		&idStr, &jobStr, &fromStr, &toStr, &sourceStr,
		&evt.ActorID, &techStr, &evt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseEventID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("fieldops/postgres: parse event id %q: %w", idStr, parseErr)
	}
	evt.ID = parsedID

	parsedJob, jobErr := id.ParseJobID(jobStr)
	if jobErr != nil {
		return nil, fmt.Errorf("fieldops/postgres: parse job id %q: %w", jobStr, jobErr)
	}
	evt.JobID = parsedJob

	evt.From = job.Status(fromStr)
	evt.To = job.Status(toStr)
	evt.Source = transition.Source(sourceStr)

	if techStr != "" {
		if parsedTech, techErr := id.ParseTechnicianID(techStr); techErr == nil {
			evt.TechnicianID = parsedTech
		}
	}

	return &evt, nil
}
