package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/sideeffect"
)

const deadLetterColumns = `
	id, job_id, kind, reason, error, attempts, failed_at, replayed_at, created_at`

// PushDeadLetter records a side effect that exhausted its dispatch
// attempts.
func (s *Store) PushDeadLetter(ctx context.Context, entry *sideeffect.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fieldops_dead_letters (
			id, job_id, kind, reason, error, attempts, failed_at, replayed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID.String(), entry.JobID.String(), string(entry.Kind),
		entry.Reason, entry.Error, entry.Attempts,
		entry.FailedAt, entry.ReplayedAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: push dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns dead letter entries, oldest failure first.
func (s *Store) ListDeadLetters(ctx context.Context, opts sideeffect.ListOpts) ([]*sideeffect.Entry, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM fieldops_dead_letters WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, string(opts.Kind))
		argIdx++
	}

	query += " ORDER BY failed_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fieldops/postgres: list dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*sideeffect.Entry
	for rows.Next() {
		entry, scanErr := scanDeadLetter(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("fieldops/postgres: scan dead letter row: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("fieldops/postgres: iterate dead letter rows: %w", err)
	}
	return entries, nil
}

// GetDeadLetter retrieves a single entry by ID.
func (s *Store) GetDeadLetter(ctx context.Context, entryID id.DeadLetterID) (*sideeffect.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deadLetterColumns+` FROM fieldops_dead_letters WHERE id = $1`,
		entryID.String(),
	)

	entry, err := scanDeadLetter(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fieldops.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("fieldops/postgres: get dead letter: %w", err)
	}
	return entry, nil
}

// ReplayDeadLetter marks an entry as replayed.
func (s *Store) ReplayDeadLetter(ctx context.Context, entryID id.DeadLetterID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fieldops_dead_letters SET replayed_at = NOW() WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("fieldops/postgres: replay dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fieldops.ErrDeadLetterNotFound
	}
	return nil
}

// PurgeDeadLetters removes entries that failed before the given time and
// returns the number removed.
func (s *Store) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM fieldops_dead_letters WHERE failed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("fieldops/postgres: purge dead letters: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDeadLetters returns the total number of entries.
func (s *Store) CountDeadLetters(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM fieldops_dead_letters`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("fieldops/postgres: count dead letters: %w", err)
	}
	return count, nil
}

// scanDeadLetter scans a single dead letter row.
func scanDeadLetter(row pgx.Row) (*sideeffect.Entry, error) {
	var (
		entry   sideeffect.Entry
		idStr   string
		jobStr  string
		kindStr string
	)
	err := row.Scan(
		&idStr, &jobStr, &kindStr, &entry.Reason, &entry.Error,
		&entry.Attempts, &entry.FailedAt, &entry.ReplayedAt, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseDeadLetterID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("fieldops/postgres: parse dead letter id %q: %w", idStr, parseErr)
	}
	entry.ID = parsedID

	parsedJob, jobErr := id.ParseJobID(jobStr)
	if jobErr != nil {
		return nil, fmt.Errorf("fieldops/postgres: parse job id %q: %w", jobStr, jobErr)
	}
	entry.JobID = parsedJob
	entry.Kind = job.EffectKind(kindStr)

	return &entry, nil
}
