package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/sideeffect"
)

// PushDeadLetter persists a failed side-effect dispatch.
func (s *Store) PushDeadLetter(ctx context.Context, entry *sideeffect.Entry) error {
	m := toDeadLetterModel(entry)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("fieldops/bun: push dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns entries ordered by failure time, oldest first.
func (s *Store) ListDeadLetters(ctx context.Context, opts sideeffect.ListOpts) ([]*sideeffect.Entry, error) {
	var models []deadLetterModel
	q := s.db.NewSelect().Model(&models)

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}

	q = q.Order("failed_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fieldops/bun: list dead letters: %w", err)
	}

	entries := make([]*sideeffect.Entry, 0, len(models))
	for i := range models {
		entry, convErr := fromDeadLetterModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("fieldops/bun: list dead letters convert: %w", convErr)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetDeadLetter retrieves an entry by ID.
func (s *Store) GetDeadLetter(ctx context.Context, entryID id.DeadLetterID) (*sideeffect.Entry, error) {
	m := new(deadLetterModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fieldops.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("fieldops/bun: get dead letter: %w", err)
	}
	return fromDeadLetterModel(m)
}

// ReplayDeadLetter marks an entry as replayed.
func (s *Store) ReplayDeadLetter(ctx context.Context, entryID id.DeadLetterID) error {
	res, err := s.db.NewUpdate().
		TableExpr("fieldops_dead_letters").
		Set("replayed_at = NOW()").
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/bun: replay dead letter: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return fieldops.ErrDeadLetterNotFound
	}
	return nil
}

// PurgeDeadLetters removes entries that failed before the given time.
func (s *Store) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("fieldops_dead_letters").
		Where("failed_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("fieldops/bun: purge dead letters: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// CountDeadLetters returns the total number of entries.
func (s *Store) CountDeadLetters(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().TableExpr("fieldops_dead_letters").Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("fieldops/bun: count dead letters: %w", err)
	}
	return int64(count), nil
}
