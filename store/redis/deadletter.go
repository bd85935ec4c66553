package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/sideeffect"
)

// PushDeadLetter records a side effect that exhausted its dispatch
// attempts. Entries are indexed in a Sorted Set scored by failed_at.
func (s *Store) PushDeadLetter(ctx context.Context, entry *sideeffect.Entry) error {
	eID := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, deadLetterKey(eID), deadLetterToMap(entry))
	pipe.ZAdd(ctx, deadLetterIndexKey, goredis.Z{
		Score:  float64(entry.FailedAt.UnixNano()),
		Member: eID,
	})
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("fieldops/redis: push dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns entries, oldest failure first.
func (s *Store) ListDeadLetters(ctx context.Context, opts sideeffect.ListOpts) ([]*sideeffect.Entry, error) {
	ids, err := s.client.ZRange(ctx, deadLetterIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: list dead letters zrange: %w", err)
	}

	var entries []*sideeffect.Entry
	for _, eID := range ids {
		vals, getErr := s.client.HGetAll(ctx, deadLetterKey(eID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		entry, convErr := mapToDeadLetter(vals)
		if convErr != nil {
			return nil, convErr
		}
		if opts.Kind != "" && entry.Kind != opts.Kind {
			continue
		}
		entries = append(entries, entry)
	}

	if opts.Offset > 0 && opts.Offset < len(entries) {
		entries = entries[opts.Offset:]
	} else if opts.Offset >= len(entries) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDeadLetter retrieves a single entry by ID.
func (s *Store) GetDeadLetter(ctx context.Context, entryID id.DeadLetterID) (*sideeffect.Entry, error) {
	vals, err := s.client.HGetAll(ctx, deadLetterKey(entryID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: get dead letter: %w", err)
	}
	if len(vals) == 0 {
		return nil, fieldops.ErrDeadLetterNotFound
	}
	return mapToDeadLetter(vals)
}

// ReplayDeadLetter marks an entry as replayed.
func (s *Store) ReplayDeadLetter(ctx context.Context, entryID id.DeadLetterID) error {
	key := deadLetterKey(entryID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: replay exists: %w", err)
	}
	if exists == 0 {
		return fieldops.ErrDeadLetterNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"replayed_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("fieldops/redis: replay dead letter: %w", err)
	}
	return nil
}

// PurgeDeadLetters removes entries that failed before the given time and
// returns the number removed.
func (s *Store) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	max := strconv.FormatFloat(float64(before.UnixNano()), 'f', -1, 64)
	ids, err := s.client.ZRangeByScore(ctx, deadLetterIndexKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("fieldops/redis: purge zrangebyscore: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, eID := range ids {
		pipe.Del(ctx, deadLetterKey(eID))
		pipe.ZRem(ctx, deadLetterIndexKey, eID)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("fieldops/redis: purge dead letters: %w", err)
	}
	return int64(len(ids)), nil
}

// CountDeadLetters returns the total number of entries.
func (s *Store) CountDeadLetters(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, deadLetterIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("fieldops/redis: count dead letters: %w", err)
	}
	return count, nil
}

// ── helpers ──

func deadLetterToMap(entry *sideeffect.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":         entry.ID.String(),
		"job_id":     entry.JobID.String(),
		"kind":       string(entry.Kind),
		"reason":     entry.Reason,
		"error":      entry.Error,
		"attempts":   strconv.Itoa(entry.Attempts),
		"failed_at":  entry.FailedAt.Format(time.RFC3339Nano),
		"created_at": entry.CreatedAt.Format(time.RFC3339Nano),
	}
	if entry.ReplayedAt != nil {
		m["replayed_at"] = entry.ReplayedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToDeadLetter(m map[string]string) (*sideeffect.Entry, error) {
	eID, err := id.ParseDeadLetterID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: parse dead letter id: %w", err)
	}
	jID, err := id.ParseJobID(m["job_id"])
	if err != nil {
		return nil, fmt.Errorf("fieldops/redis: parse job id: %w", err)
	}

	attempts, _ := strconv.Atoi(m["attempts"]) //nolint:errcheck // best-effort parse from trusted Redis data
	failedAt, _ := time.Parse(time.RFC3339Nano, m["failed_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	entry := &sideeffect.Entry{
		ID:        eID,
		JobID:     jID,
		Kind:      job.EffectKind(m["kind"]),
		Reason:    m["reason"],
		Error:     m["error"],
		Attempts:  attempts,
		FailedAt:  failedAt,
		CreatedAt: createdAt,
	}
	if v := m["replayed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		entry.ReplayedAt = &t
	}
	return entry, nil
}
