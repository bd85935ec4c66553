package sideeffect

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
)

// replayConcurrency bounds how many entries ReplayAll dispatches at once.
const replayConcurrency = 4

// Dispatcher re-runs one effect against a job. The arbiter's dispatch
// path implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, j *job.Job, e job.Effect) error
}

// JobStore is the read side Replay needs.
type JobStore interface {
	GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error)
}

// Service provides high-level dead letter operations over a Store.
type Service struct {
	store    Store
	jobStore JobStore
}

// NewService creates a side-effect dead letter service.
func NewService(store Store, jobStore JobStore) *Service {
	return &Service{store: store, jobStore: jobStore}
}

// Push builds an Entry from a failed dispatch and persists it.
func (s *Service) Push(ctx context.Context, j *job.Job, e job.Effect, attempts int, dispatchErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:        id.NewDeadLetterID(),
		JobID:     j.ID,
		Kind:      e.Kind,
		Reason:    e.Reason,
		Error:     dispatchErr.Error(),
		Attempts:  attempts,
		FailedAt:  now,
		CreatedAt: now,
	}
	return s.store.PushDeadLetter(ctx, entry)
}

// Replay re-dispatches one entry through d and marks it replayed. The
// job is loaded fresh so a late replay sees the job's current state.
func (s *Service) Replay(ctx context.Context, entryID id.DeadLetterID, d Dispatcher) error {
	entry, err := s.store.GetDeadLetter(ctx, entryID)
	if err != nil {
		return err
	}

	j, err := s.jobStore.GetJob(ctx, entry.JobID)
	if err != nil {
		return err
	}

	if err := d.Dispatch(ctx, j, entry.Effect()); err != nil {
		return err
	}

	return s.store.ReplayDeadLetter(ctx, entryID)
}

// ReplayAll re-dispatches every pending entry of the given kind, or of
// all kinds when kind is empty, with bounded concurrency. Entries that
// fail stay in the store; the rest are marked replayed. It returns the
// number of entries replayed and the first error encountered.
func (s *Service) ReplayAll(ctx context.Context, kind job.EffectKind, d Dispatcher) (int, error) {
	entries, err := s.store.ListDeadLetters(ctx, ListOpts{Kind: kind})
	if err != nil {
		return 0, err
	}

	var replayed atomic.Int64
	var g errgroup.Group
	g.SetLimit(replayConcurrency)
	for _, entry := range entries {
		if entry.ReplayedAt != nil {
			continue
		}
		g.Go(func() error {
			if err := s.Replay(ctx, entry.ID, d); err != nil {
				return fmt.Errorf("replay %s: %w", entry.ID, err)
			}
			replayed.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(replayed.Load()), err
}

// DeadLetterStore returns the underlying store for direct access to
// List, Get, Purge, and Count operations.
func (s *Service) DeadLetterStore() Store {
	return s.store
}
