package sideeffect_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/sideeffect"
	"github.com/xraph/fieldops/store/memory"
)

func newTestJob(title string) *job.Job {
	return &job.Job{
		Entity:      fieldops.NewEntity(),
		ID:          id.NewJobID(),
		CompanyID:   "acme",
		Title:       title,
		Status:      job.StatusEnRoute,
		Location:    geo.Point{Lat: 34.0522, Lon: -118.2437},
		ScheduledAt: time.Now().UTC(),
	}
}

// recordingDispatcher records Dispatch calls and optionally fails.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

type dispatchCall struct {
	JobID  id.JobID
	Effect job.Effect
}

func (d *recordingDispatcher) Dispatch(_ context.Context, j *job.Job, e job.Effect) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, dispatchCall{JobID: j.ID, Effect: e})
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func TestService_Push_BuildsEntryFromEffect(t *testing.T) {
	s := memory.New()
	svc := sideeffect.NewService(s, s)
	ctx := context.Background()

	j := newTestJob("fix furnace")
	effect := job.Effect{Kind: job.EffectNotifyCustomer, Reason: "technician departing"}
	dispatchErr := errors.New("sms gateway timeout")

	if err := svc.Push(ctx, j, effect, 3, dispatchErr); err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDeadLetters(ctx, sideeffect.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListDeadLetters: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.JobID.String() != j.ID.String() {
		t.Errorf("JobID = %v, want %v", entry.JobID, j.ID)
	}
	if entry.Kind != job.EffectNotifyCustomer {
		t.Errorf("Kind = %q, want %q", entry.Kind, job.EffectNotifyCustomer)
	}
	if entry.Reason != "technician departing" {
		t.Errorf("Reason = %q", entry.Reason)
	}
	if entry.Error != "sms gateway timeout" {
		t.Errorf("Error = %q", entry.Error)
	}
	if entry.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", entry.Attempts)
	}
	if entry.FailedAt.IsZero() {
		t.Error("expected FailedAt to be set")
	}
	if entry.ReplayedAt != nil {
		t.Error("new entry should not be marked replayed")
	}
}

func TestService_Replay_DispatchesFreshJob(t *testing.T) {
	s := memory.New()
	svc := sideeffect.NewService(s, s)
	ctx := context.Background()

	j := newTestJob("inspect hvac")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	effect := job.Effect{Kind: job.EffectComputeTravelMetrics}
	if err := svc.Push(ctx, j, effect, 3, errors.New("metrics backend down")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	entries, _ := s.ListDeadLetters(ctx, sideeffect.ListOpts{})
	entryID := entries[0].ID

	// Change the job after the failure; replay must see the new state.
	j.Title = "inspect hvac (rescheduled)"
	if err := s.UpdateJob(ctx, j); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	d := &recordingDispatcher{}
	if err := svc.Replay(ctx, entryID, d); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if d.count() != 1 {
		t.Fatalf("dispatch calls = %d, want 1", d.count())
	}
	if d.calls[0].Effect.Kind != job.EffectComputeTravelMetrics {
		t.Errorf("replayed kind = %q", d.calls[0].Effect.Kind)
	}

	entry, err := s.GetDeadLetter(ctx, entryID)
	if err != nil {
		t.Fatalf("GetDeadLetter: %v", err)
	}
	if entry.ReplayedAt == nil {
		t.Error("expected ReplayedAt to be set after replay")
	}
}

func TestService_Replay_FailedDispatchLeavesEntry(t *testing.T) {
	s := memory.New()
	svc := sideeffect.NewService(s, s)
	ctx := context.Background()

	j := newTestJob("replace compressor")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := svc.Push(ctx, j, job.Effect{Kind: job.EffectNotifyCustomer}, 3, errors.New("fail")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	entries, _ := s.ListDeadLetters(ctx, sideeffect.ListOpts{})
	entryID := entries[0].ID

	d := &recordingDispatcher{err: errors.New("still failing")}
	if err := svc.Replay(ctx, entryID, d); err == nil {
		t.Fatal("expected Replay to surface the dispatch error")
	}

	entry, _ := s.GetDeadLetter(ctx, entryID)
	if entry.ReplayedAt != nil {
		t.Error("failed replay must not mark the entry replayed")
	}
}

func TestService_ReplayAll_SkipsReplayedAndFiltersKind(t *testing.T) {
	s := memory.New()
	svc := sideeffect.NewService(s, s)
	ctx := context.Background()

	j := newTestJob("tune boiler")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	push := func(kind job.EffectKind) {
		t.Helper()
		if err := svc.Push(ctx, j, job.Effect{Kind: kind}, 3, errors.New("fail")); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	push(job.EffectNotifyCustomer)
	push(job.EffectNotifyCustomer)
	push(job.EffectComputeTravelMetrics)

	// Pre-replay one notify entry; ReplayAll must skip it.
	entries, _ := s.ListDeadLetters(ctx, sideeffect.ListOpts{Kind: job.EffectNotifyCustomer})
	d := &recordingDispatcher{}
	if err := svc.Replay(ctx, entries[0].ID, d); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	n, err := svc.ReplayAll(ctx, job.EffectNotifyCustomer, d)
	if err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("replayed = %d, want 1", n)
	}

	// The metrics entry is untouched.
	rest, _ := s.ListDeadLetters(ctx, sideeffect.ListOpts{Kind: job.EffectComputeTravelMetrics})
	if len(rest) != 1 || rest[0].ReplayedAt != nil {
		t.Error("metrics entry should remain pending")
	}

	// Empty kind replays everything still pending.
	n, err = svc.ReplayAll(ctx, "", d)
	if err != nil {
		t.Fatalf("ReplayAll all kinds: %v", err)
	}
	if n != 1 {
		t.Fatalf("replayed = %d, want 1", n)
	}
}

func TestService_ReplayAll_FailedEntriesStay(t *testing.T) {
	s := memory.New()
	svc := sideeffect.NewService(s, s)
	ctx := context.Background()

	j := newTestJob("swap thermostat")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := svc.Push(ctx, j, job.Effect{Kind: job.EffectNotifyCustomer}, 3, errors.New("fail")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	d := &recordingDispatcher{err: errors.New("still failing")}
	n, err := svc.ReplayAll(ctx, "", d)
	if err == nil {
		t.Fatal("expected ReplayAll to surface the dispatch error")
	}
	if n != 0 {
		t.Fatalf("replayed = %d, want 0", n)
	}

	entries, _ := s.ListDeadLetters(ctx, sideeffect.ListOpts{})
	if len(entries) != 1 || entries[0].ReplayedAt != nil {
		t.Error("failed entry must stay pending")
	}
}

func TestService_Replay_MissingEntryAndJob(t *testing.T) {
	s := memory.New()
	svc := sideeffect.NewService(s, s)
	ctx := context.Background()
	d := &recordingDispatcher{}

	if err := svc.Replay(ctx, id.NewDeadLetterID(), d); !errors.Is(err, fieldops.ErrDeadLetterNotFound) {
		t.Errorf("unknown entry err = %v, want ErrDeadLetterNotFound", err)
	}

	// Entry whose job has since been deleted.
	j := newTestJob("gone-job")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := svc.Push(ctx, j, job.Effect{Kind: job.EffectNotifyCustomer}, 3, errors.New("fail")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := s.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	entries, _ := s.ListDeadLetters(ctx, sideeffect.ListOpts{})

	if err := svc.Replay(ctx, entries[0].ID, d); !errors.Is(err, fieldops.ErrJobNotFound) {
		t.Errorf("deleted job err = %v, want ErrJobNotFound", err)
	}
	if d.count() != 0 {
		t.Error("dispatcher must not be called when the job is missing")
	}
}
