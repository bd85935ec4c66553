package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/audit"
	"github.com/xraph/fieldops/event"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/transition"
)

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (m *mockRecorder) Record(_ context.Context, evt *audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// memEvents is an in-memory event.Store.
type memEvents struct {
	mu    sync.Mutex
	byJob map[string][]*event.Event
}

func newMemEvents() *memEvents {
	return &memEvents{byJob: make(map[string][]*event.Event)}
}

func (m *memEvents) AppendEvent(_ context.Context, evt *event.Event) error {
	m.mu.Lock()
	m.byJob[evt.JobID.String()] = append(m.byJob[evt.JobID.String()], evt)
	m.mu.Unlock()
	return nil
}

func (m *memEvents) ListEventsForJob(_ context.Context, jobID id.JobID, limit int) ([]*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.byJob[jobID.String()]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return append([]*event.Event(nil), events...), nil
}

func (m *memEvents) GetEvent(_ context.Context, eventID id.EventID) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, events := range m.byJob {
		for _, evt := range events {
			if evt.ID.String() == eventID.String() {
				return evt, nil
			}
		}
	}
	return nil, fieldops.ErrEventNotFound
}

func newTestJob(status job.Status) *job.Job {
	return &job.Job{
		ID:     id.NewJobID(),
		Title:  "Install smart thermostat",
		Status: status,
	}
}

func TestExtensionName(t *testing.T) {
	t.Parallel()

	e := audit.New(event.NewLog(newMemEvents()))
	if e.Name() != "audit" {
		t.Errorf("Name = %q, want %q", e.Name(), "audit")
	}
}

func TestTransitionAppliedWritesTimelineAndRecorder(t *testing.T) {
	t.Parallel()

	store := newMemEvents()
	rec := &mockRecorder{}
	e := audit.New(event.NewLog(store), audit.WithRecorder(rec))
	ctx := context.Background()

	j := newTestJob(job.StatusPending)
	req := transition.Request{
		JobID:   j.ID,
		Target:  job.StatusPending,
		Source:  transition.SourceManual,
		ActorID: "dispatcher-7",
	}
	if err := e.OnTransitionApplied(ctx, j, job.StatusDraft, req); err != nil {
		t.Fatalf("OnTransitionApplied: %v", err)
	}

	history, err := store.ListEventsForJob(ctx, j.ID, 0)
	if err != nil {
		t.Fatalf("ListEventsForJob: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("timeline events = %d, want 1", len(history))
	}
	if history[0].From != job.StatusDraft || history[0].To != job.StatusPending {
		t.Fatalf("timeline edge = %s→%s, want draft→pending", history[0].From, history[0].To)
	}
	if history[0].ActorID != "dispatcher-7" {
		t.Fatalf("ActorID = %q, want dispatcher-7", history[0].ActorID)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no audit event recorded")
	}
	if evt.Action != audit.ActionTransitionApplied {
		t.Errorf("Action = %q, want %q", evt.Action, audit.ActionTransitionApplied)
	}
	if evt.ResourceID != j.ID.String() {
		t.Errorf("ResourceID = %q, want %q", evt.ResourceID, j.ID)
	}
	if evt.Severity != audit.SeverityInfo || evt.Outcome != audit.OutcomeSuccess {
		t.Errorf("severity/outcome = %s/%s, want info/success", evt.Severity, evt.Outcome)
	}
	if evt.Metadata["to"] != "pending" {
		t.Errorf("Metadata[to] = %v, want pending", evt.Metadata["to"])
	}
}

func TestTransitionRejectedSkipsTimeline(t *testing.T) {
	t.Parallel()

	store := newMemEvents()
	rec := &mockRecorder{}
	e := audit.New(event.NewLog(store), audit.WithRecorder(rec))
	ctx := context.Background()

	req := transition.Request{
		JobID:  id.NewJobID(),
		Target: job.StatusFinished,
		Source: transition.SourceManual,
	}
	if err := e.OnTransitionRejected(ctx, req, errors.New("finished is unreachable from pending")); err != nil {
		t.Fatalf("OnTransitionRejected: %v", err)
	}

	history, _ := store.ListEventsForJob(ctx, req.JobID, 0)
	if len(history) != 0 {
		t.Fatalf("timeline events = %d, want 0", len(history))
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no audit event recorded")
	}
	if evt.Severity != audit.SeverityWarning || evt.Outcome != audit.OutcomeFailure {
		t.Errorf("severity/outcome = %s/%s, want warning/failure", evt.Severity, evt.Outcome)
	}
	if evt.Reason == "" {
		t.Error("Reason not set from rejection error")
	}
}

func TestTechnicianHooksReachRecorder(t *testing.T) {
	t.Parallel()

	rec := &mockRecorder{}
	e := audit.New(event.NewLog(newMemEvents()), audit.WithRecorder(rec))
	ctx := context.Background()

	jobID := id.NewJobID()
	techID := id.NewTechnicianID()

	if err := e.OnTechnicianClaimed(ctx, jobID, techID); err != nil {
		t.Fatalf("OnTechnicianClaimed: %v", err)
	}
	if err := e.OnTechnicianReleased(ctx, jobID, techID); err != nil {
		t.Fatalf("OnTechnicianReleased: %v", err)
	}

	if rec.count() != 2 {
		t.Fatalf("recorded = %d, want 2", rec.count())
	}
	if rec.last().Action != audit.ActionTechnicianReleased {
		t.Errorf("last action = %q, want %q", rec.last().Action, audit.ActionTechnicianReleased)
	}
	if rec.last().Resource != audit.ResourceTechnician {
		t.Errorf("resource = %q, want technician", rec.last().Resource)
	}
}

func TestWithActionsFiltersRecorder(t *testing.T) {
	t.Parallel()

	store := newMemEvents()
	rec := &mockRecorder{}
	e := audit.New(event.NewLog(store),
		audit.WithRecorder(rec),
		audit.WithActions(audit.ActionTransitionRejected),
	)
	ctx := context.Background()

	j := newTestJob(job.StatusPending)
	req := transition.Request{JobID: j.ID, Target: job.StatusPending, Source: transition.SourceSystem}
	if err := e.OnTransitionApplied(ctx, j, job.StatusDraft, req); err != nil {
		t.Fatalf("OnTransitionApplied: %v", err)
	}

	// Filtered out of the recorder, but the timeline still gets it.
	if rec.count() != 0 {
		t.Fatalf("recorded = %d, want 0", rec.count())
	}
	history, _ := store.ListEventsForJob(ctx, j.ID, 0)
	if len(history) != 1 {
		t.Fatalf("timeline events = %d, want 1", len(history))
	}

	if err := e.OnTransitionRejected(ctx, req, errors.New("nope")); err != nil {
		t.Fatalf("OnTransitionRejected: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("recorded = %d, want 1", rec.count())
	}
}

func TestGeofenceTriggeredMetadata(t *testing.T) {
	t.Parallel()

	rec := &mockRecorder{}
	e := audit.New(event.NewLog(newMemEvents()), audit.WithRecorder(rec))

	req := transition.Request{
		JobID:  id.NewJobID(),
		Target: job.StatusEnRoute,
		Source: transition.SourceGeofence,
	}
	if err := e.OnGeofenceTriggered(context.Background(), req, 432.5); err != nil {
		t.Fatalf("OnGeofenceTriggered: %v", err)
	}

	evt := rec.last()
	if evt.Category != audit.CategoryGeofence {
		t.Errorf("Category = %q, want %q", evt.Category, audit.CategoryGeofence)
	}
	if evt.Metadata["distance_m"] != 432.5 {
		t.Errorf("Metadata[distance_m] = %v, want 432.5", evt.Metadata["distance_m"])
	}
}
