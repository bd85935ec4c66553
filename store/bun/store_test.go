//go:build integration

package bunstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/availability"
	"github.com/xraph/fieldops/cluster"
	"github.com/xraph/fieldops/contract"
	"github.com/xraph/fieldops/event"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/sideeffect"
	bunstore "github.com/xraph/fieldops/store/bun"
	"github.com/xraph/fieldops/technician"
	"github.com/xraph/fieldops/transition"
)

// setupTestStore creates a Postgres container and returns a connected Bun Store.
func setupTestStore(t *testing.T) *bunstore.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("fieldops_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	// Create Bun DB from pgdriver.
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	db := bun.NewDB(sqldb, pgdialect.New())

	t.Cleanup(func() {
		_ = db.Close()
	})

	store := bunstore.New(db, bunstore.WithLogger(slog.Default()))

	if migErr := store.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}

	return store
}

func testJob(title string, status job.Status) *job.Job {
	return &job.Job{
		Entity:      fieldops.NewEntity(),
		ID:          id.NewJobID(),
		CompanyID:   "acme",
		Title:       title,
		Status:      status,
		Priority:    5,
		Location:    geo.Point{Lat: 40.7128, Lon: -74.0060},
		Address:     "123 Main St",
		ScheduledAt: time.Now().UTC(),
	}
}

func testTechnician(name string) *technician.Technician {
	return &technician.Technician{
		Entity:      fieldops.NewEntity(),
		ID:          id.NewTechnicianID(),
		CompanyID:   "acme",
		Name:        name,
		Skills:      []string{"hvac", "plumbing"},
		IsAvailable: true,
	}
}

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestStore_MigrateIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	// Second migrate should be a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Job Store tests
// ──────────────────────────────────────────────────

func TestJobStore_CreateAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	j := testJob("boiler inspection", job.StatusDraft)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Duplicate should fail.
	if dupErr := s.CreateJob(ctx, j); !errors.Is(dupErr, fieldops.ErrJobAlreadyExists) {
		t.Fatalf("expected ErrJobAlreadyExists, got: %v", dupErr)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "boiler inspection" {
		t.Fatalf("expected title boiler inspection, got %s", got.Title)
	}
	if got.Priority != 5 {
		t.Fatalf("expected priority 5, got %d", got.Priority)
	}
	if got.Location.Lat != 40.7128 {
		t.Fatalf("expected lat 40.7128, got %f", got.Location.Lat)
	}
}

func TestJobStore_UpdateAndDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	j := testJob("update-test", job.StatusDraft)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("create: %v", err)
	}

	j.Title = "updated title"
	j.Priority = 9
	if err := s.UpdateJob(ctx, j); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Title != "updated title" {
		t.Fatalf("expected updated title, got %s", got.Title)
	}

	if err = s.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, getErr := s.GetJob(ctx, j.ID)
	if !errors.Is(getErr, fieldops.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got: %v", getErr)
	}
}

func TestJobStore_UpdateDoesNotTouchStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	j := testJob("status-guard", job.StatusPending)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Status changes go through the availability commit, never UpdateJob.
	j.Status = job.StatusCompleted
	j.Title = "renamed"
	if err := s.UpdateJob(ctx, j); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != job.StatusPending {
		t.Fatalf("expected status pending, got %s", got.Status)
	}
	if got.Title != "renamed" {
		t.Fatalf("expected renamed, got %s", got.Title)
	}
}

func TestJobStore_ListByStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		status := job.StatusPending
		if i >= 3 {
			status = job.StatusCompleted
		}
		j := testJob(fmt.Sprintf("list-job-%d", i), status)
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	pending, err := s.ListJobsByStatus(ctx, job.StatusPending, job.ListOpts{})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}

	// Company filter excludes everything else.
	other, err := s.ListJobsByStatus(ctx, job.StatusPending, job.ListOpts{CompanyID: "globex"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected 0 for other company, got %d", len(other))
	}
}

func TestJobStore_Breaks(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	j := testJob("break-test", job.StatusInProgress)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("create: %v", err)
	}

	start := time.Now().UTC()
	if err := s.StartBreak(ctx, j.ID, start); err != nil {
		t.Fatalf("start break: %v", err)
	}

	// Second open break is rejected.
	if err := s.StartBreak(ctx, j.ID, start.Add(time.Minute)); !errors.Is(err, fieldops.ErrBreakOpen) {
		t.Fatalf("expected ErrBreakOpen, got: %v", err)
	}

	if err := s.EndBreak(ctx, j.ID, start.Add(15*time.Minute)); err != nil {
		t.Fatalf("end break: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Breaks) != 1 {
		t.Fatalf("expected 1 break, got %d", len(got.Breaks))
	}
	if got.Breaks[0].Open() {
		t.Fatal("expected break to be closed")
	}

	// Breaks only apply to in-progress jobs.
	draft := testJob("draft-break", job.StatusDraft)
	if err = s.CreateJob(ctx, draft); err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if err = s.StartBreak(ctx, draft.ID, start); !errors.Is(err, fieldops.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
}

func TestJobStore_CountJobs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		j := testJob("count-test", job.StatusPending)
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	count, err := s.CountJobs(ctx, job.CountOpts{Status: job.StatusPending})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
}

// ──────────────────────────────────────────────────
// Technician Store tests
// ──────────────────────────────────────────────────

func TestTechnicianStore_CreateAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tech := testTechnician("Dana Reyes")
	if err := s.CreateTechnician(ctx, tech); err != nil {
		t.Fatalf("create: %v", err)
	}

	if dupErr := s.CreateTechnician(ctx, tech); !errors.Is(dupErr, fieldops.ErrTechnicianAlreadyExists) {
		t.Fatalf("expected ErrTechnicianAlreadyExists, got: %v", dupErr)
	}

	got, err := s.GetTechnician(ctx, tech.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Dana Reyes" {
		t.Fatalf("expected Dana Reyes, got %s", got.Name)
	}
	if !got.IsAvailable {
		t.Fatal("expected available")
	}
	if len(got.Skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(got.Skills))
	}
}

func TestTechnicianStore_UpdateLocation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tech := testTechnician("Sam Okafor")
	if err := s.CreateTechnician(ctx, tech); err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Now().UTC()
	pos := geo.Point{Lat: 51.5074, Lon: -0.1278}
	if err := s.UpdateTechnicianLocation(ctx, tech.ID, pos, at); err != nil {
		t.Fatalf("update location: %v", err)
	}

	got, err := s.GetTechnician(ctx, tech.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Location.Lat != 51.5074 {
		t.Fatalf("expected lat 51.5074, got %f", got.Location.Lat)
	}
	if got.LocatedAt == nil {
		t.Fatal("expected located_at to be set")
	}
}

func TestTechnicianStore_ListAvailable(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	free := testTechnician("Free Agent")
	if err := s.CreateTechnician(ctx, free); err != nil {
		t.Fatalf("create free: %v", err)
	}

	busy := testTechnician("Busy Bee")
	if err := s.CreateTechnician(ctx, busy); err != nil {
		t.Fatalf("create busy: %v", err)
	}

	// Claim busy through the availability commit.
	j := testJob("claim-job", job.StatusAssigned)
	j.AssignedTechnicianID = busy.ID
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("create claim job: %v", err)
	}
	if err := s.Commit(ctx, availability.Commit{Job: j, Claim: busy.ID}); err != nil {
		t.Fatalf("commit claim: %v", err)
	}

	avail, err := s.ListAvailableTechnicians(ctx, technician.ListOpts{})
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if len(avail) != 1 {
		t.Fatalf("expected 1 available, got %d", len(avail))
	}
	if avail[0].Name != "Free Agent" {
		t.Fatalf("expected Free Agent, got %s", avail[0].Name)
	}
}

// ──────────────────────────────────────────────────
// Availability commit tests
// ──────────────────────────────────────────────────

func TestAvailability_ClaimAndRelease(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tech := testTechnician("Claimed Tech")
	if err := s.CreateTechnician(ctx, tech); err != nil {
		t.Fatalf("create technician: %v", err)
	}
	j := testJob("commit-job", job.StatusPending)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("create job: %v", err)
	}

	j.Status = job.StatusAssigned
	j.AssignedTechnicianID = tech.ID
	if err := s.Commit(ctx, availability.Commit{Job: j, Claim: tech.ID}); err != nil {
		t.Fatalf("claim commit: %v", err)
	}

	got, err := s.GetTechnician(ctx, tech.ID)
	if err != nil {
		t.Fatalf("get technician: %v", err)
	}
	if got.IsAvailable {
		t.Fatal("expected unavailable after claim")
	}
	if got.CurrentJobID.String() != j.ID.String() {
		t.Fatalf("expected current job %s, got %s", j.ID, got.CurrentJobID)
	}

	gotJob, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if gotJob.Status != job.StatusAssigned {
		t.Fatalf("expected assigned, got %s", gotJob.Status)
	}

	// Release.
	j.Status = job.StatusCompleted
	j.AssignedTechnicianID = id.TechnicianID{}
	if err = s.Commit(ctx, availability.Commit{Job: j, Release: tech.ID}); err != nil {
		t.Fatalf("release commit: %v", err)
	}

	got, err = s.GetTechnician(ctx, tech.ID)
	if err != nil {
		t.Fatalf("get after release: %v", err)
	}
	if !got.IsAvailable {
		t.Fatal("expected available after release")
	}
	if !got.CurrentJobID.IsNil() {
		t.Fatalf("expected nil current job, got %s", got.CurrentJobID)
	}
}

func TestAvailability_ClaimConflict(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tech := testTechnician("Contested Tech")
	if err := s.CreateTechnician(ctx, tech); err != nil {
		t.Fatalf("create technician: %v", err)
	}

	j1 := testJob("first-job", job.StatusAssigned)
	j1.AssignedTechnicianID = tech.ID
	j2 := testJob("second-job", job.StatusAssigned)
	j2.AssignedTechnicianID = tech.ID
	for _, j := range []*job.Job{j1, j2} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}

	if err := s.Commit(ctx, availability.Commit{Job: j1, Claim: tech.ID}); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	// Second job cannot claim the same technician.
	err := s.Commit(ctx, availability.Commit{Job: j2, Claim: tech.ID})
	if !errors.Is(err, fieldops.ErrTechnicianConflict) {
		t.Fatalf("expected ErrTechnicianConflict, got: %v", err)
	}

	// Re-claiming for the same job is idempotent.
	if err = s.Commit(ctx, availability.Commit{Job: j1, Claim: tech.ID}); err != nil {
		t.Fatalf("re-claim same job: %v", err)
	}
}

func TestAvailability_CommitMissingTechnician(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	j := testJob("orphan-job", job.StatusAssigned)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("create job: %v", err)
	}

	err := s.Commit(ctx, availability.Commit{Job: j, Claim: id.NewTechnicianID()})
	if !errors.Is(err, fieldops.ErrTechnicianNotFound) {
		t.Fatalf("expected ErrTechnicianNotFound, got: %v", err)
	}
}

func TestAvailability_ReleaseSkipsReassignedTechnician(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tech := testTechnician("Rebooked Tech")
	if err := s.CreateTechnician(ctx, tech); err != nil {
		t.Fatalf("create technician: %v", err)
	}

	first := testJob("first-visit", job.StatusAssigned)
	first.AssignedTechnicianID = tech.ID
	second := testJob("second-visit", job.StatusAssigned)
	second.AssignedTechnicianID = tech.ID
	for _, j := range []*job.Job{first, second} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}

	// Claim for the first job, release on completion, then hand the
	// technician to the second job.
	if err := s.Commit(ctx, availability.Commit{Job: first, Claim: tech.ID}); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	first.Status = job.StatusCompleted
	if err := s.Commit(ctx, availability.Commit{Job: first, Release: tech.ID}); err != nil {
		t.Fatalf("completed release: %v", err)
	}
	if err := s.Commit(ctx, availability.Commit{Job: second, Claim: tech.ID}); err != nil {
		t.Fatalf("second claim: %v", err)
	}

	// Finishing the first job later must not free the second job's
	// technician.
	first.Status = job.StatusFinished
	if err := s.Commit(ctx, availability.Commit{Job: first, Release: tech.ID}); err != nil {
		t.Fatalf("finished release: %v", err)
	}

	got, err := s.GetTechnician(ctx, tech.ID)
	if err != nil {
		t.Fatalf("get technician: %v", err)
	}
	if got.IsAvailable {
		t.Fatal("finishing an old job freed a re-claimed technician")
	}
	if got.CurrentJobID.String() != second.ID.String() {
		t.Fatalf("expected current job %s, got %s", second.ID, got.CurrentJobID)
	}
}

// ──────────────────────────────────────────────────
// Event Store tests
// ──────────────────────────────────────────────────

func TestEventStore_AppendAndList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	jobID := id.NewJobID()
	techID := id.NewTechnicianID()
	for i, pair := range [][2]job.Status{
		{job.StatusDraft, job.StatusPending},
		{job.StatusPending, job.StatusAssigned},
	} {
		evt := &event.Event{
			ID:           id.NewEventID(),
			JobID:        jobID,
			From:         pair[0],
			To:           pair[1],
			Source:       transition.SourceManual,
			ActorID:      "dispatcher-1",
			TechnicianID: techID,
			CreatedAt:    time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	events, err := s.ListEventsForJob(ctx, jobID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2, got %d", len(events))
	}
	// Oldest first.
	if events[0].To != job.StatusPending {
		t.Fatalf("expected first event to pending, got %s", events[0].To)
	}

	got, err := s.GetEvent(ctx, events[1].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.To != job.StatusAssigned {
		t.Fatalf("expected assigned, got %s", got.To)
	}

	_, missErr := s.GetEvent(ctx, id.NewEventID())
	if !errors.Is(missErr, fieldops.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got: %v", missErr)
	}
}

// ──────────────────────────────────────────────────
// Dead letter Store tests
// ──────────────────────────────────────────────────

func TestDeadLetterStore_PushListReplay(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entry := &sideeffect.Entry{
		ID:        id.NewDeadLetterID(),
		JobID:     id.NewJobID(),
		Kind:      job.EffectNotifyCustomer,
		Reason:    "technician en route",
		Error:     "notify timeout",
		Attempts:  3,
		FailedAt:  time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.PushDeadLetter(ctx, entry); err != nil {
		t.Fatalf("push: %v", err)
	}

	entries, err := s.ListDeadLetters(ctx, sideeffect.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1, got %d", len(entries))
	}
	if entries[0].Error != "notify timeout" {
		t.Fatalf("expected notify timeout, got %s", entries[0].Error)
	}

	if err = s.ReplayDeadLetter(ctx, entry.ID); err != nil {
		t.Fatalf("replay: %v", err)
	}
	got, err := s.GetDeadLetter(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get after replay: %v", err)
	}
	if got.ReplayedAt == nil {
		t.Fatal("expected replayed_at to be set")
	}
}

func TestDeadLetterStore_PurgeAndCount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		entry := &sideeffect.Entry{
			ID:        id.NewDeadLetterID(),
			JobID:     id.NewJobID(),
			Kind:      job.EffectComputeTravelMetrics,
			Error:     "metrics backend down",
			Attempts:  3,
			FailedAt:  time.Now().UTC().Add(-time.Duration(i) * time.Hour),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.PushDeadLetter(ctx, entry); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	count, err := s.CountDeadLetters(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5, got %d", count)
	}

	// Purge entries older than 2 hours.
	purged, err := s.PurgeDeadLetters(ctx, time.Now().UTC().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 3 {
		t.Fatalf("expected 3 purged, got %d", purged)
	}

	count, err = s.CountDeadLetters(ctx)
	if err != nil {
		t.Fatalf("count after purge: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
}

// ──────────────────────────────────────────────────
// Contract Store tests
// ──────────────────────────────────────────────────

func testContract(name string) *contract.Contract {
	next := time.Now().Add(1 * time.Hour).UTC()
	return &contract.Contract{
		Entity:    fieldops.NewEntity(),
		ID:        id.NewContractID(),
		Name:      name,
		CompanyID: "acme",
		Schedule:  "0 9 * * 1",
		Title:     "weekly maintenance",
		Priority:  3,
		Location:  geo.Point{Lat: 40.7128, Lon: -74.0060},
		Address:   "123 Main St",
		NextRunAt: &next,
		Enabled:   true,
	}
}

func TestContractStore_RegisterAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	c := testContract("acme-weekly")
	if err := s.RegisterContract(ctx, c); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Duplicate name should fail.
	dup := testContract("acme-weekly")
	if dupErr := s.RegisterContract(ctx, dup); !errors.Is(dupErr, fieldops.ErrDuplicateContract) {
		t.Fatalf("expected ErrDuplicateContract, got: %v", dupErr)
	}

	got, err := s.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "acme-weekly" {
		t.Fatalf("expected acme-weekly, got %s", got.Name)
	}
	if !got.Enabled {
		t.Fatal("expected enabled")
	}
}

func TestContractStore_ListUpdateDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.RegisterContract(ctx, testContract(fmt.Sprintf("contract-%d", i))); err != nil {
			t.Fatalf("register contract-%d: %v", i, err)
		}
	}

	contracts, err := s.ListContracts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(contracts) != 3 {
		t.Fatalf("expected 3, got %d", len(contracts))
	}

	contracts[0].Enabled = false
	if err = s.UpdateContract(ctx, contracts[0]); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetContract(ctx, contracts[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Enabled {
		t.Fatal("expected disabled")
	}

	if err = s.DeleteContract(ctx, contracts[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	contracts, err = s.ListContracts(ctx)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(contracts) != 2 {
		t.Fatalf("expected 2, got %d", len(contracts))
	}
}

func TestContractStore_LockAndRelease(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	c := testContract("lock-test")
	if err := s.RegisterContract(ctx, c); err != nil {
		t.Fatalf("register: %v", err)
	}

	node1 := id.NewNodeID()
	node2 := id.NewNodeID()

	// Node1 acquires lock.
	acquired, err := s.AcquireContractLock(ctx, c.ID, node1, 30*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected acquired")
	}

	// Node2 cannot acquire (lock held by node1).
	acquired, err = s.AcquireContractLock(ctx, c.ID, node2, 30*time.Second)
	if err != nil {
		t.Fatalf("acquire by node2: %v", err)
	}
	if acquired {
		t.Fatal("expected not acquired by node2")
	}

	// Node1 can re-acquire (idempotent).
	acquired, err = s.AcquireContractLock(ctx, c.ID, node1, 30*time.Second)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected re-acquired by node1")
	}

	// Release.
	if err = s.ReleaseContractLock(ctx, c.ID, node1); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Now node2 can acquire.
	acquired, err = s.AcquireContractLock(ctx, c.ID, node2, 30*time.Second)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if !acquired {
		t.Fatal("expected acquired by node2 after release")
	}
}

func TestContractStore_UpdateLastRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	c := testContract("lastrun-test")
	if err := s.RegisterContract(ctx, c); err != nil {
		t.Fatalf("register: %v", err)
	}

	now := time.Now().UTC()
	if err := s.UpdateContractLastRun(ctx, c.ID, now); err != nil {
		t.Fatalf("update last run: %v", err)
	}

	got, err := s.GetContract(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastRunAt == nil {
		t.Fatal("expected last_run_at to be set")
	}
}

// ──────────────────────────────────────────────────
// Cluster Store tests
// ──────────────────────────────────────────────────

func testNode(hostname string) *cluster.Node {
	return &cluster.Node{
		ID:        id.NewNodeID(),
		Hostname:  hostname,
		State:     cluster.NodeActive,
		LastSeen:  time.Now().UTC(),
		Metadata:  map[string]string{"version": "1.0"},
		CreatedAt: time.Now().UTC(),
	}
}

func TestClusterStore_RegisterAndList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	n := testNode("node-1")
	if err := s.RegisterNode(ctx, n); err != nil {
		t.Fatalf("register: %v", err)
	}

	nodes, err := s.ListNodes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1, got %d", len(nodes))
	}
	if nodes[0].Hostname != "node-1" {
		t.Fatalf("expected node-1, got %s", nodes[0].Hostname)
	}

	// Re-register is an upsert.
	n.Hostname = "node-1-renamed"
	if err = s.RegisterNode(ctx, n); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	nodes, err = s.ListNodes(ctx)
	if err != nil {
		t.Fatalf("list after upsert: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 after upsert, got %d", len(nodes))
	}
	if nodes[0].Hostname != "node-1-renamed" {
		t.Fatalf("expected node-1-renamed, got %s", nodes[0].Hostname)
	}
}

func TestClusterStore_Deregister(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	n := testNode("ephemeral")
	if err := s.RegisterNode(ctx, n); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := s.DeregisterNode(ctx, n.ID); err != nil {
		t.Fatalf("deregister: %v", err)
	}

	nodes, err := s.ListNodes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected 0, got %d", len(nodes))
	}
}

func TestClusterStore_HeartbeatAndReap(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	n := testNode("stale-node")
	n.LastSeen = time.Now().UTC().Add(-5 * time.Minute)
	if err := s.RegisterNode(ctx, n); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Should be reaped with 1-minute threshold.
	dead, err := s.ReapDeadNodes(ctx, 1*time.Minute)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead, got %d", len(dead))
	}

	// Re-register and heartbeat — fresh node survives the reaper.
	n.LastSeen = time.Now().UTC().Add(-5 * time.Minute)
	if err = s.RegisterNode(ctx, n); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if err = s.HeartbeatNode(ctx, n.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	dead, err = s.ReapDeadNodes(ctx, 1*time.Minute)
	if err != nil {
		t.Fatalf("reap after heartbeat: %v", err)
	}
	if len(dead) != 0 {
		t.Fatalf("expected 0 dead after heartbeat, got %d", len(dead))
	}
}

func TestClusterStore_Leadership(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	n1 := testNode("leader-1")
	n2 := testNode("leader-2")
	for _, n := range []*cluster.Node{n1, n2} {
		if err := s.RegisterNode(ctx, n); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	// n1 acquires leadership.
	acquired, err := s.AcquireLeadership(ctx, n1.ID, 30*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected acquired")
	}

	// n2 cannot acquire.
	acquired, err = s.AcquireLeadership(ctx, n2.ID, 30*time.Second)
	if err != nil {
		t.Fatalf("acquire by n2: %v", err)
	}
	if acquired {
		t.Fatal("expected not acquired by n2")
	}

	// GetLeader returns n1.
	leader, err := s.GetLeader(ctx)
	if err != nil {
		t.Fatalf("get leader: %v", err)
	}
	if leader == nil {
		t.Fatal("expected leader")
	}
	if leader.ID.String() != n1.ID.String() {
		t.Fatalf("expected n1 as leader, got %s", leader.ID.String())
	}

	// n1 renews.
	renewed, err := s.RenewLeadership(ctx, n1.ID, 30*time.Second)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !renewed {
		t.Fatal("expected renewed")
	}

	// n2 cannot renew (not leader).
	renewed, err = s.RenewLeadership(ctx, n2.ID, 30*time.Second)
	if err != nil {
		t.Fatalf("renew by n2: %v", err)
	}
	if renewed {
		t.Fatal("expected not renewed by n2")
	}
}

func TestClusterStore_LeaderExpiry(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	n1 := testNode("expiring-leader")
	n2 := testNode("new-leader")
	for _, n := range []*cluster.Node{n1, n2} {
		if err := s.RegisterNode(ctx, n); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	// n1 acquires with very short TTL.
	acquired, err := s.AcquireLeadership(ctx, n1.ID, 1*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !acquired {
		t.Fatal("expected acquired")
	}

	// Wait for TTL to expire.
	time.Sleep(50 * time.Millisecond)

	// n2 should now be able to acquire.
	acquired, err = s.AcquireLeadership(ctx, n2.ID, 30*time.Second)
	if err != nil {
		t.Fatalf("acquire by n2: %v", err)
	}
	if !acquired {
		t.Fatal("expected acquired by n2 after expiry")
	}
}
