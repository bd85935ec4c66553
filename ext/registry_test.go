package ext

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/transition"
)

// recorder implements every hook and records the calls it receives.
type recorder struct {
	name     string
	applied  int
	rejected int
	claimed  int
	released int
	geofence int
	shutdown int
	err      error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnTransitionApplied(context.Context, *job.Job, job.Status, transition.Request) error {
	r.applied++
	return r.err
}

func (r *recorder) OnTransitionRejected(context.Context, transition.Request, error) error {
	r.rejected++
	return r.err
}

func (r *recorder) OnTechnicianClaimed(context.Context, id.JobID, id.TechnicianID) error {
	r.claimed++
	return r.err
}

func (r *recorder) OnTechnicianReleased(context.Context, id.JobID, id.TechnicianID) error {
	r.released++
	return r.err
}

func (r *recorder) OnGeofenceTriggered(context.Context, transition.Request, float64) error {
	r.geofence++
	return r.err
}

func (r *recorder) OnShutdown(context.Context) error {
	r.shutdown++
	return r.err
}

// appliedOnly opts into a single hook.
type appliedOnly struct {
	applied int
}

func (a *appliedOnly) Name() string { return "applied-only" }

func (a *appliedOnly) OnTransitionApplied(context.Context, *job.Job, job.Status, transition.Request) error {
	a.applied++
	return nil
}

func testJob() *job.Job {
	return &job.Job{ID: id.NewJobID(), Status: job.StatusAssigned}
}

func TestRegistryDispatchesToAllHooks(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	rec := &recorder{name: "recorder"}
	r.Register(rec)

	ctx := context.Background()
	req := transition.Request{JobID: id.NewJobID(), Target: job.StatusEnRoute, Source: transition.SourceManual}

	r.EmitTransitionApplied(ctx, testJob(), job.StatusAssigned, req)
	r.EmitTransitionRejected(ctx, req, errors.New("nope"))
	r.EmitTechnicianClaimed(ctx, id.NewJobID(), id.NewTechnicianID())
	r.EmitTechnicianReleased(ctx, id.NewJobID(), id.NewTechnicianID())
	r.EmitGeofenceTriggered(ctx, req, 42.0)
	r.EmitShutdown(ctx)

	tests := []struct {
		name string
		got  int
	}{
		{"applied", rec.applied},
		{"rejected", rec.rejected},
		{"claimed", rec.claimed},
		{"released", rec.released},
		{"geofence", rec.geofence},
		{"shutdown", rec.shutdown},
	}
	for _, tt := range tests {
		if tt.got != 1 {
			t.Fatalf("%s hook called %d times, want 1", tt.name, tt.got)
		}
	}
}

func TestRegistryOnlyNotifiesImplementedHooks(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	a := &appliedOnly{}
	r.Register(a)

	ctx := context.Background()
	req := transition.Request{JobID: id.NewJobID(), Target: job.StatusEnRoute, Source: transition.SourceGeofence}

	// These emits have no registered hook; they must be harmless.
	r.EmitTransitionRejected(ctx, req, errors.New("nope"))
	r.EmitGeofenceTriggered(ctx, req, 10)
	r.EmitShutdown(ctx)

	r.EmitTransitionApplied(ctx, testJob(), job.StatusAssigned, req)
	if a.applied != 1 {
		t.Fatalf("applied hook called %d times, want 1", a.applied)
	}
}

func TestRegistryHookErrorsAreSwallowed(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	failing := &recorder{name: "failing", err: errors.New("hook exploded")}
	healthy := &recorder{name: "healthy"}
	r.Register(failing)
	r.Register(healthy)

	// A failing hook must not prevent later extensions from running.
	r.EmitTransitionApplied(context.Background(), testJob(), job.StatusAssigned, transition.Request{})

	if failing.applied != 1 || healthy.applied != 1 {
		t.Fatalf("applied counts = %d, %d; want 1, 1", failing.applied, healthy.applied)
	}
}

func TestRegistryOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	first := &recorder{name: "first"}
	second := &recorder{name: "second"}
	r.Register(first)
	r.Register(second)

	exts := r.Extensions()
	if len(exts) != 2 || exts[0].Name() != "first" || exts[1].Name() != "second" {
		t.Fatalf("Extensions() order wrong: %v", exts)
	}
}
