package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/sideeffect"
	"github.com/xraph/fieldops/store/memory"
	"github.com/xraph/fieldops/stream"
	"github.com/xraph/fieldops/technician"
	"github.com/xraph/fieldops/transition"
)

var testSecret = []byte("gateway-test-secret")

// fakeSubmitter records transition requests and returns a canned result.
type fakeSubmitter struct {
	reqs []transition.Request
	res  *transition.Result
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, req transition.Request) (*transition.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

// nopDispatcher satisfies sideeffect.Dispatcher for replay wiring.
type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, *job.Job, job.Effect) error { return nil }

func newTestHandler(t *testing.T, sub *fakeSubmitter) (*Handler, *memory.Store) {
	t.Helper()

	s := memory.New()
	logger := slog.New(slog.DiscardHandler)
	broker := stream.NewBroker(logger, stream.WithTechnicianStore(s))

	h := NewHandler(HandlerConfig{
		Submitter:      sub,
		Jobs:           s,
		Technicians:    s,
		Events:         s,
		DeadLetters:    sideeffect.NewService(s, s),
		Dispatcher:     nopDispatcher{},
		Broker:         broker,
		TrackingSecret: testSecret,
		Logger:         logger,
	})
	return h, s
}

func testConn(scopes ...string) *Connection {
	return NewConnection("conn-1", &Identity{
		Subject:   "dispatcher-1",
		CompanyID: "acme",
		Scopes:    scopes,
	}, &JSONCodec{})
}

func requestFrame(t *testing.T, method string, payload any) *Frame {
	t.Helper()
	f, err := NewRequestFrame("req-1", method, payload)
	if err != nil {
		t.Fatalf("NewRequestFrame: %v", err)
	}
	return f
}

func testTechnician(tid id.TechnicianID) *technician.Technician {
	return &technician.Technician{
		Entity:      fieldops.NewEntity(),
		ID:          tid,
		CompanyID:   "acme",
		Name:        "Dana Reyes",
		IsAvailable: true,
	}
}

func seedJob(t *testing.T, s *memory.Store, status job.Status) *job.Job {
	t.Helper()
	j := &job.Job{
		Entity:      fieldops.NewEntity(),
		ID:          id.NewJobID(),
		CompanyID:   "acme",
		Title:       "fix furnace",
		Status:      status,
		Location:    geo.Point{Lat: 34.0522, Lon: -118.2437},
		Address:     "500 S Grand Ave",
		ScheduledAt: time.Now().UTC(),
	}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

func TestHandler_JobGet(t *testing.T) {
	h, s := newTestHandler(t, &fakeSubmitter{})
	j := seedJob(t, s, job.StatusPending)

	frame := requestFrame(t, MethodJobGet, JobGetRequest{JobID: j.ID.String()})
	resp := h.Handle(context.Background(), frame, testConn(ScopeJobRead))

	if resp.Type != FrameResponse {
		t.Fatalf("resp type = %q, error = %+v", resp.Type, resp.Error)
	}
	var got job.Job
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Title != "fix furnace" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestHandler_JobGetNotFound(t *testing.T) {
	h, _ := newTestHandler(t, &fakeSubmitter{})

	frame := requestFrame(t, MethodJobGet, JobGetRequest{JobID: id.NewJobID().String()})
	resp := h.Handle(context.Background(), frame, testConn(ScopeJobRead))

	if resp.Type != FrameErr || resp.Error.Code != ErrCodeNotFound {
		t.Fatalf("resp = %+v, want 404 error", resp)
	}
}

func TestHandler_JobTransition(t *testing.T) {
	jobID := id.NewJobID()
	sub := &fakeSubmitter{
		res: &transition.Result{
			Job:  &job.Job{ID: jobID, Status: job.StatusEnRoute},
			From: job.StatusAssigned,
		},
	}
	h, _ := newTestHandler(t, sub)

	frame := requestFrame(t, MethodJobTransition, JobTransitionRequest{
		JobID:  jobID.String(),
		Target: "en_route",
	})
	resp := h.Handle(context.Background(), frame, testConn(ScopeJobWrite))

	if resp.Type != FrameResponse {
		t.Fatalf("resp type = %q, error = %+v", resp.Type, resp.Error)
	}
	var got JobTransitionResponse
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.From != "assigned" || got.To != "en_route" {
		t.Errorf("transition = %s→%s", got.From, got.To)
	}

	if len(sub.reqs) != 1 {
		t.Fatalf("submitted %d requests, want 1", len(sub.reqs))
	}
	if sub.reqs[0].Source != transition.SourceManual {
		t.Errorf("Source = %q, want manual", sub.reqs[0].Source)
	}
	if sub.reqs[0].ActorID != "dispatcher-1" {
		t.Errorf("ActorID = %q, want connection subject", sub.reqs[0].ActorID)
	}
}

func TestHandler_JobTransitionErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid transition", fieldops.ErrInvalidTransition, ErrCodeConflict},
		{"open break", fieldops.ErrBreakOpen, ErrCodeConflict},
		{"technician conflict", fieldops.ErrTechnicianConflict, ErrCodeConflict},
		{"technician missing", fieldops.ErrTechnicianMissing, ErrCodeBadRequest},
		{"job not found", fieldops.ErrJobNotFound, ErrCodeNotFound},
		{"persistence", fieldops.ErrPersistence, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, &fakeSubmitter{err: tt.err})
			frame := requestFrame(t, MethodJobTransition, JobTransitionRequest{
				JobID:  id.NewJobID().String(),
				Target: "en_route",
			})
			resp := h.Handle(context.Background(), frame, testConn(ScopeJobWrite))
			if resp.Type != FrameErr {
				t.Fatalf("resp type = %q, want error", resp.Type)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code = %d, want %d", resp.Error.Code, tt.code)
			}
		})
	}
}

func TestHandler_JobTrack(t *testing.T) {
	h, s := newTestHandler(t, &fakeSubmitter{})
	j := seedJob(t, s, job.StatusPending)

	token := job.NewTrackingToken(testSecret, j.ID, time.Now().UTC().Add(time.Hour))

	frame := requestFrame(t, MethodJobTrack, JobTrackRequest{Token: token})
	// Tracking needs no scopes at all.
	resp := h.Handle(context.Background(), frame, testConn())

	if resp.Type != FrameResponse {
		t.Fatalf("resp type = %q, error = %+v", resp.Type, resp.Error)
	}
	var got JobTrackResponse
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.JobID != j.ID.String() {
		t.Errorf("JobID = %q", got.JobID)
	}
	if got.Status != "pending" {
		t.Errorf("Status = %q", got.Status)
	}
	if got.TechnicianName != "" {
		t.Error("inactive job must not expose a technician")
	}
}

func TestHandler_JobTrackBadToken(t *testing.T) {
	h, _ := newTestHandler(t, &fakeSubmitter{})

	frame := requestFrame(t, MethodJobTrack, JobTrackRequest{Token: "garbage"})
	resp := h.Handle(context.Background(), frame, testConn())

	if resp.Type != FrameErr || resp.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("resp = %+v, want 401 error", resp)
	}
}

func TestHandler_Location(t *testing.T) {
	h, s := newTestHandler(t, &fakeSubmitter{})

	techID := id.NewTechnicianID()
	if err := s.CreateTechnician(context.Background(), testTechnician(techID)); err != nil {
		t.Fatalf("CreateTechnician: %v", err)
	}

	frame := requestFrame(t, MethodLocation, LocationRequest{
		TechnicianID: techID.String(),
		Lat:          34.05,
		Lon:          -118.24,
		RecordedAt:   time.Now().UTC(),
	})
	resp := h.Handle(context.Background(), frame, testConn(ScopeLocationWrite))

	if resp.Type != FrameResponse {
		t.Fatalf("resp type = %q, error = %+v", resp.Type, resp.Error)
	}

	// The broker's technician store write-through should have recorded
	// the position.
	got, err := s.GetTechnician(context.Background(), techID)
	if err != nil {
		t.Fatalf("GetTechnician: %v", err)
	}
	if got.Location.Lat != 34.05 {
		t.Errorf("Location.Lat = %v, want 34.05", got.Location.Lat)
	}
}

func TestHandler_LocationPinnedToIdentity(t *testing.T) {
	h, s := newTestHandler(t, &fakeSubmitter{})

	ownID := id.NewTechnicianID()
	otherID := id.NewTechnicianID()
	for _, tid := range []id.TechnicianID{ownID, otherID} {
		if err := s.CreateTechnician(context.Background(), testTechnician(tid)); err != nil {
			t.Fatalf("CreateTechnician: %v", err)
		}
	}

	conn := NewConnection("conn-2", &Identity{
		Subject:      "tech-app",
		TechnicianID: ownID.String(),
		Scopes:       []string{ScopeLocationWrite},
	}, &JSONCodec{})

	// A technician credential claiming someone else's ID is pinned back
	// to its own.
	frame := requestFrame(t, MethodLocation, LocationRequest{
		TechnicianID: otherID.String(),
		Lat:          34.06,
		Lon:          -118.25,
		RecordedAt:   time.Now().UTC(),
	})
	resp := h.Handle(context.Background(), frame, conn)
	if resp.Type != FrameResponse {
		t.Fatalf("resp type = %q, error = %+v", resp.Type, resp.Error)
	}

	own, _ := s.GetTechnician(context.Background(), ownID)
	other, _ := s.GetTechnician(context.Background(), otherID)
	if own.LocatedAt == nil {
		t.Error("sample not attributed to the credential's technician")
	}
	if other.LocatedAt != nil {
		t.Error("sample attributed to a spoofed technician ID")
	}
}

func TestHandler_SubscribeValidation(t *testing.T) {
	h, _ := newTestHandler(t, &fakeSubmitter{})

	good := requestFrame(t, MethodSubscribe, SubscribeRequest{Channel: stream.TopicJobs})
	resp := h.Handle(context.Background(), good, testConn(ScopeSubscribe))
	if resp.Type != FrameResponse {
		t.Fatalf("valid channel rejected: %+v", resp.Error)
	}

	bad := requestFrame(t, MethodSubscribe, SubscribeRequest{Channel: "bogus:topic:extra"})
	resp = h.Handle(context.Background(), bad, testConn(ScopeSubscribe))
	if resp.Type != FrameErr || resp.Error.Code != ErrCodeBadRequest {
		t.Fatalf("invalid channel accepted: %+v", resp)
	}
}

func TestHandler_DeadLetterListAndReplay(t *testing.T) {
	h, s := newTestHandler(t, &fakeSubmitter{})
	ctx := context.Background()

	j := seedJob(t, s, job.StatusEnRoute)
	svc := sideeffect.NewService(s, s)
	if err := svc.Push(ctx, j, job.Effect{Kind: job.EffectNotifyCustomer}, 3, fieldops.ErrPersistence); err != nil {
		t.Fatalf("Push: %v", err)
	}

	list := requestFrame(t, MethodDeadLetterList, DeadLetterListRequest{})
	resp := h.Handle(ctx, list, testConn(ScopeDeadLetterRead))
	if resp.Type != FrameResponse {
		t.Fatalf("list resp = %+v", resp.Error)
	}
	var entries []*sideeffect.Entry
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	replay := requestFrame(t, MethodDeadLetterReplay, DeadLetterReplayRequest{
		EntryID: entries[0].ID.String(),
	})
	resp = h.Handle(ctx, replay, testConn(ScopeDeadLetterWrite))
	if resp.Type != FrameResponse {
		t.Fatalf("replay resp = %+v", resp.Error)
	}

	entry, err := s.GetDeadLetter(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("GetDeadLetter: %v", err)
	}
	if entry.ReplayedAt == nil {
		t.Error("entry not marked replayed")
	}
}

func TestHandler_UnknownMethod(t *testing.T) {
	h, _ := newTestHandler(t, &fakeSubmitter{})

	frame := requestFrame(t, "no.such.method", nil)
	resp := h.Handle(context.Background(), frame, testConn(ScopeAll))

	if resp.Type != FrameErr || resp.Error.Code != ErrCodeMethodNotFound {
		t.Fatalf("resp = %+v, want method-not-found error", resp)
	}
}
