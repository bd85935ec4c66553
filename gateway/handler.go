package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/fieldops"
	"github.com/xraph/fieldops/event"
	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/scope"
	"github.com/xraph/fieldops/sideeffect"
	"github.com/xraph/fieldops/stream"
	"github.com/xraph/fieldops/technician"
	"github.com/xraph/fieldops/transition"
)

// Submitter is the transition entry point the gateway drives. The
// arbiter implements it.
type Submitter interface {
	Submit(ctx context.Context, req transition.Request) (*transition.Result, error)
}

// Handler dispatches FWP frames to coordinator operations.
type Handler struct {
	submitter      Submitter
	jobs           job.Store
	technicians    technician.Store
	events         event.Store
	deadLetters    *sideeffect.Service
	dispatcher     sideeffect.Dispatcher
	broker         *stream.Broker
	trackingSecret []byte
	logger         *slog.Logger
}

// HandlerConfig carries the collaborators a Handler needs.
type HandlerConfig struct {
	Submitter      Submitter
	Jobs           job.Store
	Technicians    technician.Store
	Events         event.Store
	DeadLetters    *sideeffect.Service
	Dispatcher     sideeffect.Dispatcher
	Broker         *stream.Broker
	TrackingSecret []byte
	Logger         *slog.Logger
}

// NewHandler creates an FWP method handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		submitter:      cfg.Submitter,
		jobs:           cfg.Jobs,
		technicians:    cfg.Technicians,
		events:         cfg.Events,
		deadLetters:    cfg.DeadLetters,
		dispatcher:     cfg.Dispatcher,
		broker:         cfg.Broker,
		trackingSecret: cfg.TrackingSecret,
		logger:         logger,
	}
}

// Handle processes a single FWP request frame and returns a response.
func (h *Handler) Handle(ctx context.Context, frame *Frame, conn *Connection) *Frame {
	// Inject scope from connection identity.
	if conn.Identity != nil {
		ctx = scope.Restore(ctx, conn.Identity.CompanyID, conn.Identity.Subject)
	}

	switch frame.Method {
	case MethodJobGet:
		return h.handleJobGet(ctx, frame)
	case MethodJobList:
		return h.handleJobList(ctx, frame)
	case MethodJobTransition:
		return h.handleJobTransition(ctx, frame, conn)
	case MethodJobTimeline:
		return h.handleJobTimeline(ctx, frame)
	case MethodJobTrack:
		return h.handleJobTrack(ctx, frame)
	case MethodLocation:
		return h.handleLocation(ctx, frame, conn)
	case MethodSubscribe:
		return h.handleSubscribe(frame)
	case MethodUnsubscribe:
		return h.handleUnsubscribe(frame)
	case MethodDeadLetterList:
		return h.handleDeadLetterList(ctx, frame)
	case MethodDeadLetterReplay:
		return h.handleDeadLetterReplay(ctx, frame)
	case MethodStats:
		return h.handleStats(frame)
	default:
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "unknown method: "+frame.Method)
	}
}

// mustResponseFrame creates a response frame, returning an error frame
// on marshal failure.
func mustResponseFrame(frameID string, data any) *Frame {
	resp, err := NewResponseFrame(frameID, data)
	if err != nil {
		return NewErrorFrame(frameID, ErrCodeInternal, "marshal response: "+err.Error())
	}
	return resp
}

func (h *Handler) handleJobGet(ctx context.Context, frame *Frame) *Frame {
	var req JobGetRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid job ID: "+err.Error())
	}

	j, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeNotFound, "job not found")
	}

	return mustResponseFrame(frame.ID, j)
}

func (h *Handler) handleJobList(ctx context.Context, frame *Frame) *Frame {
	var req JobListRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	status := job.Status(req.Status)
	if !status.Valid() {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "unknown status: "+req.Status)
	}

	companyID, _ := scope.Capture(ctx)
	jobs, err := h.jobs.ListJobsByStatus(ctx, status, job.ListOpts{
		Limit:     req.Limit,
		Offset:    req.Offset,
		CompanyID: companyID,
	})
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeInternal, "list failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, jobs)
}

func (h *Handler) handleJobTransition(ctx context.Context, frame *Frame, conn *Connection) *Frame {
	var req JobTransitionRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid job ID: "+err.Error())
	}

	treq := transition.Request{
		JobID:     jobID,
		Target:    job.Status(req.Target),
		Source:    transition.SourceManual,
		Timestamp: req.Timestamp,
	}
	if conn.Identity != nil {
		treq.ActorID = conn.Identity.Subject
	}
	if req.TechnicianID != "" {
		techID, parseErr := id.ParseTechnicianID(req.TechnicianID)
		if parseErr != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid technician ID: "+parseErr.Error())
		}
		treq.TechnicianID = techID
	}

	res, err := h.submitter.Submit(ctx, treq)
	if err != nil {
		return h.transitionErrorFrame(frame.ID, err)
	}

	return mustResponseFrame(frame.ID, JobTransitionResponse{
		JobID: res.Job.ID.String(),
		From:  string(res.From),
		To:    string(res.Job.Status),
		NoOp:  res.NoOp,
	})
}

// transitionErrorFrame maps coordinator errors to wire error codes.
func (h *Handler) transitionErrorFrame(frameID string, err error) *Frame {
	switch {
	case errors.Is(err, fieldops.ErrJobNotFound),
		errors.Is(err, fieldops.ErrTechnicianNotFound):
		return NewErrorFrame(frameID, ErrCodeNotFound, err.Error())
	case errors.Is(err, fieldops.ErrInvalidTransition),
		errors.Is(err, fieldops.ErrBreakOpen),
		errors.Is(err, fieldops.ErrTechnicianConflict):
		return NewErrorFrame(frameID, ErrCodeConflict, err.Error())
	case errors.Is(err, fieldops.ErrTechnicianMissing):
		return NewErrorFrame(frameID, ErrCodeBadRequest, err.Error())
	default:
		return NewErrorFrame(frameID, ErrCodeInternal, "transition failed: "+err.Error())
	}
}

func (h *Handler) handleJobTimeline(ctx context.Context, frame *Frame) *Frame {
	var req JobTimelineRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid job ID: "+err.Error())
	}

	timeline, err := h.events.ListEventsForJob(ctx, jobID, req.Limit)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeInternal, "timeline failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, timeline)
}

func (h *Handler) handleJobTrack(ctx context.Context, frame *Frame) *Frame {
	var req JobTrackRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	jobID, err := job.VerifyTrackingToken(h.trackingSecret, req.Token, time.Now().UTC())
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeUnauthorized, "invalid or expired tracking token")
	}

	j, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeNotFound, "job not found")
	}

	resp := JobTrackResponse{
		JobID:       j.ID.String(),
		Status:      string(j.Status),
		Address:     j.Address,
		ScheduledAt: j.ScheduledAt,
	}

	// Expose the technician position only while they are heading to or
	// working the job.
	if j.Status.Active() && !j.AssignedTechnicianID.IsNil() {
		if tech, techErr := h.technicians.GetTechnician(ctx, j.AssignedTechnicianID); techErr == nil {
			resp.TechnicianName = tech.Name
			resp.TechnicianLat = tech.Location.Lat
			resp.TechnicianLon = tech.Location.Lon
			resp.LocatedAt = tech.LocatedAt
		}
	}

	return mustResponseFrame(frame.ID, resp)
}

func (h *Handler) handleLocation(ctx context.Context, frame *Frame, conn *Connection) *Frame {
	var req LocationRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	// Technician credentials pin the sample to their own ID.
	rawID := req.TechnicianID
	if conn.Identity != nil && conn.Identity.TechnicianID != "" {
		rawID = conn.Identity.TechnicianID
	}
	techID, err := id.ParseTechnicianID(rawID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid technician ID: "+err.Error())
	}

	sample := stream.Sample{
		TechnicianID:   techID,
		Location:       geo.Point{Lat: req.Lat, Lon: req.Lon},
		AccuracyMeters: req.AccuracyMeters,
		RecordedAt:     req.RecordedAt,
	}
	if err := h.broker.IngestSample(ctx, sample); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "sample rejected: "+err.Error())
	}

	return mustResponseFrame(frame.ID, map[string]string{"status": "accepted"})
}

func (h *Handler) handleSubscribe(frame *Frame) *Frame {
	var req SubscribeRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	if err := stream.ValidateTopic(req.Channel); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error())
	}

	// Actual subscription is done in the server loop after the response
	// is sent.
	return mustResponseFrame(frame.ID, map[string]string{
		"channel": req.Channel,
		"status":  "subscribed",
	})
}

func (h *Handler) handleUnsubscribe(frame *Frame) *Frame {
	var req UnsubscribeRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	return mustResponseFrame(frame.ID, map[string]string{
		"channel": req.Channel,
		"status":  "unsubscribed",
	})
}

func (h *Handler) handleDeadLetterList(ctx context.Context, frame *Frame) *Frame {
	var req DeadLetterListRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
		}
	}

	entries, err := h.deadLetters.DeadLetterStore().ListDeadLetters(ctx, sideeffect.ListOpts{
		Limit:  req.Limit,
		Offset: req.Offset,
		Kind:   job.EffectKind(req.Kind),
	})
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeInternal, "list failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, entries)
}

func (h *Handler) handleDeadLetterReplay(ctx context.Context, frame *Frame) *Frame {
	var req DeadLetterReplayRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}

	entryID, err := id.ParseDeadLetterID(req.EntryID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid entry ID: "+err.Error())
	}

	if err := h.deadLetters.Replay(ctx, entryID, h.dispatcher); err != nil {
		if errors.Is(err, fieldops.ErrDeadLetterNotFound) {
			return NewErrorFrame(frame.ID, ErrCodeNotFound, "dead letter entry not found")
		}
		return NewErrorFrame(frame.ID, ErrCodeInternal, "replay failed: "+err.Error())
	}

	return mustResponseFrame(frame.ID, map[string]string{"status": "replayed"})
}

func (h *Handler) handleStats(frame *Frame) *Frame {
	return mustResponseFrame(frame.ID, map[string]any{
		"broker": h.broker.Stats(),
	})
}
