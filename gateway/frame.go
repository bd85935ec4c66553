// Package gateway implements the FieldOps Wire Protocol (FWP) — a
// message-based protocol for dispatcher consoles, technician apps, and
// customer tracking pages. FWP is transported over WebSocket (primary)
// and HTTP (one-shot RPC).
package gateway

import (
	"encoding/json"
	"time"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
)

// Frame is the FWP message envelope. Every message exchanged over the
// protocol is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// Method names the operation for request frames (e.g., "job.transition").
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`

	// CorrelID links a response to its originating request.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Token carries auth credentials (typically only on the auth frame).
	Token string `json:"token,omitempty" msgpack:"token,omitempty"`

	// CompanyID scopes the request to a tenant company.
	CompanyID string `json:"company_id,omitempty" msgpack:"company_id,omitempty"`

	// Data carries the method-specific payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Channel identifies the subscription channel for event/subscribe frames.
	Channel string `json:"channel,omitempty" msgpack:"channel,omitempty"`

	// Credits replenishes flow-control credits (backpressure).
	Credits int `json:"credits,omitempty" msgpack:"credits,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in a response or error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

// ── Well-known methods ──────────────────────────────

const (
	// Auth methods.
	MethodAuth = "auth"

	// Job methods.
	MethodJobGet        = "job.get"
	MethodJobList       = "job.list"
	MethodJobTransition = "job.transition"
	MethodJobTimeline   = "job.timeline"
	MethodJobTrack      = "job.track"

	// Technician methods.
	MethodLocation = "technician.location"

	// Subscription methods.
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"

	// Admin methods.
	MethodDeadLetterList   = "deadletter.list"
	MethodDeadLetterReplay = "deadletter.replay"
	MethodStats            = "stats"
)

// ── Well-known error codes ──────────────────────────

const (
	ErrCodeBadRequest     = 400
	ErrCodeUnauthorized   = 401
	ErrCodeForbidden      = 403
	ErrCodeNotFound       = 404
	ErrCodeMethodNotFound = 405
	ErrCodeConflict       = 409
	ErrCodeInternal       = 500
)

// ── Request/Response payloads ───────────────────────

// AuthRequest is sent by clients to authenticate.
type AuthRequest struct {
	Token  string `json:"token"`
	Format string `json:"format,omitempty"` // "json" (default) or "msgpack"
}

// AuthResponse is returned after successful authentication.
type AuthResponse struct {
	Format    string `json:"format"`
	SessionID string `json:"session_id"`
}

// JobGetRequest retrieves a job by ID.
type JobGetRequest struct {
	JobID string `json:"job_id"`
}

// JobListRequest lists jobs by status.
type JobListRequest struct {
	Status string `json:"status"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// JobTransitionRequest asks for a job status transition.
type JobTransitionRequest struct {
	JobID        string    `json:"job_id"`
	Target       string    `json:"target"`
	TechnicianID string    `json:"technician_id,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// JobTransitionResponse confirms an applied (or collapsed) transition.
type JobTransitionResponse struct {
	JobID string `json:"job_id"`
	From  string `json:"from"`
	To    string `json:"to"`
	NoOp  bool   `json:"no_op,omitempty"`
}

// JobTimelineRequest gets the transition event timeline for a job.
type JobTimelineRequest struct {
	JobID string `json:"job_id"`
	Limit int    `json:"limit,omitempty"`
}

// JobTrackRequest is the customer-facing tracking view, authenticated
// by the job's tracking token rather than an API key.
type JobTrackRequest struct {
	Token string `json:"token"`
}

// JobTrackResponse is the reduced job view a tracking page sees.
type JobTrackResponse struct {
	JobID          string     `json:"job_id"`
	Status         string     `json:"status"`
	Address        string     `json:"address,omitempty"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	TechnicianName string     `json:"technician_name,omitempty"`
	TechnicianLat  float64    `json:"technician_lat,omitempty"`
	TechnicianLon  float64    `json:"technician_lon,omitempty"`
	LocatedAt      *time.Time `json:"located_at,omitempty"`
}

// LocationRequest reports a technician position sample.
type LocationRequest struct {
	TechnicianID   string    `json:"technician_id"`
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_meters,omitempty"`
	RecordedAt     time.Time `json:"recorded_at,omitempty"`
}

// SubscribeRequest subscribes to a topic channel.
type SubscribeRequest struct {
	Channel string `json:"channel"`
	Credits int    `json:"credits,omitempty"` // Initial credits (0 = use default)
}

// UnsubscribeRequest removes a subscription.
type UnsubscribeRequest struct {
	Channel string `json:"channel"`
}

// DeadLetterListRequest lists dead-lettered side effects.
type DeadLetterListRequest struct {
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// DeadLetterReplayRequest re-dispatches one dead-lettered effect.
type DeadLetterReplayRequest struct {
	EntryID string `json:"entry_id"`
}

// NewRequestFrame creates a new request frame.
func NewRequestFrame(id, method string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        id,
		Type:      FrameRequest,
		Method:    method,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponseFrame creates a response to a request.
func NewResponseFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        generateFrameID(),
		Type:      FrameResponse,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a request.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:       generateFrameID(),
		Type:     FrameErr,
		CorrelID: correlID,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewEventFrame creates an event frame for a subscription channel.
func NewEventFrame(channel string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        generateFrameID(),
		Type:      FrameEvent,
		Channel:   channel,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GenerateFrameID returns a new unique frame ID.
// Uses a simple timestamp approach for performance.
func GenerateFrameID() string {
	return time.Now().UTC().Format("20060102150405.000000000")
}

func generateFrameID() string { return GenerateFrameID() }
