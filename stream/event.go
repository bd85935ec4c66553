// Package stream ingests technician location samples and fans out
// real-time events to subscribers. It is the hot path of the system: a
// sample passes an accuracy filter and a per-technician rate limiter,
// is persisted best-effort as the technician's last known position, and
// is then delivered to sinks (the geofence engine) and to topic
// subscribers (connected gateway clients).
//
// The broker also bridges the ext hook system to subscribers, so a
// customer watching a tracking page sees status changes and proximity
// triggers on the same channel as position updates.
package stream

import (
	"encoding/json"
	"time"

	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
)

// Sample is one technician position report.
type Sample struct {
	TechnicianID id.TechnicianID `json:"technician_id"`

	Location geo.Point `json:"location"`

	// AccuracyMeters is the reported horizontal accuracy radius. Samples
	// worse than the broker's accuracy limit are dropped.
	AccuracyMeters float64 `json:"accuracy_m,omitempty"`

	// RecordedAt is when the device captured the fix, not when it
	// reached the server.
	RecordedAt time.Time `json:"recorded_at"`
}

// EventType identifies the kind of stream event.
type EventType string

const (
	// EventLocationSample is a technician position update.
	EventLocationSample EventType = "location.sample"
	// EventJobTransitioned is a committed job status change.
	EventJobTransitioned EventType = "job.transitioned"
	// EventGeofenceTriggered is a proximity threshold crossing.
	EventGeofenceTriggered EventType = "geofence.triggered"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the stream event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// LocationEventData is the payload for location sample events.
type LocationEventData struct {
	TechnicianID string  `json:"technician_id"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	AccuracyM    float64 `json:"accuracy_m,omitempty"`
	RecordedAt   string  `json:"recorded_at"`
}

// TransitionEventData is the payload for job transition events.
type TransitionEventData struct {
	JobID        string `json:"job_id"`
	From         string `json:"from"`
	To           string `json:"to"`
	Source       string `json:"source"`
	TechnicianID string `json:"technician_id,omitempty"`
}

// GeofenceEventData is the payload for proximity trigger events.
type GeofenceEventData struct {
	JobID          string  `json:"job_id"`
	Target         string  `json:"target"`
	DistanceMeters float64 `json:"distance_m"`
}
