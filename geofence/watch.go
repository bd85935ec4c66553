package geofence

import (
	"time"

	"github.com/xraph/fieldops/geo"
	"github.com/xraph/fieldops/id"
	"github.com/xraph/fieldops/job"
)

// watch is the engine's working record for one observed job. All fields
// are guarded by the engine mutex.
type watch struct {
	id     id.WatchID
	jobID  id.JobID
	techID id.TechnicianID

	// site is the job location the distance is measured against.
	site geo.Point

	// status is the job status this watch is currently evaluating for:
	// assigned arms the departure threshold, en_route the arrival one.
	status job.Status

	// startedAt bounds sample recency: samples recorded before the watch
	// began belong to a previous leg and are discarded.
	startedAt time.Time

	// suppressed is set after a trigger fires and cleared when the
	// resulting transition is observed (or its submission fails), so a
	// stream of in-range samples produces one request, not one per sample.
	suppressed bool

	lastDistance float64
	lastSampleAt time.Time
}

// WatchInfo is a point-in-time snapshot of an active watch.
type WatchInfo struct {
	ID           id.WatchID      `json:"id"`
	JobID        id.JobID        `json:"job_id"`
	TechnicianID id.TechnicianID `json:"technician_id"`
	Status       job.Status      `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	LastDistance float64         `json:"last_distance_m,omitempty"`
	LastSampleAt time.Time       `json:"last_sample_at"`
	Suppressed   bool            `json:"suppressed,omitempty"`
}

func (w *watch) info() WatchInfo {
	return WatchInfo{
		ID:           w.id,
		JobID:        w.jobID,
		TechnicianID: w.techID,
		Status:       w.status,
		StartedAt:    w.startedAt,
		LastDistance: w.lastDistance,
		LastSampleAt: w.lastSampleAt,
		Suppressed:   w.suppressed,
	}
}
