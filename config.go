package fieldops

import "time"

// Config holds configuration for the Coordinator.
type Config struct {
	// ArrivalProximityMeters is the radius around a job's location within
	// which an Assigned job's technician is considered departing (EnRoute).
	ArrivalProximityMeters float64

	// ArrivalConfirmMeters is the radius within which an EnRoute
	// technician is considered on site (InProgress).
	ArrivalConfirmMeters float64

	// AccuracyLimitMeters drops location samples whose reported accuracy
	// is worse than this value. Zero disables the filter.
	AccuracyLimitMeters float64

	// SamplesPerSecond rate-limits location samples per technician.
	// Zero disables rate limiting.
	SamplesPerSecond float64

	// SampleBurst is the per-technician burst allowance for samples.
	SampleBurst int

	// CommitAttempts is how many times a failed atomic commit is retried
	// before the transition is reported as failed.
	CommitAttempts int

	// ApplyTimeout bounds a single transition application, including the
	// atomic commit. Zero means no timeout.
	ApplyTimeout time.Duration

	// DispatchTimeout bounds a single side-effect dispatch (notification
	// or travel-metrics request).
	DispatchTimeout time.Duration

	// TrackingTokenTTL is the validity window of customer tracking tokens.
	TrackingTokenTTL time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ArrivalProximityMeters: 500,
		ArrivalConfirmMeters:   50,
		AccuracyLimitMeters:    100,
		SamplesPerSecond:       1,
		SampleBurst:            5,
		CommitAttempts:         3,
		ApplyTimeout:           10 * time.Second,
		DispatchTimeout:        15 * time.Second,
		TrackingTokenTTL:       72 * time.Hour,
		ShutdownTimeout:        30 * time.Second,
	}
}
