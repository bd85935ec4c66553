package fieldops

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("fieldops: no store configured")
	ErrStoreClosed = errors.New("fieldops: store closed")
	ErrPersistence = errors.New("fieldops: atomic write failed")

	// Not found errors.
	ErrJobNotFound        = errors.New("fieldops: job not found")
	ErrTechnicianNotFound = errors.New("fieldops: technician not found")
	ErrContractNotFound   = errors.New("fieldops: contract not found")
	ErrEventNotFound      = errors.New("fieldops: event not found")
	ErrDeadLetterNotFound = errors.New("fieldops: dead letter entry not found")
	ErrNodeNotFound       = errors.New("fieldops: node not found")

	// Conflict errors.
	ErrJobAlreadyExists        = errors.New("fieldops: job already exists")
	ErrTechnicianAlreadyExists = errors.New("fieldops: technician already exists")
	ErrDuplicateContract       = errors.New("fieldops: duplicate contract")
	ErrTechnicianConflict      = errors.New("fieldops: technician already claimed by another job")

	// State errors.
	ErrThrottled         = errors.New("fieldops: submission throttled")
	ErrInvalidTransition = errors.New("fieldops: invalid status transition")
	ErrBreakOpen         = errors.New("fieldops: job has an open break")
	ErrTechnicianMissing = errors.New("fieldops: transition requires a technician")

	// Cluster errors.
	ErrLeadershipLost = errors.New("fieldops: leadership lost")
	ErrNotLeader      = errors.New("fieldops: not the leader")
)
