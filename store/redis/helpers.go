package redis

import (
	"errors"

	"github.com/xraph/fieldops"
)

// isDomainError reports whether err is a domain rejection that must pass
// through to the caller unwrapped rather than being treated as a
// transient persistence failure.
func isDomainError(err error) bool {
	return errors.Is(err, fieldops.ErrJobNotFound) ||
		errors.Is(err, fieldops.ErrTechnicianNotFound) ||
		errors.Is(err, fieldops.ErrTechnicianConflict)
}
