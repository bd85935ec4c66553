package admission

import (
	"fmt"

	"golang.org/x/time/rate"
)

// CompanyConfig defines rate limits and an in-flight cap for a specific
// company on a specific source class, identified by the request scope's
// company ID.
type CompanyConfig struct {
	// Source is the source class this config applies to.
	Source string

	// CompanyID is the company identifier (the request scope's company).
	CompanyID string

	// RateLimit is the sustained submissions per second for this company.
	RateLimit float64

	// RateBurst is the burst size for the company's rate limiter.
	RateBurst int

	// MaxInFlight limits simultaneous requests for this company on this
	// class. Zero means no company-specific cap.
	MaxInFlight int
}

// companyState tracks runtime state for a single class+company pair.
type companyState struct {
	limiter     *rate.Limiter
	maxInFlight int
	inFlight    int
}

// companyKey builds the map key for a class+company pair.
func companyKey(source, companyID string) string {
	return fmt.Sprintf("%s:%s", source, companyID)
}

// SetCompanyConfig configures rate limits and an in-flight cap for a
// specific company on a specific source class. Calling this multiple
// times for the same class+company replaces the previous configuration.
func (c *Controller) SetCompanyConfig(cfg CompanyConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := companyKey(cfg.Source, cfg.CompanyID)
	existing := c.companies[key]

	cs := &companyState{
		maxInFlight: cfg.MaxInFlight,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		cs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	// Preserve current in-flight count if reconfiguring.
	if existing != nil {
		cs.inFlight = existing.inFlight
	}
	c.companies[key] = cs
}

// CompanyInFlight returns the current number of admitted requests for a
// class+company pair.
func (c *Controller) CompanyInFlight(source, companyID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cs := c.companies[companyKey(source, companyID)]; cs != nil {
		return cs.inFlight
	}
	return 0
}
