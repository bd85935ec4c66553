package admission

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-source-class behaviour such as rate limiting and
// in-flight caps.
type Config struct {
	// Source is the transition source class this config applies to.
	Source string

	// MaxInFlight limits how many requests of this class may be applying
	// simultaneously on this instance. Zero means no class-specific limit.
	MaxInFlight int

	// RateLimit is the maximum sustained submissions per second admitted
	// for this class. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// sourceState tracks runtime state for a single source class.
type sourceState struct {
	config   Config
	limiter  *rate.Limiter
	inFlight int
}

// Controller admits or rejects submissions per source class and per
// company. It is safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	sources   map[string]*sourceState
	companies map[string]*companyState
}

// NewController creates a Controller with the given class configurations.
// Classes not listed here have no limits.
func NewController(configs ...Config) *Controller {
	c := &Controller{
		sources:   make(map[string]*sourceState, len(configs)),
		companies: make(map[string]*companyState),
	}
	for _, cfg := range configs {
		c.sources[cfg.Source] = newSourceState(cfg)
	}
	return c
}

func newSourceState(cfg Config) *sourceState {
	ss := &sourceState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ss.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ss
}

// Acquire checks rate limits and in-flight caps for the given source
// class and company. If the request is admitted it increments the
// in-flight counters and returns true. The caller MUST call Release
// when the request settles.
//
// Every constraint is checked before any rate token is consumed: a
// request rejected at the company level leaves the class budget
// untouched.
func (c *Controller) Acquire(source, companyID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ss := c.sources[source]
	var cs *companyState
	if companyID != "" {
		cs = c.companies[companyKey(source, companyID)]
	}

	// In-flight caps first, they consume nothing.
	if ss != nil && ss.config.MaxInFlight > 0 && ss.inFlight >= ss.config.MaxInFlight {
		return false
	}
	if cs != nil && cs.maxInFlight > 0 && cs.inFlight >= cs.maxInFlight {
		return false
	}

	// Reserve the class token so it can be returned when the company
	// limiter rejects.
	if ss != nil && ss.limiter != nil {
		r := ss.limiter.Reserve()
		if !r.OK() || r.Delay() > 0 {
			r.Cancel()
			return false
		}
		if cs != nil && cs.limiter != nil && !cs.limiter.Allow() {
			r.Cancel()
			return false
		}
	} else if cs != nil && cs.limiter != nil && !cs.limiter.Allow() {
		return false
	}

	if cs != nil {
		cs.inFlight++
	}
	if ss != nil {
		ss.inFlight++
	}
	return true
}

// Release decrements the in-flight count for the source class and company.
func (c *Controller) Release(source, companyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ss := c.sources[source]; ss != nil && ss.inFlight > 0 {
		ss.inFlight--
	}

	if companyID != "" {
		if cs := c.companies[companyKey(source, companyID)]; cs != nil && cs.inFlight > 0 {
			cs.inFlight--
		}
	}
}

// SetConfig dynamically updates (or creates) a source class configuration.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.sources[cfg.Source]
	ss := newSourceState(cfg)

	// Preserve current in-flight count if reconfiguring.
	if existing != nil {
		ss.inFlight = existing.inFlight
	}
	c.sources[cfg.Source] = ss
}

// InFlight returns the current number of admitted requests for a class.
func (c *Controller) InFlight(source string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ss := c.sources[source]; ss != nil {
		return ss.inFlight
	}
	return 0
}
