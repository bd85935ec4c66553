package gateway

import (
	"context"
	"fmt"
	"strings"
)

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the authenticated user/service ID.
	Subject string `json:"subject"`

	// CompanyID scopes to a tenant company.
	CompanyID string `json:"company_id,omitempty"`

	// TechnicianID is set for technician-app credentials; location
	// samples from this connection are attributed to it.
	TechnicianID string `json:"technician_id,omitempty"`

	// Scopes defines what operations are permitted.
	// Examples: "job:write", "location:write", "admin", "*"
	Scopes []string `json:"scopes,omitempty"`
}

// HasScope returns true if the identity has the given scope.
// A wildcard "*" scope grants all permissions.
func (id *Identity) HasScope(scope string) bool {
	for _, s := range id.Scopes {
		if s == "*" || s == scope {
			return true
		}
	}
	return false
}

// Authenticator validates credentials and returns an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// ErrUnauthorized indicates authentication failure.
var ErrUnauthorized = fmt.Errorf("gateway: unauthorized")

// ── API Key authenticator ───────────────────────────

// APIKeyEntry maps a token to an identity.
type APIKeyEntry struct {
	Token    string
	Identity Identity
}

// APIKeyAuthenticator validates API keys against a static list.
type APIKeyAuthenticator struct {
	keys map[string]*Identity
}

// NewAPIKeyAuthenticator creates an API key authenticator.
func NewAPIKeyAuthenticator(entries ...APIKeyEntry) *APIKeyAuthenticator {
	keys := make(map[string]*Identity, len(entries))
	for _, e := range entries {
		id := e.Identity
		keys[e.Token] = &id
	}
	return &APIKeyAuthenticator{keys: keys}
}

func (a *APIKeyAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	id, ok := a.keys[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return id, nil
}

// ── No-op authenticator ─────────────────────────────

// NoopAuthenticator accepts all tokens with a wildcard identity.
// Use for development only.
type NoopAuthenticator struct{}

func (a *NoopAuthenticator) Authenticate(_ context.Context, _ string) (*Identity, error) {
	return &Identity{
		Subject: "anonymous",
		Scopes:  []string{"*"},
	}, nil
}

// ── Composite authenticator ─────────────────────────

// CompositeAuthenticator tries multiple authenticators in order.
// The first successful authentication wins.
type CompositeAuthenticator struct {
	authenticators []Authenticator
}

// NewCompositeAuthenticator chains multiple authenticators.
func NewCompositeAuthenticator(auths ...Authenticator) *CompositeAuthenticator {
	return &CompositeAuthenticator{authenticators: auths}
}

func (c *CompositeAuthenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	for _, auth := range c.authenticators {
		id, err := auth.Authenticate(ctx, token)
		if err == nil {
			return id, nil
		}
	}
	return nil, ErrUnauthorized
}

// ── Scope constants ─────────────────────────────────

const (
	ScopeJobRead         = "job:read"
	ScopeJobWrite        = "job:write"
	ScopeLocationWrite   = "location:write"
	ScopeDeadLetterRead  = "deadletter:read"
	ScopeDeadLetterWrite = "deadletter:write"
	ScopeStatsRead       = "stats:read"
	ScopeSubscribe       = "subscribe"
	ScopeAdmin           = "admin"
	ScopeAll             = "*"
)

// RequiredScope returns the minimum scope required for an FWP method.
func RequiredScope(method string) string {
	switch {
	case method == MethodAuth:
		return "" // No scope needed for auth.
	case method == MethodJobTrack:
		return "" // Authenticated by the tracking token itself.
	case strings.HasPrefix(method, "job."):
		if method == MethodJobGet || method == MethodJobList || method == MethodJobTimeline {
			return ScopeJobRead
		}
		return ScopeJobWrite
	case method == MethodLocation:
		return ScopeLocationWrite
	case method == MethodSubscribe, method == MethodUnsubscribe:
		return ScopeSubscribe
	case strings.HasPrefix(method, "deadletter."):
		if method == MethodDeadLetterList {
			return ScopeDeadLetterRead
		}
		return ScopeDeadLetterWrite
	case method == MethodStats:
		return ScopeStatsRead
	default:
		return ScopeAdmin
	}
}
