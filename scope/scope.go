// Package scope provides helpers to capture and restore multi-tenant
// execution context (company and actor identity) from/to context.Context.
//
// The company ID captured at submission time feeds the travel-metrics
// collaborator; the actor ID attributes manual transitions in the audit
// trail.
package scope

import "context"

type contextKey int

const (
	companyKey contextKey = iota
	actorKey
)

// WithCompany attaches a company ID to the context.
func WithCompany(ctx context.Context, companyID string) context.Context {
	if companyID == "" {
		return ctx
	}
	return context.WithValue(ctx, companyKey, companyID)
}

// WithActor attaches an actor (dispatcher or technician) ID to the context.
func WithActor(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, actorID)
}

// Capture extracts the company and actor identifiers from the context.
// Returns empty strings for whichever is not present.
func Capture(ctx context.Context) (companyID, actorID string) {
	if v, ok := ctx.Value(companyKey).(string); ok {
		companyID = v
	}
	if v, ok := ctx.Value(actorKey).(string); ok {
		actorID = v
	}
	return companyID, actorID
}

// Restore attaches company and actor IDs to the context. Empty values are
// skipped; if both are empty the context is returned unchanged.
func Restore(ctx context.Context, companyID, actorID string) context.Context {
	return WithActor(WithCompany(ctx, companyID), actorID)
}
