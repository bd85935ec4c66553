package gateway

import (
	"context"
	"testing"
)

func TestAPIKeyAuthenticator(t *testing.T) {
	t.Parallel()

	auth := NewAPIKeyAuthenticator(
		APIKeyEntry{
			Token: "fk_dispatcher_123",
			Identity: Identity{
				Subject:   "dispatcher-1",
				CompanyID: "acme",
				Scopes:    []string{ScopeJobRead, ScopeJobWrite, ScopeSubscribe},
			},
		},
		APIKeyEntry{
			Token: "fk_admin_456",
			Identity: Identity{
				Subject: "admin-1",
				Scopes:  []string{ScopeAll},
			},
		},
	)

	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		id, err := auth.Authenticate(ctx, "fk_dispatcher_123")
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if id.Subject != "dispatcher-1" {
			t.Errorf("Subject = %q, want %q", id.Subject, "dispatcher-1")
		}
		if id.CompanyID != "acme" {
			t.Errorf("CompanyID = %q, want %q", id.CompanyID, "acme")
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := auth.Authenticate(ctx, "invalid")
		if err == nil {
			t.Error("expected error for invalid token")
		}
	})
}

func TestIdentityHasScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		scopes   []string
		check    string
		expected bool
	}{
		{"exact match", []string{"job:write"}, "job:write", true},
		{"no match", []string{"job:write"}, "job:read", false},
		{"wildcard", []string{"*"}, "anything", true},
		{"multiple scopes", []string{"job:read", "job:write"}, "job:write", true},
		{"empty scopes", nil, "job:read", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := &Identity{Subject: "test", Scopes: tt.scopes}
			if got := id.HasScope(tt.check); got != tt.expected {
				t.Errorf("HasScope(%q) = %v, want %v", tt.check, got, tt.expected)
			}
		})
	}
}

func TestCompositeAuthenticator(t *testing.T) {
	t.Parallel()

	first := NewAPIKeyAuthenticator(APIKeyEntry{
		Token:    "fk_first",
		Identity: Identity{Subject: "from-first"},
	})
	second := NewAPIKeyAuthenticator(APIKeyEntry{
		Token:    "fk_second",
		Identity: Identity{Subject: "from-second"},
	})
	auth := NewCompositeAuthenticator(first, second)

	ctx := context.Background()

	id, err := auth.Authenticate(ctx, "fk_second")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Subject != "from-second" {
		t.Errorf("Subject = %q, want %q", id.Subject, "from-second")
	}

	if _, err := auth.Authenticate(ctx, "missing"); err == nil {
		t.Error("expected error when no authenticator matches")
	}
}

func TestRequiredScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method   string
		expected string
	}{
		{MethodAuth, ""},
		{MethodJobTrack, ""},
		{MethodJobGet, ScopeJobRead},
		{MethodJobList, ScopeJobRead},
		{MethodJobTimeline, ScopeJobRead},
		{MethodJobTransition, ScopeJobWrite},
		{MethodLocation, ScopeLocationWrite},
		{MethodSubscribe, ScopeSubscribe},
		{MethodUnsubscribe, ScopeSubscribe},
		{MethodDeadLetterList, ScopeDeadLetterRead},
		{MethodDeadLetterReplay, ScopeDeadLetterWrite},
		{MethodStats, ScopeStatsRead},
		{"made.up", ScopeAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if got := RequiredScope(tt.method); got != tt.expected {
				t.Errorf("RequiredScope(%q) = %q, want %q", tt.method, got, tt.expected)
			}
		})
	}
}
