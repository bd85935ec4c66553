package job

import (
	"testing"
	"time"

	"github.com/xraph/fieldops/id"
)

func TestTrackingTokenRoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("tracking-secret")
	jobID := id.NewJobID()
	now := time.Now().UTC()

	token := NewTrackingToken(secret, jobID, now.Add(time.Hour))

	got, err := VerifyTrackingToken(secret, token, now)
	if err != nil {
		t.Fatalf("VerifyTrackingToken: %v", err)
	}
	if got.String() != jobID.String() {
		t.Fatalf("subject = %s, want %s", got, jobID)
	}
}

func TestTrackingTokenRejections(t *testing.T) {
	t.Parallel()

	secret := []byte("tracking-secret")
	jobID := id.NewJobID()
	now := time.Now().UTC()
	valid := NewTrackingToken(secret, jobID, now.Add(time.Hour))

	tests := []struct {
		name   string
		token  string
		secret []byte
		at     time.Time
	}{
		{"wrong secret", valid, []byte("other-secret"), now},
		{"expired", NewTrackingToken(secret, jobID, now.Add(-time.Minute)), secret, now},
		{"tampered subject", id.NewJobID().String() + valid[len(jobID.String()):], secret, now},
		{"malformed", "not-a-token", secret, now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := VerifyTrackingToken(tt.secret, tt.token, tt.at); err == nil {
				t.Fatal("VerifyTrackingToken succeeded, want error")
			}
		})
	}
}
