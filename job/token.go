package job

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/fieldops/id"
)

// Tracking tokens give customers an unauthenticated, expiring link to
// follow their job. The token is derived, never stored as a secret:
// "jobID.expiryUnix.sig" where sig is HMAC-SHA256 over "jobID.expiryUnix".

// NewTrackingToken returns a signed tracking token for the job, valid
// until expires.
func NewTrackingToken(secret []byte, jobID id.JobID, expires time.Time) string {
	payload := jobID.String() + "." + strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + sign(secret, payload)
}

// VerifyTrackingToken checks the token's signature and expiry, returning
// the job ID it was issued for.
func VerifyTrackingToken(secret []byte, token string, now time.Time) (id.JobID, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return id.Nil, fmt.Errorf("job: malformed tracking token")
	}

	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(sign(secret, payload)), []byte(parts[2])) {
		return id.Nil, fmt.Errorf("job: tracking token signature mismatch")
	}

	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return id.Nil, fmt.Errorf("job: tracking token expiry: %w", err)
	}
	if now.After(time.Unix(expiry, 0)) {
		return id.Nil, fmt.Errorf("job: tracking token expired")
	}

	jobID, err := id.ParseJobID(parts[0])
	if err != nil {
		return id.Nil, fmt.Errorf("job: tracking token subject: %w", err)
	}
	return jobID, nil
}

func sign(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
