package auth

import (
	"context"
	"time"
)

// Token is an obtained credential for the expiring strategies.
type Token struct {
	// AccessToken is the bearer value attached to requests.
	AccessToken string `json:"access_token"`

	// RefreshToken, when present, is exchanged for a new access token
	// without re-presenting the primary credentials.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is the absolute expiry instant.
	ExpiresAt time.Time `json:"expires_at"`
}

// Usable reports whether the token is non-empty and outside the buffer
// window at the given instant.
func (t *Token) Usable(now time.Time, buffer time.Duration) bool {
	if t == nil || t.AccessToken == "" || t.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-buffer))
}

// TokenCache shares obtained tokens between strategy instances, typically
// across parallel test processes. Implementations live in the tokenstore
// package; a nil cache disables sharing.
//
// Get returns (nil, nil) on a miss. Put stores the token with the given
// time-to-live; implementations may drop entries early but must never
// return a token past its TTL.
type TokenCache interface {
	Get(ctx context.Context, key string) (*Token, error)
	Put(ctx context.Context, key string, token *Token, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
