package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/apiharness/sdk/types"
)

// Strategy is one pluggable way of attaching credentials to an outgoing
// request.
//
// Implementations:
//   - Basic: username/password via the Authorization header
//   - APIKey: fixed key in a header or query parameter
//   - Bearer: expiring token obtained from a TokenSource
//   - OAuth2: expiring access token with optional refresh token
type Strategy interface {
	// Authenticate applies the credential to the request. It first ensures
	// the credential is valid, obtaining or refreshing it as needed, and
	// fails with an authentication error when no valid credential can be
	// produced.
	Authenticate(ctx context.Context, req *types.Request) error

	// Type returns the stable identifying tag of the strategy
	// ("Basic", "Bearer", "ApiKey", "OAuth2").
	Type() string

	// IsValid reports whether the held credential is currently usable.
	// It is a pure predicate: no side effects, no network calls.
	IsValid() bool

	// Refresh attempts to obtain a renewed credential. It reports success
	// or failure; ordinary refresh failure is not an error, the caller
	// decides whether it is fatal.
	Refresh(ctx context.Context) bool
}

// TokenState is the lifecycle state of an expiring credential.
type TokenState int

const (
	// StateUninitialized means no credential has been obtained yet.
	StateUninitialized TokenState = iota

	// StateValid means a credential is present and outside the expiry
	// buffer window.
	StateValid

	// StateExpiring means the credential is inside the buffer window:
	// technically unexpired but due for proactive renewal.
	StateExpiring

	// StateInvalid means the credential is expired or the last
	// obtain/refresh failed. A later Authenticate call retries.
	StateInvalid
)

// String returns the lowercase state name.
func (s TokenState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValid:
		return "valid"
	case StateExpiring:
		return "expiring"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Clock returns the current time. Strategies take a Clock so tests can
// drive the expiry state machine with a simulated time.
type Clock func() time.Time

// DefaultExpiryBuffer is the safety margin before actual expiry during
// which a credential is proactively treated as invalid.
const DefaultExpiryBuffer = 5 * time.Minute

// settings are the shared knobs of the strategy constructors.
type settings struct {
	buffer time.Duration
	clock  Clock
	logger *slog.Logger
	cache  TokenCache
}

func newSettings(opts []Option) settings {
	s := settings{
		buffer: DefaultExpiryBuffer,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures a strategy at construction time.
type Option func(*settings)

// WithExpiryBuffer sets the buffer window subtracted from the credential
// expiry when judging validity.
func WithExpiryBuffer(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.buffer = d
		}
	}
}

// WithClock injects the time source used for expiry checks.
func WithClock(clock Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the strategy logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTokenCache attaches a shared token cache consulted before the token
// source and updated after successful obtain/refresh calls.
func WithTokenCache(cache TokenCache) Option {
	return func(s *settings) {
		s.cache = cache
	}
}
