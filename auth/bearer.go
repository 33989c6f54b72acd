package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/types"
)

// Bearer applies an expiring bearer token via the Authorization header.
//
// The token is obtained lazily from the TokenSource on first use and
// renewed whenever the state machine leaves StateValid. Credential
// mutation is serialized so two goroutines sharing one strategy instance
// cannot both refresh and overwrite each other's token.
type Bearer struct {
	mu       sync.Mutex
	token    *Token
	lastErr  error
	username string
	source   TokenSource
	cacheKey string

	buffer time.Duration
	clock  Clock
	logger *slog.Logger
	cache  TokenCache
}

// NewBearer creates a Bearer strategy that obtains tokens for the given
// user through the source. A nil source makes Authenticate fail fast
// without a network call.
func NewBearer(username string, source TokenSource, opts ...Option) *Bearer {
	s := newSettings(opts)
	s.logger.Debug("created bearer strategy", "username", username)
	return &Bearer{
		username: username,
		source:   source,
		cacheKey: "bearer:" + username,
		buffer:   s.buffer,
		clock:    s.clock,
		logger:   s.logger,
		cache:    s.cache,
	}
}

// NewBearerWithToken creates a Bearer strategy around a pre-supplied token.
// Without a source the token cannot be renewed once it expires.
func NewBearerWithToken(token string, expiresAt time.Time, opts ...Option) *Bearer {
	s := newSettings(opts)
	s.logger.Debug("created bearer strategy with provided token")
	return &Bearer{
		token:    &Token{AccessToken: token, ExpiresAt: expiresAt},
		cacheKey: "bearer:static",
		buffer:   s.buffer,
		clock:    s.clock,
		logger:   s.logger,
		cache:    s.cache,
	}
}

// Authenticate ensures a valid token and sets the Authorization header.
func (b *Bearer) Authenticate(ctx context.Context, req *types.Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureLocked(ctx); err != nil {
		return err
	}

	b.logger.Debug("applying bearer authentication", "username", b.username)
	req.SetHeader("Authorization", "Bearer "+b.token.AccessToken)
	return nil
}

// Type returns "Bearer".
func (b *Bearer) Type() string {
	return "Bearer"
}

// IsValid reports whether the token is present and outside the buffer
// window. It performs no side effects.
func (b *Bearer) IsValid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked() == StateValid
}

// State returns the current token lifecycle state.
func (b *Bearer) State() TokenState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

// Refresh attempts to renew the token, reporting success. Failure is
// recorded and leaves the strategy invalid until a later attempt succeeds.
func (b *Bearer) Refresh(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshLocked(ctx)
}

func (b *Bearer) stateLocked() TokenState {
	if b.token == nil || b.token.AccessToken == "" {
		if b.lastErr != nil {
			return StateInvalid
		}
		return StateUninitialized
	}
	now := b.clock()
	if now.Before(b.token.ExpiresAt.Add(-b.buffer)) {
		return StateValid
	}
	if now.Before(b.token.ExpiresAt) {
		return StateExpiring
	}
	return StateInvalid
}

// ensureLocked drives the state machine: valid tokens pass through, a
// cached token is adopted when usable, and otherwise the source is asked
// to obtain or refresh.
func (b *Bearer) ensureLocked(ctx context.Context) error {
	if b.stateLocked() == StateValid {
		return nil
	}

	if b.cache != nil {
		tok, err := b.cache.Get(ctx, b.cacheKey)
		if err != nil {
			b.logger.Warn("token cache lookup failed", "key", b.cacheKey, "error", err)
		} else if tok.Usable(b.clock(), b.buffer) {
			b.logger.Debug("adopted bearer token from cache", "key", b.cacheKey)
			b.token = tok
			b.lastErr = nil
			return nil
		}
	}

	if b.token == nil || b.token.AccessToken == "" {
		return b.obtainLocked(ctx)
	}

	if !b.refreshLocked(ctx) {
		return apierr.NewAuthenticationError("auth.Bearer.Authenticate",
			fmt.Errorf("%w: %v", apierr.ErrTokenRefreshFailed, b.lastErr))
	}
	return nil
}

func (b *Bearer) obtainLocked(ctx context.Context) error {
	if b.source == nil {
		b.lastErr = apierr.ErrNoCredentials
		return apierr.NewAuthenticationError("auth.Bearer.Authenticate",
			fmt.Errorf("%w: cannot obtain bearer token without a token source", apierr.ErrNoCredentials))
	}

	b.logger.Info("obtaining bearer token", "username", b.username)
	tok, err := b.source.Obtain(ctx)
	if err != nil {
		b.lastErr = err
		return apierr.NewAuthenticationError("auth.Bearer.Authenticate",
			fmt.Errorf("obtaining bearer token: %w", err))
	}

	b.adoptLocked(ctx, tok)
	return nil
}

func (b *Bearer) refreshLocked(ctx context.Context) bool {
	if b.source == nil {
		b.lastErr = apierr.ErrNoCredentials
		b.logger.Error("cannot refresh bearer token: no token source configured")
		return false
	}

	b.logger.Info("refreshing bearer token", "username", b.username)

	var (
		tok *Token
		err error
	)
	if b.token != nil && b.token.RefreshToken != "" {
		tok, err = b.source.Refresh(ctx, b.token.RefreshToken)
	} else {
		tok, err = b.source.Obtain(ctx)
	}
	if err != nil {
		b.lastErr = err
		b.logger.Error("failed to refresh bearer token", "error", err)
		return false
	}

	b.adoptLocked(ctx, tok)
	return true
}

// adoptLocked installs a freshly obtained token and shares it through the
// cache when one is attached.
func (b *Bearer) adoptLocked(ctx context.Context, tok *Token) {
	b.token = tok
	b.lastErr = nil

	if b.cache != nil {
		ttl := tok.ExpiresAt.Sub(b.clock())
		if ttl > 0 {
			if err := b.cache.Put(ctx, b.cacheKey, tok, ttl); err != nil {
				b.logger.Warn("token cache store failed", "key", b.cacheKey, "error", err)
			}
		}
	}
}
