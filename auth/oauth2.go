package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/types"
)

// GrantType tags the OAuth 2.0 flow a strategy was configured for.
type GrantType string

const (
	// GrantClientCredentials is the client_credentials flow.
	GrantClientCredentials GrantType = "CLIENT_CREDENTIALS"

	// GrantPassword is the resource-owner password flow.
	GrantPassword GrantType = "PASSWORD"

	// GrantAuthorizationCode is the authorization_code flow.
	GrantAuthorizationCode GrantType = "AUTHORIZATION_CODE"

	// GrantImplicit is the implicit flow; it has no token endpoint
	// exchange, so a strategy tagged with it needs a pre-supplied token.
	GrantImplicit GrantType = "IMPLICIT"
)

// ParseGrantType parses a grant type name case-insensitively.
func ParseGrantType(s string) (GrantType, error) {
	switch GrantType(strings.ToUpper(s)) {
	case GrantClientCredentials:
		return GrantClientCredentials, nil
	case GrantPassword:
		return GrantPassword, nil
	case GrantAuthorizationCode:
		return GrantAuthorizationCode, nil
	case GrantImplicit:
		return GrantImplicit, nil
	default:
		return "", fmt.Errorf("unknown oauth2 grant type %q", s)
	}
}

// OAuth2 applies an expiring OAuth 2.0 access token via the Authorization
// header. Renewal prefers the refresh-token exchange and falls back to a
// fresh obtain when no refresh token is held.
type OAuth2 struct {
	mu      sync.Mutex
	token   *Token
	lastErr error

	clientID string
	scope    string
	grant    GrantType
	source   TokenSource
	cacheKey string

	buffer time.Duration
	clock  Clock
	logger *slog.Logger
	cache  TokenCache
}

// NewOAuth2 creates an OAuth2 strategy obtaining tokens through the source.
// The clientID and scope identify the credential for logging and cache
// sharing; the source carries the actual client secret. A nil source makes
// Authenticate fail fast without a network call.
func NewOAuth2(clientID, scope string, grant GrantType, source TokenSource, opts ...Option) *OAuth2 {
	s := newSettings(opts)
	if grant == "" {
		grant = GrantClientCredentials
	}
	s.logger.Debug("created oauth2 strategy", "client_id", clientID, "grant_type", string(grant))
	return &OAuth2{
		clientID: clientID,
		scope:    scope,
		grant:    grant,
		source:   source,
		cacheKey: "oauth2:" + clientID + ":" + scope,
		buffer:   s.buffer,
		clock:    s.clock,
		logger:   s.logger,
		cache:    s.cache,
	}
}

// NewOAuth2WithToken creates an OAuth2 strategy around a pre-supplied
// access token, as the implicit flow requires.
func NewOAuth2WithToken(accessToken string, expiresAt time.Time, opts ...Option) *OAuth2 {
	s := newSettings(opts)
	s.logger.Debug("created oauth2 strategy with provided access token")
	return &OAuth2{
		token:    &Token{AccessToken: accessToken, ExpiresAt: expiresAt},
		grant:    GrantImplicit,
		cacheKey: "oauth2:static",
		buffer:   s.buffer,
		clock:    s.clock,
		logger:   s.logger,
		cache:    s.cache,
	}
}

// Authenticate ensures a valid access token and sets the Authorization
// header.
func (o *OAuth2) Authenticate(ctx context.Context, req *types.Request) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.ensureLocked(ctx); err != nil {
		return err
	}

	o.logger.Debug("applying oauth2 authentication", "client_id", o.clientID)
	req.SetHeader("Authorization", "Bearer "+o.token.AccessToken)
	return nil
}

// Type returns "OAuth2".
func (o *OAuth2) Type() string {
	return "OAuth2"
}

// IsValid reports whether the access token is present and outside the
// buffer window. It performs no side effects.
func (o *OAuth2) IsValid() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked() == StateValid
}

// State returns the current token lifecycle state.
func (o *OAuth2) State() TokenState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

// GrantType returns the configured grant-type tag.
func (o *OAuth2) GrantType() GrantType {
	return o.grant
}

// Refresh attempts to renew the access token, reporting success. With no
// refresh token held it falls back to a fresh obtain.
func (o *OAuth2) Refresh(ctx context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refreshLocked(ctx)
}

func (o *OAuth2) stateLocked() TokenState {
	if o.token == nil || o.token.AccessToken == "" {
		if o.lastErr != nil {
			return StateInvalid
		}
		return StateUninitialized
	}
	now := o.clock()
	if now.Before(o.token.ExpiresAt.Add(-o.buffer)) {
		return StateValid
	}
	if now.Before(o.token.ExpiresAt) {
		return StateExpiring
	}
	return StateInvalid
}

func (o *OAuth2) ensureLocked(ctx context.Context) error {
	if o.stateLocked() == StateValid {
		return nil
	}

	if o.cache != nil {
		tok, err := o.cache.Get(ctx, o.cacheKey)
		if err != nil {
			o.logger.Warn("token cache lookup failed", "key", o.cacheKey, "error", err)
		} else if tok.Usable(o.clock(), o.buffer) {
			o.logger.Debug("adopted oauth2 token from cache", "key", o.cacheKey)
			o.token = tok
			o.lastErr = nil
			return nil
		}
	}

	if o.token == nil || o.token.AccessToken == "" {
		return o.obtainLocked(ctx)
	}

	if !o.refreshLocked(ctx) {
		return apierr.NewAuthenticationError("auth.OAuth2.Authenticate",
			fmt.Errorf("%w: %v", apierr.ErrTokenRefreshFailed, o.lastErr))
	}
	return nil
}

func (o *OAuth2) obtainLocked(ctx context.Context) error {
	if o.source == nil {
		o.lastErr = apierr.ErrNoCredentials
		return apierr.NewAuthenticationError("auth.OAuth2.Authenticate",
			fmt.Errorf("%w: no client credentials configured", apierr.ErrNoCredentials))
	}

	o.logger.Info("obtaining oauth2 token", "client_id", o.clientID, "grant_type", string(o.grant))
	tok, err := o.source.Obtain(ctx)
	if err != nil {
		o.lastErr = err
		return apierr.NewAuthenticationError("auth.OAuth2.Authenticate",
			fmt.Errorf("obtaining oauth2 token: %w", err))
	}

	o.adoptLocked(ctx, tok)
	return nil
}

func (o *OAuth2) refreshLocked(ctx context.Context) bool {
	if o.source == nil {
		o.lastErr = apierr.ErrNoCredentials
		o.logger.Error("cannot refresh oauth2 token: no token source configured")
		return false
	}

	if o.token == nil || o.token.RefreshToken == "" {
		o.logger.Warn("no refresh token available, obtaining new access token")
		return o.obtainLocked(ctx) == nil
	}

	o.logger.Info("refreshing oauth2 token", "client_id", o.clientID)
	tok, err := o.source.Refresh(ctx, o.token.RefreshToken)
	if err != nil {
		o.lastErr = err
		o.logger.Error("failed to refresh oauth2 token", "error", err)
		return false
	}

	o.adoptLocked(ctx, tok)
	return true
}

func (o *OAuth2) adoptLocked(ctx context.Context, tok *Token) {
	o.token = tok
	o.lastErr = nil

	if o.cache != nil {
		ttl := tok.ExpiresAt.Sub(o.clock())
		if ttl > 0 {
			if err := o.cache.Put(ctx, o.cacheKey, tok, ttl); err != nil {
				o.logger.Warn("token cache store failed", "key", o.cacheKey, "error", err)
			}
		}
	}
}
