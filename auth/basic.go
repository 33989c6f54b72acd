package auth

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/types"
)

// Basic applies HTTP Basic authentication. The credential has no expiry;
// it is valid iff both username and password are non-empty.
type Basic struct {
	username string
	password string
	logger   *slog.Logger
}

// NewBasic creates a Basic strategy for the given credentials.
func NewBasic(username, password string, opts ...Option) *Basic {
	s := newSettings(opts)
	s.logger.Debug("created basic auth strategy", "username", username)
	return &Basic{
		username: username,
		password: password,
		logger:   s.logger,
	}
}

// Authenticate sets the Authorization header with the encoded credentials.
func (b *Basic) Authenticate(_ context.Context, req *types.Request) error {
	if !b.IsValid() {
		return apierr.NewAuthenticationError("auth.Basic.Authenticate", apierr.ErrNoCredentials)
	}

	b.logger.Debug("applying basic authentication", "username", b.username)
	encoded := base64.StdEncoding.EncodeToString([]byte(b.username + ":" + b.password))
	req.SetHeader("Authorization", "Basic "+encoded)
	return nil
}

// Type returns "Basic".
func (b *Basic) Type() string {
	return "Basic"
}

// IsValid reports whether both username and password are set.
func (b *Basic) IsValid() bool {
	return b.username != "" && b.password != ""
}

// Refresh is a no-op; basic credentials do not expire.
func (b *Basic) Refresh(context.Context) bool {
	return true
}
