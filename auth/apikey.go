package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/types"
)

// Placement says where an API key is attached to the request.
type Placement string

const (
	// PlacementHeader attaches the key as a request header.
	PlacementHeader Placement = "HEADER"

	// PlacementQueryParam attaches the key as a query parameter.
	PlacementQueryParam Placement = "QUERY_PARAM"
)

// ParsePlacement parses a placement name case-insensitively.
func ParsePlacement(s string) (Placement, error) {
	switch Placement(strings.ToUpper(s)) {
	case PlacementHeader:
		return PlacementHeader, nil
	case PlacementQueryParam:
		return PlacementQueryParam, nil
	default:
		return "", fmt.Errorf("unknown api key placement %q", s)
	}
}

// DefaultAPIKeyName is used when no parameter name is configured.
const DefaultAPIKeyName = "api_key"

// APIKey applies a fixed key as a header or query parameter. The credential
// has no expiry; it is valid iff the key value is non-empty.
type APIKey struct {
	value     string
	name      string
	placement Placement
	logger    *slog.Logger
}

// NewAPIKey creates an APIKey strategy. An empty name falls back to
// DefaultAPIKeyName; an empty placement falls back to PlacementHeader.
func NewAPIKey(value, name string, placement Placement, opts ...Option) *APIKey {
	s := newSettings(opts)
	if name == "" {
		name = DefaultAPIKeyName
	}
	if placement == "" {
		placement = PlacementHeader
	}
	s.logger.Debug("created api key strategy", "name", name, "placement", string(placement))
	return &APIKey{
		value:     value,
		name:      name,
		placement: placement,
		logger:    s.logger,
	}
}

// Authenticate attaches the key at the configured placement.
func (a *APIKey) Authenticate(_ context.Context, req *types.Request) error {
	if !a.IsValid() {
		return apierr.NewAuthenticationError("auth.APIKey.Authenticate", apierr.ErrNoCredentials)
	}

	a.logger.Debug("applying api key authentication", "name", a.name, "placement", string(a.placement))
	if a.placement == PlacementQueryParam {
		req.SetQuery(a.name, a.value)
	} else {
		req.SetHeader(a.name, a.value)
	}
	return nil
}

// Type returns "ApiKey".
func (a *APIKey) Type() string {
	return "ApiKey"
}

// IsValid reports whether the key value is set.
func (a *APIKey) IsValid() bool {
	return a.value != ""
}

// Refresh is a no-op; API keys do not expire.
func (a *APIKey) Refresh(context.Context) bool {
	return true
}

// Name returns the header or parameter name the key is attached under.
func (a *APIKey) Name() string {
	return a.name
}

// Location returns the configured placement.
func (a *APIKey) Location() Placement {
	return a.placement
}
