package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/apiharness/sdk/apierr"
)

// TokenSource produces and renews tokens for the expiring strategies. It is
// the seam that keeps token issuance pluggable: production code uses
// EndpointTokenSource against a real token endpoint, tests use
// StaticTokenSource.
type TokenSource interface {
	// Obtain acquires a fresh token from the primary credentials.
	Obtain(ctx context.Context) (*Token, error)

	// Refresh exchanges a refresh token for a new token. Sources without a
	// refresh flow may fall back to Obtain.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// DefaultTokenTTL applies when a token response carries no expires_in.
const DefaultTokenTTL = 60 * time.Minute

// tokenResponse is the RFC 6749 token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// EndpointTokenSource obtains tokens with a form POST against a token
// endpoint and decodes the JSON token payload. The refresh endpoint
// receives a grant_type=refresh_token exchange built from the same client
// parameters.
type EndpointTokenSource struct {
	client     *http.Client
	tokenURL   string
	refreshURL string
	params     url.Values
	defaultTTL time.Duration
	clock      Clock
	logger     *slog.Logger
}

// EndpointOption configures an EndpointTokenSource.
type EndpointOption func(*EndpointTokenSource)

// WithHTTPClient sets the HTTP client used for token calls.
func WithHTTPClient(client *http.Client) EndpointOption {
	return func(s *EndpointTokenSource) {
		if client != nil {
			s.client = client
		}
	}
}

// WithDefaultTTL sets the token lifetime assumed when the endpoint response
// carries no expires_in.
func WithDefaultTTL(ttl time.Duration) EndpointOption {
	return func(s *EndpointTokenSource) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithSourceClock injects the time source used to compute absolute expiry.
func WithSourceClock(clock Clock) EndpointOption {
	return func(s *EndpointTokenSource) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSourceLogger sets the source logger.
func WithSourceLogger(logger *slog.Logger) EndpointOption {
	return func(s *EndpointTokenSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewEndpointTokenSource creates a source posting params to tokenURL on
// Obtain. Refresh posts a refresh_token exchange to refreshURL; an empty
// refreshURL reuses tokenURL.
func NewEndpointTokenSource(tokenURL, refreshURL string, params url.Values, opts ...EndpointOption) *EndpointTokenSource {
	if refreshURL == "" {
		refreshURL = tokenURL
	}
	s := &EndpointTokenSource{
		client:     &http.Client{Timeout: 30 * time.Second},
		tokenURL:   tokenURL,
		refreshURL: refreshURL,
		params:     params,
		defaultTTL: DefaultTokenTTL,
		clock:      time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Obtain posts the configured parameters to the token endpoint.
func (s *EndpointTokenSource) Obtain(ctx context.Context) (*Token, error) {
	s.logger.Info("obtaining token", "endpoint", s.tokenURL)
	return s.post(ctx, s.tokenURL, s.params)
}

// Refresh exchanges the refresh token at the refresh endpoint. The client
// identification parameters are carried over; user credentials are not.
func (s *EndpointTokenSource) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token held", apierr.ErrTokenRefreshFailed)
	}

	form := url.Values{}
	for _, k := range []string{"client_id", "client_secret", "scope"} {
		if v := s.params.Get(k); v != "" {
			form.Set(k, v)
		}
	}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	s.logger.Info("refreshing token", "endpoint", s.refreshURL)
	return s.post(ctx, s.refreshURL, form)
}

func (s *EndpointTokenSource) post(ctx context.Context, endpoint string, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := sonic.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access_token")
	}

	ttl := s.defaultTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}

	return &Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    s.clock().Add(ttl),
	}, nil
}

// StaticTokenSource mints deterministic tokens without any network call.
// It is the test double for the expiring strategies: each Obtain/Refresh
// increments a counter embedded in the token value, and FailNext makes the
// next calls fail to exercise error paths.
type StaticTokenSource struct {
	mu       sync.Mutex
	prefix   string
	ttl      time.Duration
	clock    Clock
	obtains  int
	refreshs int
	failNext int
}

// NewStaticTokenSource creates a static source minting tokens valid for ttl.
func NewStaticTokenSource(prefix string, ttl time.Duration, clock Clock) *StaticTokenSource {
	if clock == nil {
		clock = time.Now
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &StaticTokenSource{prefix: prefix, ttl: ttl, clock: clock}
}

// Obtain mints a new token.
func (s *StaticTokenSource) Obtain(context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return nil, fmt.Errorf("static token source: obtain failed")
	}

	s.obtains++
	n := s.obtains + s.refreshs
	return &Token{
		AccessToken:  fmt.Sprintf("%s-token-%d", s.prefix, n),
		RefreshToken: fmt.Sprintf("%s-refresh-%d", s.prefix, n),
		ExpiresAt:    s.clock().Add(s.ttl),
	}, nil
}

// Refresh mints a renewed token for any non-empty refresh token.
func (s *StaticTokenSource) Refresh(_ context.Context, refreshToken string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return nil, fmt.Errorf("static token source: refresh failed")
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token held", apierr.ErrTokenRefreshFailed)
	}

	s.refreshs++
	n := s.obtains + s.refreshs
	return &Token{
		AccessToken:  fmt.Sprintf("%s-token-%d", s.prefix, n),
		RefreshToken: fmt.Sprintf("%s-refresh-%d", s.prefix, n),
		ExpiresAt:    s.clock().Add(s.ttl),
	}, nil
}

// FailNext makes the next n source calls fail.
func (s *StaticTokenSource) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Calls returns the number of obtain and refresh calls performed.
func (s *StaticTokenSource) Calls() (obtains, refreshes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obtains, s.refreshs
}
