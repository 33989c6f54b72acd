package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/config"
	"github.com/apiharness/sdk/types"
)

// Strategy names registered by InitializeFromConfig.
const (
	StrategyBasic  = "basic"
	StrategyBearer = "bearer"
	StrategyAPIKey = "apiKey"
	StrategyOAuth2 = "oauth2"
)

// Manager is the name-indexed registry of authentication strategies plus
// the default-strategy policy. All methods are safe for concurrent use;
// readers never observe a partial insert.
//
// The manager exclusively owns the strategies it holds: a removed strategy
// is discarded.
type Manager struct {
	mu          sync.RWMutex
	strategies  map[string]Strategy
	defaultName string
	logger      *slog.Logger
}

// NewManager creates an empty strategy registry with no default.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		strategies: make(map[string]Strategy),
		logger:     logger,
	}
}

// Register inserts or overwrites a strategy under the given name.
// Overwriting an existing entry is allowed and logged.
func (m *Manager) Register(name string, strategy Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.strategies[name]; exists {
		m.logger.Warn("overwriting registered authentication strategy", "name", name)
	}
	m.strategies[name] = strategy
	m.logger.Info("registered authentication strategy", "name", name, "type", strategy.Type())
}

// Get returns the strategy registered under name.
func (m *Manager) Get(name string) (Strategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.strategies[name]
	if !ok {
		return nil, apierr.NewNotFoundError("auth.Manager.Get",
			fmt.Errorf("%w: %s", apierr.ErrStrategyNotFound, name))
	}
	return s, nil
}

// Has reports whether a strategy is registered under name.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.strategies[name]
	return ok
}

// Names returns a sorted snapshot of the registered strategy names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.strategies))
	for name := range m.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove deletes the named strategy. Removing the current default reverts
// the default to none, so the default pointer never dangles.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.strategies[name]; !ok {
		return
	}
	delete(m.strategies, name)
	m.logger.Info("removed authentication strategy", "name", name)

	if m.defaultName == name {
		m.defaultName = ""
		m.logger.Warn("default authentication strategy was removed, default is now unset")
	}
}

// SetDefault makes the named strategy the default for requests that do not
// name one explicitly. The strategy must already be registered.
func (m *Manager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.strategies[name]; !ok {
		return apierr.NewNotFoundError("auth.Manager.SetDefault",
			fmt.Errorf("%w: %s", apierr.ErrStrategyNotFound, name))
	}
	m.defaultName = name
	m.logger.Info("set default authentication strategy", "name", name)
	return nil
}

// ClearDefault unsets the default strategy.
func (m *Manager) ClearDefault() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultName = ""
}

// Default returns the default strategy, or false when none is set.
func (m *Manager) Default() (Strategy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.defaultName == "" {
		return nil, false
	}
	s, ok := m.strategies[m.defaultName]
	return s, ok
}

// DefaultName returns the default strategy name, or "" when none is set.
func (m *Manager) DefaultName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultName
}

// AuthenticateWith applies the named strategy to the request.
func (m *Manager) AuthenticateWith(ctx context.Context, req *types.Request, name string) error {
	s, err := m.Get(name)
	if err != nil {
		return err
	}
	return s.Authenticate(ctx, req)
}

// Authenticate applies the default strategy to the request. With no
// default set the request passes through unchanged: explicit no-auth, not
// an error.
func (m *Manager) Authenticate(ctx context.Context, req *types.Request) error {
	s, ok := m.Default()
	if !ok {
		m.logger.Warn("no default authentication strategy configured, sending request as is")
		return nil
	}
	return s.Authenticate(ctx, req)
}

// InitializeFromConfig constructs and registers one strategy per enabled
// auth kind. A failure constructing one kind is logged and isolated so the
// remaining kinds still initialize. When auth.defaultStrategy names a
// registered strategy it becomes the default.
func (m *Manager) InitializeFromConfig(ctx context.Context, cfg *config.Provider, opts ...Option) {
	buffer := time.Duration(cfg.GetIntDefault("auth.tokenExpiryBufferMinutes", 5)) * time.Minute
	opts = append([]Option{WithExpiryBuffer(buffer), WithLogger(m.logger)}, opts...)

	if cfg.GetBoolDefault("auth.basic.enabled", false) {
		if err := m.initBasic(cfg, opts); err != nil {
			m.logger.Error("failed to initialize basic authentication strategy", "error", err)
		}
	}

	if cfg.GetBoolDefault("auth.bearer.enabled", false) {
		if err := m.initBearer(cfg, opts); err != nil {
			m.logger.Error("failed to initialize bearer authentication strategy", "error", err)
		}
	}

	if cfg.GetBoolDefault("auth.apiKey.enabled", false) {
		if err := m.initAPIKey(cfg, opts); err != nil {
			m.logger.Error("failed to initialize api key authentication strategy", "error", err)
		}
	}

	if cfg.GetBoolDefault("auth.oauth2.enabled", false) {
		if err := m.initOAuth2(cfg, opts); err != nil {
			m.logger.Error("failed to initialize oauth2 authentication strategy", "error", err)
		}
	}

	if name := cfg.GetStringDefault("auth.defaultStrategy", "none"); name != "none" && name != "" {
		if m.Has(name) {
			_ = m.SetDefault(name)
		} else {
			m.logger.Warn("configured default strategy is not registered", "name", name)
		}
	}
}

func (m *Manager) initBasic(cfg *config.Provider, opts []Option) error {
	username, err := cfg.GetString("auth.basic.username")
	if err != nil {
		return err
	}
	password, err := cfg.GetString("auth.basic.password")
	if err != nil {
		return err
	}

	m.Register(StrategyBasic, NewBasic(username, password, opts...))
	return nil
}

func (m *Manager) initBearer(cfg *config.Provider, opts []Option) error {
	username, err := cfg.GetString("auth.bearer.username")
	if err != nil {
		return err
	}
	password, err := cfg.GetString("auth.bearer.password")
	if err != nil {
		return err
	}

	loginURL := resolveEndpoint(cfg, cfg.GetStringDefault("auth.endpoints.login", "/auth/login"))
	refreshURL := resolveEndpoint(cfg, cfg.GetStringDefault("auth.endpoints.refreshToken", "/auth/refresh"))
	ttl := time.Duration(cfg.GetIntDefault("auth.bearer.tokenExpiryMinutes", 60)) * time.Minute

	params := url.Values{}
	params.Set("grant_type", "password")
	params.Set("username", username)
	params.Set("password", password)

	source := NewEndpointTokenSource(loginURL, refreshURL, params,
		WithDefaultTTL(ttl), WithSourceLogger(m.logger))

	m.Register(StrategyBearer, NewBearer(username, source, opts...))
	return nil
}

func (m *Manager) initAPIKey(cfg *config.Provider, opts []Option) error {
	value, err := cfg.GetString("auth.apiKey.value")
	if err != nil {
		return err
	}
	name := cfg.GetStringDefault("auth.apiKey.name", DefaultAPIKeyName)

	placement, err := ParsePlacement(cfg.GetStringDefault("auth.apiKey.location", string(PlacementHeader)))
	if err != nil {
		return err
	}

	m.Register(StrategyAPIKey, NewAPIKey(value, name, placement, opts...))
	return nil
}

func (m *Manager) initOAuth2(cfg *config.Provider, opts []Option) error {
	clientID, err := cfg.GetString("auth.oauth2.clientId")
	if err != nil {
		return err
	}
	clientSecret, err := cfg.GetString("auth.oauth2.clientSecret")
	if err != nil {
		return err
	}
	scope := cfg.GetStringDefault("auth.oauth2.scope", "")

	grant, err := ParseGrantType(cfg.GetStringDefault("auth.oauth2.grantType", string(GrantClientCredentials)))
	if err != nil {
		return err
	}

	tokenURL := resolveEndpoint(cfg, cfg.GetStringDefault("auth.oauth2.tokenEndpoint", "/oauth/token"))
	refreshURL := resolveEndpoint(cfg, cfg.GetStringDefault("auth.oauth2.refreshEndpoint", "/oauth/token"))
	ttl := time.Duration(cfg.GetIntDefault("auth.oauth2.expiryMinutes", 60)) * time.Minute

	params := url.Values{}
	params.Set("grant_type", strings.ToLower(string(grant)))
	params.Set("client_id", clientID)
	params.Set("client_secret", clientSecret)
	if scope != "" {
		params.Set("scope", scope)
	}

	source := NewEndpointTokenSource(tokenURL, refreshURL, params,
		WithDefaultTTL(ttl), WithSourceLogger(m.logger))

	m.Register(StrategyOAuth2, NewOAuth2(clientID, scope, grant, source, opts...))
	return nil
}

// resolveEndpoint turns a relative endpoint path into an absolute URL
// against api.baseUrl. Absolute URLs pass through unchanged.
func resolveEndpoint(cfg *config.Provider, endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	base := strings.TrimSuffix(cfg.GetStringDefault("api.baseUrl", ""), "/")
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}
