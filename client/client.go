// Package client provides the retry-wrapped request executor: requests are
// built, authenticated through the strategy registry, sent over a pluggable
// transport, retried on transport failure, and validated on completion.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/auth"
	"github.com/apiharness/sdk/config"
	"github.com/apiharness/sdk/types"
)

// Client executes API requests against a single base URL. Each request is
// assigned a correlation ID, authenticated, sent with the configured retry
// policy, and validated.
//
// A Client is safe for concurrent use. The explicit strategy selection is
// the only mutable piece of state and is guarded by its own lock.
type Client struct {
	cfg       *config.Provider
	manager   *auth.Manager
	transport Transport
	validator *Validator
	policy    Policy
	baseURL   string
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *otelMetrics

	mu       sync.RWMutex
	strategy string
}

// ClientOption configures a Client.
type ClientOption func(*clientSettings)

type clientSettings struct {
	transport Transport
	validator *Validator
	logger    *slog.Logger
	tracer    trace.Tracer
	meter     metric.Meter
	strategy  string
	timeout   time.Duration
}

// WithTransport substitutes the transport used for exchanges.
func WithTransport(t Transport) ClientOption {
	return func(s *clientSettings) {
		if t != nil {
			s.transport = t
		}
	}
}

// WithValidator replaces the response validator. A nil validator disables
// validation.
func WithValidator(v *Validator) ClientOption {
	return func(s *clientSettings) {
		s.validator = v
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(s *clientSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer attaches a tracer; each executed request becomes a span.
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(s *clientSettings) {
		s.tracer = tracer
	}
}

// WithMeter attaches a meter; request, retry, and duration metrics are
// recorded through it.
func WithMeter(meter metric.Meter) ClientOption {
	return func(s *clientSettings) {
		s.meter = meter
	}
}

// WithStrategy pins the client to a named authentication strategy instead
// of the manager's default.
func WithStrategy(name string) ClientOption {
	return func(s *clientSettings) {
		s.strategy = name
	}
}

// WithTimeout sets the HTTP client timeout of the default transport.
func WithTimeout(d time.Duration) ClientOption {
	return func(s *clientSettings) {
		s.timeout = d
	}
}

// New creates a client from the configuration. The api.baseUrl key is
// required; the retry policy is read from api.maxRetries and
// api.retryDelayMs. A nil manager disables authentication entirely.
func New(cfg *config.Provider, manager *auth.Manager, opts ...ClientOption) (*Client, error) {
	baseURL, err := cfg.GetString("api.baseUrl")
	if err != nil {
		return nil, err
	}

	s := clientSettings{
		logger:  slog.Default(),
		timeout: cfg.GetDuration("api.timeoutMs", 30*time.Second),
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.transport == nil {
		s.transport = NewHTTPTransport(s.timeout, s.logger)
	}
	if s.validator == nil {
		s.validator = NewValidatorFromConfig(cfg, s.logger)
	}

	metrics, err := initOTelMetrics(s.meter)
	if err != nil {
		return nil, apierr.NewConfigurationError("client.New", err)
	}

	c := &Client{
		cfg:       cfg,
		manager:   manager,
		transport: s.transport,
		validator: s.validator,
		policy:    PolicyFromConfig(cfg),
		baseURL:   baseURL,
		logger:    s.logger,
		tracer:    s.tracer,
		metrics:   metrics,
		strategy:  s.strategy,
	}

	c.logger.Debug("created api client",
		"base_url", baseURL,
		"max_retries", c.policy.MaxRetries,
		"retry_delay", c.policy.Delay)
	return c, nil
}

// SetStrategy pins subsequent requests to a named strategy.
func (c *Client) SetStrategy(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy = name
}

// ClearStrategy reverts to the manager's default strategy.
func (c *Client) ClearStrategy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy = ""
}

func (c *Client) strategyName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strategy
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOption decorates a request before execution.
type RequestOption func(*types.Request)

// WithHeader sets a single request header.
func WithHeader(name, value string) RequestOption {
	return func(r *types.Request) {
		r.SetHeader(name, value)
	}
}

// WithHeaders sets several request headers.
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *types.Request) {
		for name, value := range headers {
			r.SetHeader(name, value)
		}
	}
}

// WithQuery sets a single query parameter.
func WithQuery(name, value string) RequestOption {
	return func(r *types.Request) {
		r.SetQuery(name, value)
	}
}

// WithQueryParams sets several query parameters.
func WithQueryParams(params map[string]string) RequestOption {
	return func(r *types.Request) {
		for name, value := range params {
			r.SetQuery(name, value)
		}
	}
}

// NewRequest builds a request against the client's base URL with a fresh
// correlation ID and JSON content negotiation headers.
func (c *Client) NewRequest(method, endpoint string, opts ...RequestOption) *types.Request {
	req := types.NewRequest(method, c.baseURL, endpoint)
	req.ID = uuid.NewString()
	req.SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	return req
}

// Get executes a GET request against endpoint.
func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (*types.Response, error) {
	return c.Execute(ctx, c.NewRequest(http.MethodGet, endpoint, opts...))
}

// Post executes a POST request with a JSON-encoded body. A nil body sends
// an empty payload.
func (c *Client) Post(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*types.Response, error) {
	req, err := c.jsonRequest(http.MethodPost, endpoint, body, opts)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, req)
}

// Put executes a PUT request with a JSON-encoded body.
func (c *Client) Put(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*types.Response, error) {
	req, err := c.jsonRequest(http.MethodPut, endpoint, body, opts)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, req)
}

// Patch executes a PATCH request with a JSON-encoded body.
func (c *Client) Patch(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*types.Response, error) {
	req, err := c.jsonRequest(http.MethodPatch, endpoint, body, opts)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, req)
}

// Delete executes a DELETE request against endpoint.
func (c *Client) Delete(ctx context.Context, endpoint string, opts ...RequestOption) (*types.Response, error) {
	return c.Execute(ctx, c.NewRequest(http.MethodDelete, endpoint, opts...))
}

func (c *Client) jsonRequest(method, endpoint string, body any, opts []RequestOption) (*types.Request, error) {
	req := c.NewRequest(method, endpoint, opts...)
	if body == nil {
		return req, nil
	}

	data, err := sonic.Marshal(body)
	if err != nil {
		return nil, apierr.NewRequestError("client.Client.jsonRequest",
			fmt.Errorf("encoding request body: %w", err))
	}
	req.Body = data
	if req.Header("Content-Type") == "" {
		req.SetHeader("Content-Type", "application/json")
	}
	return req, nil
}
