package sdk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/auth"
	"github.com/apiharness/sdk/client"
	"github.com/apiharness/sdk/config"
	"github.com/apiharness/sdk/report"
	"github.com/apiharness/sdk/tokenstore"
)

// Harness wires the configuration provider, the authentication registry,
// the reporting manager, and observability into one entry point for test
// suites. Construction loads configuration; Start performs the side effects
// (strategy registration, run folder creation, tracer setup).
//
// Example:
//
//	h, err := sdk.New(sdk.WithConfigDir("config"), sdk.WithEnvironment("qa"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := h.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer h.FinalizeRun(ctx)
type Harness struct {
	cfg    *config.Provider
	auth   *auth.Manager
	report *report.Manager
	logger *slog.Logger

	transport     client.Transport
	tokenCache    auth.TokenCache
	clock         func() time.Time
	strategyOpts  []auth.Option
	clientTimeout time.Duration

	mu         sync.Mutex
	started    bool
	finalized  bool
	tracerProv trace.TracerProvider
	meterProv  metric.MeterProvider
	ownTracer  *sdktrace.TracerProvider
	redisStore *tokenstore.Redis
}

// New creates a harness and loads its configuration. No strategies are
// registered and no run folder exists until Start.
func New(opts ...Option) (*Harness, error) {
	c := harnessConfig{
		configDir: "config",
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}

	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	cfg, err := config.Load(c.configDir, c.environment, c.logger)
	if err != nil {
		return nil, err
	}

	return &Harness{
		cfg:           cfg,
		auth:          auth.NewManager(c.logger),
		report:        report.NewManager(cfg, c.logger),
		logger:        c.logger,
		transport:     c.transport,
		tokenCache:    c.tokenCache,
		clock:         c.clock,
		strategyOpts:  c.strategyOpts,
		clientTimeout: c.clientTimeout,
		tracerProv:    c.tracerProv,
		meterProv:     c.meterProv,
	}, nil
}

// Start registers the configured authentication strategies, connects the
// token store, creates the run folder, and sets up tracing. It must be
// called once before building clients.
func (h *Harness) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return apierr.NewConfigurationError("sdk.Harness.Start",
			fmt.Errorf("harness already started"))
	}

	cache := h.tokenCache
	if cache == nil && h.cfg.GetBoolDefault("tokenstore.enabled", false) {
		store, err := tokenstore.NewRedis(tokenstore.RedisOptions{
			URL:       h.cfg.GetStringDefault("tokenstore.redisUrl", ""),
			KeyPrefix: h.cfg.GetStringDefault("tokenstore.keyPrefix", ""),
		})
		if err != nil {
			// A broken token store degrades to per-process tokens.
			h.logger.Warn("token store unavailable, continuing without shared tokens", "error", err)
		} else {
			h.redisStore = store
			cache = store
		}
	}

	strategyOpts := []auth.Option{auth.WithClock(auth.Clock(h.clock))}
	if cache != nil {
		strategyOpts = append(strategyOpts, auth.WithTokenCache(cache))
	}
	strategyOpts = append(strategyOpts, h.strategyOpts...)
	h.auth.InitializeFromConfig(ctx, h.cfg, strategyOpts...)

	if err := h.report.StartRun(h.cfg.Environment()); err != nil {
		return err
	}

	if h.tracerProv == nil && h.report.Enabled() {
		exporter, err := report.NewSpanExporter(h.report.SpanPath(), h.logger)
		if err != nil {
			h.logger.Warn("span timeline unavailable", "error", err)
		} else {
			h.ownTracer = sdktrace.NewTracerProvider(
				sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
			)
			h.tracerProv = h.ownTracer
		}
	}

	h.started = true
	h.logger.Info("harness started",
		"environment", h.cfg.Environment(),
		"run_id", h.report.RunID(),
		"strategies", h.auth.Names())
	return nil
}

// Client builds a request executor wired to the harness configuration,
// authentication registry, and observability.
func (h *Harness) Client(opts ...client.ClientOption) (*client.Client, error) {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil, apierr.NewConfigurationError("sdk.Harness.Client",
			fmt.Errorf("harness not started"))
	}
	tracerProv := h.tracerProv
	meterProv := h.meterProv
	h.mu.Unlock()

	base := []client.ClientOption{client.WithLogger(h.logger)}
	if h.transport != nil {
		base = append(base, client.WithTransport(h.transport))
	}
	if h.clientTimeout > 0 {
		base = append(base, client.WithTimeout(h.clientTimeout))
	}
	if tracerProv != nil {
		base = append(base, client.WithTracer(tracerProv.Tracer("apiharness/client")))
	}
	if meterProv != nil {
		base = append(base, client.WithMeter(meterProv.Meter("apiharness/client")))
	}

	return client.New(h.cfg, h.auth, append(base, opts...)...)
}

// Config returns the configuration provider.
func (h *Harness) Config() *config.Provider {
	return h.cfg
}

// Auth returns the authentication strategy registry.
func (h *Harness) Auth() *auth.Manager {
	return h.auth
}

// Report returns the reporting manager.
func (h *Harness) Report() *report.Manager {
	return h.report
}

// Environment returns the active environment name.
func (h *Harness) Environment() string {
	return h.cfg.Environment()
}

// SwitchEnvironment re-targets configuration lookups at another
// environment. Already registered strategies keep their original settings.
func (h *Harness) SwitchEnvironment(env string) error {
	return h.cfg.SwitchEnvironment(env)
}

// Attach stores a named artifact in the active run folder.
func (h *Harness) Attach(name string, data []byte) error {
	return h.report.Attach(name, data)
}

// FinalizeRun flushes tracing, archives the run folder, and releases the
// token store connection. It is idempotent and safe to defer right after
// Start.
func (h *Harness) FinalizeRun(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.finalized {
		return nil
	}
	h.finalized = true

	var firstErr error
	if h.ownTracer != nil {
		if err := h.ownTracer.Shutdown(ctx); err != nil {
			h.logger.Warn("failed to shut down tracer provider", "error", err)
			firstErr = err
		}
	}

	if err := h.report.FinalizeRun(); err != nil {
		h.logger.Error("failed to finalize run", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	if h.redisStore != nil {
		if err := h.redisStore.Close(); err != nil {
			h.logger.Warn("failed to close token store", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
