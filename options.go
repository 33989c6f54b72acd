package sdk

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/apiharness/sdk/auth"
	"github.com/apiharness/sdk/client"
)

// Option configures a Harness at construction time.
type Option func(*harnessConfig)

type harnessConfig struct {
	logger        *slog.Logger
	configDir     string
	environment   string
	transport     client.Transport
	tokenCache    auth.TokenCache
	tracerProv    trace.TracerProvider
	meterProv     metric.MeterProvider
	clock         func() time.Time
	strategyOpts  []auth.Option
	clientTimeout time.Duration
}

// WithLogger sets the harness logger. Defaults to a JSON slog handler on
// stdout.
func WithLogger(logger *slog.Logger) Option {
	return func(c *harnessConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConfigDir sets the configuration directory. Defaults to "config".
func WithConfigDir(dir string) Option {
	return func(c *harnessConfig) {
		if dir != "" {
			c.configDir = dir
		}
	}
}

// WithEnvironment selects the environment explicitly, overriding the
// HARNESS_ENV variable.
func WithEnvironment(env string) Option {
	return func(c *harnessConfig) {
		c.environment = env
	}
}

// WithTransport substitutes the HTTP transport used by clients built from
// this harness. Intended for tests.
func WithTransport(t client.Transport) Option {
	return func(c *harnessConfig) {
		c.transport = t
	}
}

// WithTokenCache injects a token cache, overriding the tokenstore.*
// configuration.
func WithTokenCache(cache auth.TokenCache) Option {
	return func(c *harnessConfig) {
		c.tokenCache = cache
	}
}

// WithTracerProvider injects a tracer provider, disabling the built-in
// run-folder span exporter.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *harnessConfig) {
		c.tracerProv = tp
	}
}

// WithMeterProvider injects a meter provider for client metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *harnessConfig) {
		c.meterProv = mp
	}
}

// WithClock injects the time source used by the authentication strategies.
func WithClock(clock func() time.Time) Option {
	return func(c *harnessConfig) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithStrategyOptions appends options passed to every strategy built from
// configuration.
func WithStrategyOptions(opts ...auth.Option) Option {
	return func(c *harnessConfig) {
		c.strategyOpts = append(c.strategyOpts, opts...)
	}
}

// WithClientTimeout sets the default HTTP timeout of clients built from
// this harness.
func WithClientTimeout(d time.Duration) Option {
	return func(c *harnessConfig) {
		c.clientTimeout = d
	}
}
