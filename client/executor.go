package client

import (
	"context"
	"fmt"
	"time"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/config"
	"github.com/apiharness/sdk/types"
)

// Defaults of the retry policy.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1000 * time.Millisecond
)

// Policy is the retry policy of the executor: up to MaxRetries additional
// attempts after the first, with a fixed Delay between attempts.
//
// Retries are attempt-based, not judgment-based. Only exchanges that never
// produced a response are retried; any completed response, whatever the
// status code, ends the loop.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

// PolicyFromConfig reads the retry policy from api.maxRetries and
// api.retryDelayMs.
func PolicyFromConfig(cfg *config.Provider) Policy {
	return Policy{
		MaxRetries: cfg.GetIntDefault("api.maxRetries", DefaultMaxRetries),
		Delay:      cfg.GetDuration("api.retryDelayMs", DefaultRetryDelay),
	}
}

// Execute sends the request with the client's configured retry policy.
func (c *Client) Execute(ctx context.Context, req *types.Request) (*types.Response, error) {
	return c.ExecuteWithPolicy(ctx, req, c.policy)
}

// ExecuteWithPolicy sends the request with an explicit retry policy. The
// request is authenticated, sent, and on transport failure retried up to
// policy.MaxRetries additional times. Each attempt starts from a pristine
// clone of the request. The completed response is validated before being
// returned.
func (c *Client) ExecuteWithPolicy(ctx context.Context, req *types.Request, policy Policy) (*types.Response, error) {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.Delay <= 0 {
		policy.Delay = DefaultRetryDelay
	}

	ctx, span := startSpan(ctx, c.tracer, req)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying request",
				"request_id", req.ID,
				"attempt", attempt+1,
				"max_attempts", policy.MaxRetries+1,
				"delay", policy.Delay,
				"error", lastErr)
			if err := sleep(ctx, policy.Delay); err != nil {
				finishSpan(span, nil, attempts, err)
				c.metrics.recordRequest(ctx, req, nil, attempts-1, err)
				return nil, apierr.NewRequestError("client.Client.Execute", err)
			}
		}
		attempts++

		attemptReq := req.Clone()
		if err := c.applyAuth(ctx, attemptReq); err != nil {
			// Credential production can fail transiently (token endpoint
			// hiccup); it burns an attempt like a transport failure.
			lastErr = err
			continue
		}

		resp, err := c.transport.RoundTrip(ctx, attemptReq)
		if err != nil {
			lastErr = err
			continue
		}

		// The exchange completed; whatever the status says, it is not
		// retried.
		finishSpan(span, resp, attempts, nil)
		c.metrics.recordRequest(ctx, req, resp, attempts-1, nil)

		if c.validator != nil {
			if err := c.validator.Validate(resp); err != nil {
				return resp, err
			}
		}
		return resp, nil
	}

	err := apierr.NewRequestError("client.Client.Execute",
		fmt.Errorf("%w after %d attempts: %w", apierr.ErrRetriesExhausted, attempts, lastErr))
	c.logger.Error("request failed after all retry attempts",
		"request_id", req.ID,
		"attempts", attempts,
		"error", lastErr)
	finishSpan(span, nil, attempts, err)
	c.metrics.recordRequest(ctx, req, nil, attempts-1, err)
	return nil, err
}

// applyAuth decorates the request with credentials. An explicitly pinned
// strategy that is not registered downgrades to an unauthenticated request
// with a warning.
func (c *Client) applyAuth(ctx context.Context, req *types.Request) error {
	if c.manager == nil {
		return nil
	}

	name := c.strategyName()
	if name == "" {
		return c.manager.Authenticate(ctx, req)
	}

	strategy, err := c.manager.Get(name)
	if err != nil {
		c.logger.Warn("pinned authentication strategy not registered, sending request without credentials",
			"strategy", name)
		return nil
	}
	return strategy.Authenticate(ctx, req)
}

// sleep waits for d or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
