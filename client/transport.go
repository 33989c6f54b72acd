package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/apiharness/sdk/types"
)

// Transport performs a single HTTP exchange. It is the seam between the
// retry executor and the network: production code uses HTTPTransport, tests
// substitute scripted fakes.
//
// A Transport must return a non-nil response exactly when the exchange
// completed, whatever the status code. A returned error means the exchange
// never produced a response (connect failure, timeout) and is therefore
// retryable.
type Transport interface {
	RoundTrip(ctx context.Context, req *types.Request) (*types.Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *types.Request) (*types.Response, error)

// RoundTrip calls f.
func (f TransportFunc) RoundTrip(ctx context.Context, req *types.Request) (*types.Response, error) {
	return f(ctx, req)
}

// HTTPTransport sends requests with net/http and buffers the full response
// body before returning.
type HTTPTransport struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPTransport creates a transport with the given timeout. A zero
// timeout means no client-side limit beyond the request context.
func NewHTTPTransport(timeout time.Duration, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// RoundTrip performs the exchange and returns the buffered response.
func (t *HTTPTransport) RoundTrip(ctx context.Context, req *types.Request) (*types.Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header = req.Headers.Clone()

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	elapsed := time.Since(start)

	t.logger.Debug("completed http exchange",
		"method", req.Method,
		"url", req.URL(),
		"status", httpResp.StatusCode,
		"elapsed_ms", elapsed.Milliseconds(),
		"request_id", req.ID)

	return &types.Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    httpResp.Header,
		Body:       respBody,
		RequestID:  req.ID,
		Elapsed:    elapsed,
	}, nil
}
