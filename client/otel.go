package client

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/apiharness/sdk/types"
)

// otelMetrics holds the OpenTelemetry metric instruments for the client.
// They are created once at client construction and reused for all requests.
type otelMetrics struct {
	// requestCounter increments once per completed Execute call
	requestCounter metric.Int64Counter

	// retryCounter increments once per retried attempt
	retryCounter metric.Int64Counter

	// durationHistogram records end-to-end request duration in milliseconds
	durationHistogram metric.Float64Histogram
}

// initOTelMetrics creates the metric instruments from the configured meter.
// A nil meter disables metrics without error.
func initOTelMetrics(meter metric.Meter) (*otelMetrics, error) {
	if meter == nil {
		return nil, nil
	}

	m := &otelMetrics{}
	var err error

	m.requestCounter, err = meter.Int64Counter(
		"api.client.requests",
		metric.WithDescription("Number of executed API requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}

	m.retryCounter, err = meter.Int64Counter(
		"api.client.retries",
		metric.WithDescription("Number of retried request attempts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create retry counter: %w", err)
	}

	m.durationHistogram, err = meter.Float64Histogram(
		"api.client.duration",
		metric.WithDescription("End-to-end request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return m, nil
}

// startSpan opens a span for one executed request. A nil tracer returns the
// context unchanged and a nil span.
func startSpan(ctx context.Context, tracer trace.Tracer, req *types.Request) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, nil
	}

	ctx, span := tracer.Start(ctx, "api.client.execute")
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL()),
		attribute.String("request.id", req.ID),
	)
	return ctx, span
}

// finishSpan closes the span with the outcome of the exchange. Observability
// failures never affect the request flow.
func finishSpan(span trace.Span, resp *types.Response, attempts int, err error) {
	if span == nil {
		return
	}
	defer span.End()

	span.SetAttributes(attribute.Int("request.attempts", attempts))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Float64("request.duration_ms", float64(resp.Elapsed.Milliseconds())),
	)
	if resp.IsServerError() || resp.IsClientError() {
		span.SetStatus(codes.Error, resp.Status)
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

// recordRequest records the per-request metrics. A nil receiver is a no-op.
func (m *otelMetrics) recordRequest(ctx context.Context, req *types.Request, resp *types.Response, retries int, err error) {
	if m == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	opts := metric.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("outcome", outcome),
	)

	m.requestCounter.Add(ctx, 1, opts)
	if retries > 0 {
		m.retryCounter.Add(ctx, int64(retries), opts)
	}
	if resp != nil {
		m.durationHistogram.Record(ctx, float64(resp.Elapsed.Milliseconds()), opts)
	}
}
