package report

import (
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanExporter implements the OpenTelemetry SpanExporter interface and
// appends completed spans to a JSON-lines file inside the run folder. The
// file gives a request-level timeline of the run that survives the process
// and is archived together with the rest of the results.
//
// The exporter is fire-and-forget: write failures are logged but never
// returned, so a full disk cannot break the trace pipeline.
type SpanExporter struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
	logger *slog.Logger
}

// NewSpanExporter creates an exporter appending to path.
func NewSpanExporter(path string, logger *slog.Logger) (*SpanExporter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	return &SpanExporter{file: file, logger: logger}, nil
}

// spanRecord is the JSON line written per span.
type spanRecord struct {
	TraceID  string         `json:"trace_id"`
	SpanID   string         `json:"span_id"`
	ParentID string         `json:"parent_id,omitempty"`
	Name     string         `json:"name"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// ExportSpans writes one JSON line per completed span. It always returns
// nil; failures are logged.
func (e *SpanExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	for _, span := range spans {
		record := spanToRecord(span)
		data, err := sonic.Marshal(record)
		if err != nil {
			e.logger.Error("failed to encode span record", "span", span.Name(), "error", err)
			continue
		}
		if _, err := e.file.Write(append(data, '\n')); err != nil {
			e.logger.Error("failed to write span record", "span", span.Name(), "error", err)
		}
	}

	return nil
}

// Shutdown closes the span file. Further exports are silently dropped.
func (e *SpanExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.file.Close()
}

func spanToRecord(span sdktrace.ReadOnlySpan) spanRecord {
	sc := span.SpanContext()
	traceID := sc.TraceID()
	spanID := sc.SpanID()

	record := spanRecord{
		TraceID: hex.EncodeToString(traceID[:]),
		SpanID:  hex.EncodeToString(spanID[:]),
		Name:    span.Name(),
		Start:   span.StartTime(),
		End:     span.EndTime(),
		Status:  statusName(span.Status().Code),
		Message: span.Status().Description,
	}

	if span.Parent().IsValid() {
		parentID := span.Parent().SpanID()
		record.ParentID = hex.EncodeToString(parentID[:])
	}

	if attrs := span.Attributes(); len(attrs) > 0 {
		record.Attrs = make(map[string]any, len(attrs))
		for _, attr := range attrs {
			record.Attrs[string(attr.Key)] = attributeValue(attr.Value)
		}
	}

	return record
}

func statusName(code codes.Code) string {
	switch code {
	case codes.Ok:
		return "ok"
	case codes.Error:
		return "error"
	default:
		return "unset"
	}
}

func attributeValue(val attribute.Value) any {
	switch val.Type() {
	case attribute.BOOL:
		return val.AsBool()
	case attribute.INT64:
		return val.AsInt64()
	case attribute.FLOAT64:
		return val.AsFloat64()
	case attribute.STRING:
		return val.AsString()
	default:
		return val.AsInterface()
	}
}
