package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// scopeName identifies this module as the instrumentation scope for both
// spans and metric instruments.
const scopeName = "github.com/earshot-io/earshot"

// Tracer resolves the Earshot tracer from whatever [trace.TracerProvider] is
// currently registered globally, so spans started before [InitProvider] runs
// simply become no-ops instead of being lost to a stale provider reference.
func Tracer() trace.Tracer {
	return otel.Tracer(scopeName)
}

// StartSpan opens a span on the Earshot tracer. The caller owns the returned
// span and must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the hex trace ID of the span recorded in ctx, or ""
// when ctx carries no valid span. The same value is handed back to HTTP
// clients as the X-Correlation-ID header, so a report from a client can be
// matched to spans and log lines without any extra bookkeeping.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default slog logger, annotated with the trace_id and
// span_id from ctx when a span is active. Log lines emitted through it can be
// joined against exported spans.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
