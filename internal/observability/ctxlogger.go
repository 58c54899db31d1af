package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// LoggerWithTrace returns the process logger annotated with the span
// identity carried by ctx, so per-turn pipeline log lines correlate with
// their traces. Without an active span it returns the plain logger.
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return &l
	}
	c := l.With().Str("trace_id", sc.TraceID().String())
	if sc.HasSpanID() {
		c = c.Str("span_id", sc.SpanID().String())
	}
	if sc.IsSampled() {
		c = c.Bool("trace_sampled", true)
	}
	l = c.Logger()
	return &l
}
