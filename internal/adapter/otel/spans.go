package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "forgetop"

// StartIngestSpan starts a span for applying one feed update.
func StartIngestSpan(ctx context.Context, agentID, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "feed.ingest",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("update.kind", kind),
		),
	)
}

// StartControlSpan starts a span for one control request.
func StartControlSpan(ctx context.Context, agentID, control string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent.control",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("control", control),
		),
	)
}

// StartSummarySpan starts a span for fetching a cost or quality summary.
func StartSummarySpan(ctx context.Context, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "summary.fetch",
		trace.WithAttributes(attribute.String("summary.kind", kind)),
	)
}
