package agentloop

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is named "mama/agentloop", following goclaw's
// internal/agent/loop_tracing.go convention of one root span per run
// ("agentloop.run") parenting one "agentloop.turn" span per backend call
// and one "agentloop.tool_call" span per tool invocation, on real
// OpenTelemetry spans.
var tracer = otel.Tracer("mama/agentloop")

func startRunSpan(ctx context.Context, channelKey string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agentloop.run",
		trace.WithAttributes(attribute.String("mama.channel_key", channelKey)))
}

func startTurnSpan(ctx context.Context, backend string, turn int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agentloop.turn",
		trace.WithAttributes(
			attribute.String("mama.backend", backend),
			attribute.Int("mama.turn", turn),
		))
}

func startToolSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agentloop.tool_call",
		trace.WithAttributes(attribute.String("mama.tool", name)))
}

func endSpan(span trace.Span, start time.Time, err error) {
	span.SetAttributes(attribute.Int64("mama.duration_ms", time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
