// Package telemetry provides the engine's tracing entry points.
//
// No exporter is wired here: spans flow through the global otel provider,
// which is a no-op unless the embedding process installs one.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tta-solo/engine"

// Tracer returns the engine's named tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartTurn opens a span for one resolved turn.
func StartTurn(ctx context.Context, universeID, intentType string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "engine.turn", trace.WithAttributes(
		attribute.String("universe.id", universeID),
		attribute.String("intent.type", intentType),
	))
}

// StartLLMCall opens a span for one LLM port call.
func StartLLMCall(ctx context.Context, purpose string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "engine.llm", trace.WithAttributes(
		attribute.String("llm.purpose", purpose),
	))
}
