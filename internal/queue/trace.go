package queue

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Inject writes the span context of ctx into m's headers so the consumer side can
// continue the trace.
func Inject(ctx context.Context, m *Message) {
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(m.Headers))
}

func Extract(ctx context.Context, m Message) context.Context {
	if len(m.Headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(m.Headers))
}
