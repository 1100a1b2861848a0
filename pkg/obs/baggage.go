package obs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// baggageProcessor copies well-known baggage members onto every span at start.
//
// It guarantees that nested and library-internal spans inherit caller-scoped
// identifiers (session, user, workspace, ...) without any call-site awareness.
// Its only responsibility is attribute copying; span end, shutdown, and flush
// are no-ops.
type baggageProcessor struct{}

// NewBaggageProcessor returns a span processor that copies the members named
// in BaggageKeys, in order, from the parent context's baggage onto each new
// span. Absent members produce no attribute.
func NewBaggageProcessor() sdktrace.SpanProcessor {
	return baggageProcessor{}
}

func (baggageProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	bag := baggage.FromContext(parent)
	for _, key := range BaggageKeys {
		if v := bag.Member(key).Value(); v != "" {
			s.SetAttributes(attribute.String(key, v))
		}
	}
}

func (baggageProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (baggageProcessor) Shutdown(context.Context) error { return nil }

func (baggageProcessor) ForceFlush(context.Context) error { return nil }
