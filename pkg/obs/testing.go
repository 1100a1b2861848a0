package obs

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestState is a State backed by an in-memory span recorder. It never
// installs global providers and never opens network connections, so tests can
// exercise the full instrumentation path hermetically.
type TestState struct {
	*State
	SpanRecorder *tracetest.SpanRecorder
}

// NewTestState returns a configured TestState recording finished spans in
// memory. The baggage processor is registered so baggage-derived attributes
// behave exactly as in production.
func NewTestState() *TestState {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewBaggageProcessor()),
		sdktrace.WithSpanProcessor(recorder),
	)

	cfg := NewDefaultConfig()
	cfg.Mode = ModeCreate

	st := NewState()
	st.bundle.Store(&bundle{
		cfg:            cfg,
		mode:           ModeCreate,
		owned:          true,
		tracerProvider: tp,
		meterProvider:  noopMeterProvider,
		loggerProvider: noopLoggerProvider,
		sdkTracer:      tp,
	})

	return &TestState{State: st, SpanRecorder: recorder}
}

// Spans returns all finished spans in end order.
func (t *TestState) Spans() []sdktrace.ReadOnlySpan {
	return t.SpanRecorder.Ended()
}

// SpanByName returns the first finished span with the given name, or nil.
func (t *TestState) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, span := range t.Spans() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

// Attr returns the value of a span attribute as an interface, or nil when the
// attribute is absent.
func Attr(span sdktrace.ReadOnlySpan, key string) any {
	if span == nil {
		return nil
	}
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return attrValue(kv.Value)
		}
	}
	return nil
}

// RequireAttr fails the test when the span is missing the attribute or its
// value differs.
func RequireAttr(tb testing.TB, span sdktrace.ReadOnlySpan, key string, want any) {
	tb.Helper()
	if span == nil {
		tb.Fatalf("attribute %q: span is nil", key)
	}
	got := Attr(span, key)
	if got == nil {
		tb.Fatalf("span %q missing attribute %q", span.Name(), key)
	}
	if got != want {
		tb.Fatalf("span %q attribute %q: got %v (%T), want %v (%T)",
			span.Name(), key, got, got, want, want)
	}
}

// attrValue unboxes an attribute value for comparison.
func attrValue(v attribute.Value) any {
	switch v.Type() {
	case attribute.STRING:
		return v.AsString()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.BOOL:
		return v.AsBool()
	default:
		return v.AsInterface()
	}
}
