package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/tracekit/pkg/obs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStream serves a fixed chunk slice, optionally ending in a terminal
// error, and counts Close calls.
type fakeStream[T any] struct {
	items  []T
	idx    int
	cur    T
	err    error
	closed int
}

func (f *fakeStream[T]) Next() bool {
	if f.idx >= len(f.items) {
		return false
	}
	f.cur = f.items[f.idx]
	f.idx++
	return true
}

func (f *fakeStream[T]) Current() T { return f.cur }

func (f *fakeStream[T]) Err() error {
	if f.idx >= len(f.items) {
		return f.err
	}
	return nil
}

func (f *fakeStream[T]) Close() error {
	f.closed++
	return nil
}

func drain[T any](s *Tracked[T]) []T {
	var out []T
	for s.Next() {
		out = append(out, s.Current())
	}
	return out
}

func TestTracked_UnconfiguredPassesThrough(t *testing.T) {
	inner := &fakeStream[string]{items: []string{"a", "b"}}
	s, _ := New(context.Background(), "raw", inner, WithState(obs.NewState()))

	assert.Equal(t, []string{"a", "b"}, drain(s))
	assert.NoError(t, s.Err())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, inner.closed)
	assert.Equal(t, int64(0), s.Chunks())
}

func TestTracked_FullConsumption(t *testing.T) {
	st := obs.NewTestState()
	inner := &fakeStream[string]{items: []string{"a", "b", "c"}}

	s, _ := New(context.Background(), "completion", inner, WithState(st.State))
	assert.Equal(t, []string{"a", "b", "c"}, drain(s))
	require.NoError(t, s.Close())

	span := st.SpanByName("completion")
	require.NotNil(t, span)
	obs.RequireAttr(t, span, obs.AttrStreamChunkCount, int64(3))
	obs.RequireAttr(t, span, obs.AttrStreamCompleted, true)
	assert.Equal(t, codes.Ok, span.Status().Code)

	ttft, ok := obs.Attr(span, obs.AttrStreamTTFTMillis).(float64)
	require.True(t, ok, "first chunk must record time-to-first-chunk")
	assert.GreaterOrEqual(t, ttft, 0.0)
}

func TestTracked_EarlyCloseIsNotCompleted(t *testing.T) {
	st := obs.NewTestState()
	inner := &fakeStream[string]{items: []string{"a", "b", "c"}}

	s, _ := New(context.Background(), "abandoned", inner, WithState(st.State))
	require.True(t, s.Next())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 2, inner.closed)

	spans := st.Spans()
	require.Len(t, spans, 1, "finalize must run exactly once")
	span := spans[0]
	obs.RequireAttr(t, span, obs.AttrStreamChunkCount, int64(1))
	obs.RequireAttr(t, span, obs.AttrStreamCompleted, false)
	assert.NotEqual(t, codes.Error, span.Status().Code)
}

func TestTracked_TerminalErrorRecorded(t *testing.T) {
	st := obs.NewTestState()
	sentinel := errors.New("connection reset")
	inner := &fakeStream[string]{items: []string{"a"}, err: sentinel}

	s, _ := New(context.Background(), "broken", inner, WithState(st.State))
	drain(s)
	assert.ErrorIs(t, s.Err(), sentinel)

	span := st.SpanByName("broken")
	require.NotNil(t, span)
	obs.RequireAttr(t, span, obs.AttrStreamCompleted, false)
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "connection reset", span.Status().Description)
}

func TestTracked_ExtractorPanicContained(t *testing.T) {
	st := obs.NewTestState()
	inner := &fakeStream[string]{items: []string{"a"}}

	s, _ := New(context.Background(), "fragile", inner,
		WithState(st.State),
		WithExtractor(func([]any) []attribute.KeyValue {
			panic("extractor bug")
		}))

	assert.NotPanics(t, func() { drain(s) })

	span := st.SpanByName("fragile")
	require.NotNil(t, span)
	obs.RequireAttr(t, span, obs.AttrStreamChunkCount, int64(1))
	assert.Equal(t, codes.Ok, span.Status().Code)
}

func TestTracked_WithoutCaptureSkipsExtraction(t *testing.T) {
	st := obs.NewTestState()
	inner := &fakeStream[string]{items: []string{"a", "b"}}
	called := false

	s, _ := New(context.Background(), "uncaptured", inner,
		WithState(st.State),
		WithoutCapture(),
		WithExtractor(func([]any) []attribute.KeyValue {
			called = true
			return nil
		}))
	drain(s)

	assert.False(t, called)
	obs.RequireAttr(t, st.SpanByName("uncaptured"), obs.AttrStreamChunkCount, int64(2))
}

func TestTracked_ReturnedContextParentsNestedWork(t *testing.T) {
	st := obs.NewTestState()
	inner := &fakeStream[string]{items: []string{"a"}}

	s, ctx := New(context.Background(), "parent", inner, WithState(st.State))
	_, child := st.Tracer("t").Start(ctx, "child")
	child.End()
	drain(s)

	parent := st.SpanByName("parent")
	got := st.SpanByName("child")
	require.NotNil(t, parent)
	require.NotNil(t, got)
	assert.Equal(t, parent.SpanContext().SpanID(), got.Parent().SpanID())
}

func TestTracked_TypeAndStaticAttributes(t *testing.T) {
	st := obs.NewTestState()
	inner := &fakeStream[string]{items: []string{"a"}}

	s, _ := New(context.Background(), "typed", inner,
		WithState(st.State),
		WithType("llm"),
		WithAttributes(attribute.String("provider", "acme")))
	drain(s)

	span := st.SpanByName("typed")
	obs.RequireAttr(t, span, obs.AttrType, "llm")
	obs.RequireAttr(t, span, "provider", "acme")
}
