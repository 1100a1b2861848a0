package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/baggage"
)

func baggageContext(t *testing.T, pairs map[string]string) context.Context {
	t.Helper()
	members := make([]baggage.Member, 0, len(pairs))
	for k, v := range pairs {
		m, err := baggage.NewMember(k, v)
		require.NoError(t, err)
		members = append(members, m)
	}
	bag, err := baggage.New(members...)
	require.NoError(t, err)
	return baggage.ContextWithBaggage(context.Background(), bag)
}

func TestBaggageProcessor_CopiesKnownKeys(t *testing.T) {
	st := NewTestState()
	ctx := baggageContext(t, map[string]string{
		"session_id":   "sess-42",
		"workspace_id": "ws-9",
	})

	_, span := st.Tracer("test").Start(ctx, "op")
	span.End()

	got := st.SpanByName("op")
	require.NotNil(t, got)
	RequireAttr(t, got, "session_id", "sess-42")
	RequireAttr(t, got, "workspace_id", "ws-9")
}

func TestBaggageProcessor_AbsentKeysProduceNoAttribute(t *testing.T) {
	st := NewTestState()

	_, span := st.Tracer("test").Start(context.Background(), "bare")
	span.End()

	got := st.SpanByName("bare")
	require.NotNil(t, got)
	for _, key := range BaggageKeys {
		require.Nil(t, Attr(got, key), "unexpected attribute %q", key)
	}
}

func TestBaggageProcessor_UnknownMembersIgnored(t *testing.T) {
	st := NewTestState()
	ctx := baggageContext(t, map[string]string{
		"session_id": "sess-1",
		"favourite":  "blue",
	})

	_, span := st.Tracer("test").Start(ctx, "op")
	span.End()

	got := st.SpanByName("op")
	RequireAttr(t, got, "session_id", "sess-1")
	require.Nil(t, Attr(got, "favourite"))
}

func TestBaggageProcessor_InheritedByNestedSpans(t *testing.T) {
	st := NewTestState()
	ctx := baggageContext(t, map[string]string{"user_id": "u-7"})

	ctx, parent := st.Tracer("test").Start(ctx, "parent")
	_, child := st.Tracer("test").Start(ctx, "child")
	child.End()
	parent.End()

	RequireAttr(t, st.SpanByName("parent"), "user_id", "u-7")
	RequireAttr(t, st.SpanByName("child"), "user_id", "u-7")
}

func TestBaggageProcessor_LifecycleNoOps(t *testing.T) {
	p := NewBaggageProcessor()
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.ForceFlush(context.Background()))
	p.OnEnd(nil)
}
