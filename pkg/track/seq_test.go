package track

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/fyrsmithlabs/tracekit/pkg/obs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func letters(_ context.Context, n int) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, s := range []string{"a", "b", "c", "d", "e"}[:n] {
			if !yield(s) {
				return
			}
		}
	}
}

func TestSeq_UnconfiguredRemainsAGenerator(t *testing.T) {
	wrapped := Seq(letters, WithState(obs.NewState()))

	var got []string
	for s := range wrapped(context.Background(), 3) {
		got = append(got, s)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSeq_FullConsumption(t *testing.T) {
	st := obs.NewTestState()
	wrapped := Seq(letters, WithState(st.State), WithName("letters"))

	var got []string
	for s := range wrapped(context.Background(), 3) {
		got = append(got, s)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	span := st.SpanByName("letters")
	require.NotNil(t, span)
	obs.RequireAttr(t, span, "yield_count", int64(3))
	obs.RequireAttr(t, span, "generator_completed", true)
	obs.RequireAttr(t, span, "output", "abc")
	assert.Equal(t, codes.Ok, span.Status().Code)
}

func TestSeq_EarlyBreakRecordsPartialPrefix(t *testing.T) {
	st := obs.NewTestState()
	wrapped := Seq(letters, WithState(st.State), WithName("letters"))

	var got []string
	for s := range wrapped(context.Background(), 3) {
		got = append(got, s)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)

	span := st.SpanByName("letters")
	require.NotNil(t, span, "early break must still finalize the span")
	obs.RequireAttr(t, span, "yield_count", int64(2))
	obs.RequireAttr(t, span, "generator_completed", false)
	obs.RequireAttr(t, span, "output", "ab")
	// Early termination is clean, not an error.
	assert.NotEqual(t, codes.Error, span.Status().Code)
}

func TestSeq_YieldCountMatchesProductionUnderPanic(t *testing.T) {
	st := obs.NewTestState()
	boom := func(_ context.Context, _ int) iter.Seq[string] {
		return func(yield func(string) bool) {
			yield("a")
			yield("b")
			panic("producer exploded")
		}
	}
	wrapped := Seq(boom, WithState(st.State), WithName("boom"))

	assert.Panics(t, func() {
		for range wrapped(context.Background(), 0) {
		}
	})

	span := st.SpanByName("boom")
	require.NotNil(t, span)
	obs.RequireAttr(t, span, "yield_count", int64(2))
	obs.RequireAttr(t, span, "generator_completed", false)
	assert.Equal(t, codes.Error, span.Status().Code)
}

func TestSeq_MixedItemsRenderAsList(t *testing.T) {
	st := obs.NewTestState()
	mixed := func(_ context.Context, _ int) iter.Seq[any] {
		return func(yield func(any) bool) {
			_ = yield("a") && yield(1) && yield("b")
		}
	}
	wrapped := Seq(mixed, WithState(st.State), WithName("mixed"))

	for range wrapped(context.Background(), 0) {
	}

	obs.RequireAttr(t, st.SpanByName("mixed"), "output", "[a, 1, b]")
}

func TestSeq_CustomAggregator(t *testing.T) {
	st := obs.NewTestState()
	wrapped := Seq(letters,
		WithState(st.State),
		WithName("counted"),
		WithAggregator(func(items []any) (string, error) {
			return fmt.Sprintf("%d items", len(items)), nil
		}),
	)

	for range wrapped(context.Background(), 3) {
	}
	obs.RequireAttr(t, st.SpanByName("counted"), "output", "3 items")
}

func TestSeq_AggregatorFailureFallsBackToDefault(t *testing.T) {
	st := obs.NewTestState()

	failing := Seq(letters, WithState(st.State), WithName("agg-err"),
		WithAggregator(func([]any) (string, error) {
			return "", errors.New("no thanks")
		}))
	for range failing(context.Background(), 2) {
	}
	obs.RequireAttr(t, st.SpanByName("agg-err"), "output", "ab")

	panicking := Seq(letters, WithState(st.State), WithName("agg-panic"),
		WithAggregator(func([]any) (string, error) {
			panic("aggregator bug")
		}))
	assert.NotPanics(t, func() {
		for range panicking(context.Background(), 2) {
		}
	})
	obs.RequireAttr(t, st.SpanByName("agg-panic"), "output", "ab")
}

func TestSeq_WithoutOutputSkipsAggregation(t *testing.T) {
	st := obs.NewTestState()
	wrapped := Seq(letters, WithState(st.State), WithName("quiet"), WithoutOutput())

	for range wrapped(context.Background(), 2) {
	}

	span := st.SpanByName("quiet")
	obs.RequireAttr(t, span, "yield_count", int64(2))
	assert.Nil(t, obs.Attr(span, "output"))
}

func TestSeq2_ErrorElementRecorded(t *testing.T) {
	st := obs.NewTestState()
	sentinel := errors.New("mid-stream failure")
	fn := func(_ context.Context, _ int) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			_ = yield("a", nil) && yield("", sentinel)
		}
	}
	wrapped := Seq2(fn, WithState(st.State), WithName("flaky"))

	var seen []error
	for _, err := range wrapped(context.Background(), 0) {
		seen = append(seen, err)
	}
	require.Len(t, seen, 2)
	assert.NoError(t, seen[0])
	assert.ErrorIs(t, seen[1], sentinel)

	span := st.SpanByName("flaky")
	require.NotNil(t, span)
	obs.RequireAttr(t, span, "yield_count", int64(1))
	obs.RequireAttr(t, span, "generator_completed", false)
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "mid-stream failure", span.Status().Description)
}

func TestSeq2_CleanRun(t *testing.T) {
	st := obs.NewTestState()
	fn := func(_ context.Context, n int) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			for i := 0; i < n; i++ {
				if !yield("x", nil) {
					return
				}
			}
		}
	}
	wrapped := Seq2(fn, WithState(st.State), WithName("steady"))

	for range wrapped(context.Background(), 3) {
	}

	span := st.SpanByName("steady")
	obs.RequireAttr(t, span, "yield_count", int64(3))
	obs.RequireAttr(t, span, "generator_completed", true)
	assert.Equal(t, codes.Ok, span.Status().Code)
}
