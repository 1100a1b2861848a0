package propagate

import (
	"context"
	"iter"
	"testing"

	"github.com/fyrsmithlabs/tracekit/pkg/obs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

func TestCapture_EmptyContext(t *testing.T) {
	c := Capture(context.Background())
	ctx := c.Context(context.Background())
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}

func TestContext_ReattachesSpanAndBaggage(t *testing.T) {
	st := obs.NewTestState()
	m, err := baggage.NewMember("user_id", "u-1")
	require.NoError(t, err)
	bag, err := baggage.New(m)
	require.NoError(t, err)

	ctx := baggage.ContextWithBaggage(context.Background(), bag)
	ctx, span := st.Tracer("t").Start(ctx, "parent")
	defer span.End()

	c := Capture(ctx)
	fresh := c.Context(context.Background())

	assert.Equal(t, span.SpanContext().SpanID(), trace.SpanContextFromContext(fresh).SpanID())
	assert.Equal(t, "u-1", baggage.FromContext(fresh).Member("user_id").Value())
}

func TestTask_WorkerSpansParentOntoSubmitter(t *testing.T) {
	st := obs.NewTestState()
	ctx, parent := st.Tracer("t").Start(context.Background(), "submitter")

	var g errgroup.Group
	task := Task(ctx, func(ctx context.Context) {
		_, child := st.Tracer("t").Start(ctx, "worker")
		child.End()
	})
	g.Go(func() error {
		task()
		return nil
	})
	require.NoError(t, g.Wait())
	parent.End()

	child := st.SpanByName("worker")
	require.NotNil(t, child)
	assert.Equal(t, parent.SpanContext().SpanID(), child.Parent().SpanID())
	assert.Equal(t, parent.SpanContext().TraceID(), child.SpanContext().TraceID())
}

func TestTask_FanOut(t *testing.T) {
	st := obs.NewTestState()
	ctx, parent := st.Tracer("t").Start(context.Background(), "fan-out")

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		task := Task(ctx, func(ctx context.Context) {
			_, s := st.Tracer("t").Start(ctx, "branch")
			s.End()
		})
		g.Go(func() error {
			task()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	parent.End()

	branches := 0
	for _, s := range st.Spans() {
		if s.Name() == "branch" {
			branches++
			assert.Equal(t, parent.SpanContext().TraceID(), s.SpanContext().TraceID())
		}
	}
	assert.Equal(t, 4, branches)
}

func TestRun_PairedCleanupOnPanic(t *testing.T) {
	c := Capture(context.Background())
	assert.Panics(t, func() {
		c.Run(context.Background(), func(context.Context) { panic("boom") })
	})
}

func TestConsumeSeq_FullConsumptionInsideWorker(t *testing.T) {
	st := obs.NewTestState()
	ctx, parent := st.Tracer("t").Start(context.Background(), "caller")
	c := Capture(ctx)
	parent.End()

	produce := func(ctx context.Context) iter.Seq[int] {
		return func(yield func(int) bool) {
			_, span := st.Tracer("t").Start(ctx, "producer")
			defer span.End()
			for i := 1; i <= 3; i++ {
				if !yield(i) {
					return
				}
			}
		}
	}

	var got []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		ConsumeSeq(c, context.Background(), produce, func(v int) bool {
			got = append(got, v)
			return true
		})
	}()
	<-done

	assert.Equal(t, []int{1, 2, 3}, got)
	producer := st.SpanByName("producer")
	require.NotNil(t, producer, "producer span must finish inside the worker scope")
	assert.Equal(t, parent.SpanContext().SpanID(), producer.Parent().SpanID())
}

func TestConsumeSeq_EarlyStop(t *testing.T) {
	c := Capture(context.Background())
	seq := func(context.Context) iter.Seq[string] {
		return func(yield func(string) bool) {
			for _, s := range []string{"a", "b", "c"} {
				if !yield(s) {
					return
				}
			}
		}
	}

	var got []string
	ConsumeSeq(c, context.Background(), seq, func(s string) bool {
		got = append(got, s)
		return len(got) < 2
	})
	assert.Equal(t, []string{"a", "b"}, got)
}
