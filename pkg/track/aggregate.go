package track

import (
	"fmt"

	"github.com/fyrsmithlabs/tracekit/internal/logging"
	"github.com/fyrsmithlabs/tracekit/internal/render"
	"github.com/fyrsmithlabs/tracekit/pkg/obs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// genState accumulates yield accounting for one generator execution. It is
// owned by exactly one wrapper invocation and finalized exactly once.
type genState struct {
	o         *options
	count     int64
	items     []any
	completed bool
	err       error
}

// observe accounts for one produced item.
func (g *genState) observe(v any) {
	g.count++
	if g.o.output {
		g.items = append(g.items, v)
	}
}

// finish finalizes the span across every exit path. Deferred directly by the
// wrapper so it also catches a panic from the producer or consumer, records
// it, and re-raises unchanged. Partial results are recorded on early
// termination.
func (g *genState) finish(span trace.Span) {
	if r := recover(); r != nil {
		span.RecordError(fmt.Errorf("panic: %v", r))
		span.SetStatus(codes.Error, render.Value(r))
		g.record(span)
		span.End()
		panic(r)
	}
	g.record(span)
	if g.err != nil {
		span.RecordError(g.err)
		span.SetStatus(codes.Error, g.err.Error())
	} else if g.completed {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (g *genState) record(span trace.Span) {
	span.SetAttributes(
		attribute.Int64(obs.AttrYieldCount, g.count),
		attribute.Bool(obs.AttrGeneratorCompleted, g.completed),
	)
	if g.o.output {
		span.SetAttributes(attribute.String(obs.AttrOutput, g.o.aggregate(g.items)))
	}
}

// aggregate condenses yielded items through the custom aggregator when one is
// installed, falling back to the default on error or panic.
func (o *options) aggregate(items []any) string {
	if o.aggregator != nil {
		s, err := runAggregator(o.aggregator, items)
		if err == nil {
			return render.Truncate(s)
		}
		logging.L().Warn("custom aggregator failed, using default",
			zap.String("span", o.name), zap.Error(err))
	}
	return defaultAggregate(items)
}

// defaultAggregate string-joins when every item is a string; otherwise it
// renders a bounded list. Mixed sequences never partially join.
func defaultAggregate(items []any) string {
	if s, ok := render.Join(items); ok {
		return s
	}
	return render.List(items)
}

func runAggregator(agg Aggregator, items []any) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("aggregator panicked: %v", r)
		}
	}()
	return agg(items)
}
