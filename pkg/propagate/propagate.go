// Package propagate carries trace context across goroutine boundaries that do
// not receive a context.Context of their own.
//
// Worker pools and task queues frequently accept bare func() values; spans
// started inside them would be orphaned from the submitting trace. The
// pattern here is explicit: capture the ambient context before submission,
// attach it inside the worker, and let the scoped helpers guarantee the
// detach. Nothing is ever inherited implicitly.
package propagate

import (
	"context"
	"iter"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

// Carrier is a snapshot of the ambient propagation context: the active span
// context plus baggage. It is immutable and safe to hand to any number of
// goroutines.
type Carrier struct {
	span trace.SpanContext
	bag  baggage.Baggage
}

// Capture snapshots the propagation context of ctx. Call it on the
// submitting goroutine, before handing work to a pool.
func Capture(ctx context.Context) Carrier {
	return Carrier{
		span: trace.SpanContextFromContext(ctx),
		bag:  baggage.FromContext(ctx),
	}
}

// Context attaches the captured propagation context onto base. Spans started
// from the returned context parent onto the captured span, and baggage-derived
// attributes keep flowing.
func (c Carrier) Context(base context.Context) context.Context {
	if base == nil {
		base = context.Background()
	}
	if c.span.IsValid() {
		base = trace.ContextWithSpanContext(base, c.span)
	}
	if c.bag.Len() > 0 {
		base = baggage.ContextWithBaggage(base, c.bag)
	}
	return base
}

// Run attaches the captured context, invokes fn, and restores on the way out
// even when fn panics. The attach and its cleanup are always paired.
func (c Carrier) Run(base context.Context, fn func(context.Context)) {
	ctx, cancel := context.WithCancel(c.Context(base))
	defer cancel()
	fn(ctx)
}

// Task wraps fn for submission to a context-unaware worker pool. The
// propagation context of ctx is captured now and attached inside the worker
// when the returned func runs.
func Task(ctx context.Context, fn func(context.Context)) func() {
	c := Capture(ctx)
	return func() {
		c.Run(context.Background(), fn)
	}
}

// ConsumeSeq runs produce under the captured context and ranges the resulting
// sequence to completion inside the same scope, feeding each value to
// consume. consume returning false stops iteration early.
//
// Generators must be consumed where the context is attached: returning an
// unconsumed iterator to the submitter would end the scope while the
// producer's span is still open.
func ConsumeSeq[V any](c Carrier, base context.Context, produce func(context.Context) iter.Seq[V], consume func(V) bool) {
	c.Run(base, func(ctx context.Context) {
		for v := range produce(ctx) {
			if !consume(v) {
				return
			}
		}
	})
}
