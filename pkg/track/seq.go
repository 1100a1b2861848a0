package track

import (
	"context"
	"iter"
)

// Seq wraps an iterator producer. The wrapper's span opens when the consumer
// begins ranging and is finalized exactly once: on exhaustion, on an early
// break (clean termination, generator_completed=false), or on panic.
func Seq[A, V any](fn func(context.Context, A) iter.Seq[V], opts ...Option) func(context.Context, A) iter.Seq[V] {
	o := newOptions(fn, opts)
	return func(ctx context.Context, a A) iter.Seq[V] {
		st := o.st()
		if !st.Configured() {
			return fn(ctx, a)
		}
		return func(yield func(V) bool) {
			sctx, span := o.start(ctx, st)
			o.captureArgs(span, a)
			g := &genState{o: o}
			defer g.finish(span)
			for v := range fn(sctx, a) {
				g.observe(v)
				if !yield(v) {
					return
				}
			}
			g.completed = true
		}
	}
}

// Seq2 wraps an error-aware iterator producer in the (value, error) pairing
// convention. Error elements are recorded on the span and passed through to
// the consumer unchanged; only non-error elements count as yields.
func Seq2[A, V any](fn func(context.Context, A) iter.Seq2[V, error], opts ...Option) func(context.Context, A) iter.Seq2[V, error] {
	o := newOptions(fn, opts)
	return func(ctx context.Context, a A) iter.Seq2[V, error] {
		st := o.st()
		if !st.Configured() {
			return fn(ctx, a)
		}
		return func(yield func(V, error) bool) {
			sctx, span := o.start(ctx, st)
			o.captureArgs(span, a)
			g := &genState{o: o}
			defer g.finish(span)
			for v, err := range fn(sctx, a) {
				if err != nil {
					if g.err == nil {
						g.err = err
					}
					if !yield(v, err) {
						return
					}
					continue
				}
				g.observe(v)
				if !yield(v, nil) {
					return
				}
			}
			g.completed = g.err == nil
		}
	}
}
