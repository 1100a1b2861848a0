package track

import "context"

// Chan wraps a channel-stream producer. A pump goroutine forwards every chunk
// to the returned channel, counting as it goes, and finalizes the span when
// the inner channel closes or the context is cancelled. Cancellation,
// including a consumer that simply stops reading and cancels, is clean early
// termination rather than an error and still reaches the finalize step.
//
// A consumer that stops receiving must cancel ctx: abandoning the returned
// channel with a live context blocks the pump and leaves the span open.
func Chan[A, V any](fn func(context.Context, A) (<-chan V, error), opts ...Option) func(context.Context, A) (<-chan V, error) {
	o := newOptions(fn, opts)
	return func(ctx context.Context, a A) (<-chan V, error) {
		st := o.st()
		if !st.Configured() {
			return fn(ctx, a)
		}

		sctx, span := o.start(ctx, st)
		o.captureArgs(span, a)

		inner, err := fn(sctx, a)
		if err != nil {
			o.fail(span, err)
			return inner, err
		}

		out := make(chan V)
		go func() {
			defer close(out)
			g := &genState{o: o}
			defer g.finish(span)
			for {
				select {
				case v, ok := <-inner:
					if !ok {
						g.completed = true
						return
					}
					select {
					case out <- v:
						g.observe(v)
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}
}
