package track

import (
	"context"

	"github.com/fyrsmithlabs/tracekit/pkg/propagate"
)

// Future is the handle returned by an [Async] wrapper. Wait blocks until the
// background call finishes and returns its result; it may be called any
// number of times.
type Future[O any] struct {
	done chan struct{}
	out  O
	err  error
}

// Wait blocks until the call completes and returns its result and error
// exactly as the wrapped function produced them.
func (f *Future[O]) Wait() (O, error) {
	<-f.done
	return f.out, f.err
}

// Done is closed when the call completes.
func (f *Future[O]) Done() <-chan struct{} { return f.done }

// Async wraps a call that runs on its own goroutine. The submitting context's
// propagation state is captured before launch and attached inside the
// goroutine, so the span parents onto the submitter even though the worker
// never sees the submitter's context chain. The span covers the goroutine's
// entire execution.
func Async[A, O any](fn func(context.Context, A) (O, error), opts ...Option) func(context.Context, A) *Future[O] {
	o := newOptions(fn, opts)
	return func(ctx context.Context, a A) *Future[O] {
		f := &Future[O]{done: make(chan struct{})}
		st := o.st()
		if !st.Configured() {
			go func() {
				defer close(f.done)
				f.out, f.err = fn(ctx, a)
			}()
			return f
		}

		carrier := propagate.Capture(ctx)
		go func() {
			defer close(f.done)
			carrier.Run(context.Background(), func(ctx context.Context) {
				ctx, span := o.start(ctx, st)
				defer o.repanic(span)
				o.captureArgs(span, a)
				f.out, f.err = fn(ctx, a)
				if f.err != nil {
					o.fail(span, f.err)
					return
				}
				o.succeed(span, f.out)
			})
		}()
		return f
	}
}
