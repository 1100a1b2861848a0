package track

import "context"

// Func0 wraps a plain call taking no arguments beyond the context.
func Func0[O any](fn func(context.Context) (O, error), opts ...Option) func(context.Context) (O, error) {
	o := newOptions(fn, opts)
	return func(ctx context.Context) (O, error) {
		st := o.st()
		if !st.Configured() {
			return fn(ctx)
		}
		ctx, span := o.start(ctx, st)
		defer o.repanic(span)
		out, err := fn(ctx)
		if err != nil {
			o.fail(span, err)
			return out, err
		}
		o.succeed(span, out)
		return out, nil
	}
}

// Func wraps a plain single-argument call. The decorated call's return value
// and error are identical to the undecorated call's, configured or not.
func Func[A, O any](fn func(context.Context, A) (O, error), opts ...Option) func(context.Context, A) (O, error) {
	o := newOptions(fn, opts)
	return func(ctx context.Context, a A) (O, error) {
		st := o.st()
		if !st.Configured() {
			return fn(ctx, a)
		}
		ctx, span := o.start(ctx, st)
		defer o.repanic(span)
		o.captureArgs(span, a)
		out, err := fn(ctx, a)
		if err != nil {
			o.fail(span, err)
			return out, err
		}
		o.succeed(span, out)
		return out, nil
	}
}

// Func2 wraps a plain two-argument call.
func Func2[A, B, O any](fn func(context.Context, A, B) (O, error), opts ...Option) func(context.Context, A, B) (O, error) {
	o := newOptions(fn, opts)
	return func(ctx context.Context, a A, b B) (O, error) {
		st := o.st()
		if !st.Configured() {
			return fn(ctx, a, b)
		}
		ctx, span := o.start(ctx, st)
		defer o.repanic(span)
		o.captureArgs(span, a, b)
		out, err := fn(ctx, a, b)
		if err != nil {
			o.fail(span, err)
			return out, err
		}
		o.succeed(span, out)
		return out, nil
	}
}
