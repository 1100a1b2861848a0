// Package track wraps functions, futures, iterators, and channel streams
// with spans.
//
// The set of calling conventions is closed at the API surface: the variant
// is chosen once, at wrap time, and never re-classified per call.
//
//   - [Func0], [Func], [Func2] wrap plain calls.
//   - [Async] wraps a call executed on its own goroutine, returning a
//     [Future] to wait on; the span covers the goroutine's execution.
//   - [Seq], [Seq2] wrap iterator producers. The span opens when the
//     consumer begins ranging and is finalized exactly once, on exhaustion,
//     early break, or panic.
//   - [Chan] wraps channel-stream producers. A pump goroutine forwards
//     chunks, counts them, and finalizes on inner-channel close or context
//     cancellation; cancellation is clean early termination, not an error.
//
// Every wrapper consults its observability state first and calls straight
// through when unconfigured: generators remain generators, results and
// errors are bit-identical to the unwrapped call. Errors from wrapped code
// are recorded on the span and returned unchanged; instrumentation-internal
// failures are logged and never alter the call's outcome.
//
//	double := track.Func(func(ctx context.Context, x int) (int, error) {
//	    return x * 2, nil
//	}, track.WithName("double"), track.WithArgNames("x"))
package track
