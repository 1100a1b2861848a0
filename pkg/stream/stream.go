// Package stream manages span lifetime across externally produced chunk
// iterators.
//
// A Tracked stream opens its span the moment the stream is constructed,
// measures time-to-first-chunk, counts every chunk, and finalizes exactly
// once on exhaustion, explicit Close, or error. A garbage-collection fallback
// exists purely as a logged safety net; correct callers always reach the
// deterministic finalize path.
package stream

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/tracekit/internal/logging"
	"github.com/fyrsmithlabs/tracekit/pkg/obs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Iterator is the chunk-stream shape Tracked wraps: the Next/Current pairing
// used by SSE-style client streams. Err reports a terminal stream error after
// Next returns false.
type Iterator[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// ExtractFunc derives response-shaped attributes from the accumulated chunk
// buffer at finalize time. Failures are contained: a panicking extractor is
// logged and ignored.
type ExtractFunc func(chunks []any) []attribute.KeyValue

// Option configures a Tracked stream at construction time.
type Option func(*config)

type config struct {
	state    *obs.State
	spanType string
	attrs    []attribute.KeyValue
	capture  bool
	extract  ExtractFunc
}

// WithState pins the stream to an explicit observability state.
func WithState(st *obs.State) Option { return func(c *config) { c.state = st } }

// WithType declares the span's type tag.
func WithType(t string) Option { return func(c *config) { c.spanType = t } }

// WithAttributes sets static attributes on the stream span.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(c *config) { c.attrs = append(c.attrs, attrs...) }
}

// WithoutCapture disables chunk buffering; chunk counting and timing still
// apply, but no response attributes can be extracted.
func WithoutCapture() Option { return func(c *config) { c.capture = false } }

// WithExtractor installs the response-attribute extractor run at finalize.
func WithExtractor(fn ExtractFunc) Option { return func(c *config) { c.extract = fn } }

// Tracked wraps an inner chunk iterator with a span covering the stream's
// whole life, from construction to finalize.
type Tracked[T any] struct {
	inner   Iterator[T]
	core    *core
	cleanup runtime.Cleanup
}

// core carries everything finalize needs. It is a separate allocation so the
// GC fallback can reach it after the Tracked wrapper itself becomes
// unreachable.
type core struct {
	name      string
	span      trace.Span
	started   time.Time
	sawFirst  bool
	chunks    int64
	capture   bool
	buf       []any
	extract   ExtractFunc
	finalized atomic.Bool
}

// New wraps inner in a Tracked stream. The span opens immediately; the
// returned context carries it so nested work parents correctly. When the
// state is unconfigured the inner iterator is wrapped with zero overhead and
// no span.
func New[T any](ctx context.Context, name string, inner Iterator[T], opts ...Option) (*Tracked[T], context.Context) {
	cfg := config{capture: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	st := cfg.state
	if st == nil {
		st = obs.Default()
	}
	if !st.Configured() {
		return &Tracked[T]{inner: inner}, ctx
	}

	ctx, span := st.Tracer(obs.ScopeName).Start(ctx, name)
	if cfg.spanType != "" {
		span.SetAttributes(attribute.String(obs.AttrType, cfg.spanType))
	}
	if len(cfg.attrs) > 0 {
		span.SetAttributes(cfg.attrs...)
	}

	s := &Tracked[T]{
		inner: inner,
		core: &core{
			name:    name,
			span:    span,
			started: time.Now(),
			capture: cfg.capture,
			extract: cfg.extract,
		},
	}
	s.cleanup = runtime.AddCleanup(s, orphanFinalize, s.core)
	return s, ctx
}

// Next advances the stream. The first chunk records time-to-first-chunk;
// exhaustion finalizes the span with a completed flag derived from the inner
// iterator's error state.
func (s *Tracked[T]) Next() bool {
	ok := s.inner.Next()
	c := s.core
	if c == nil {
		return ok
	}
	if ok {
		if !c.sawFirst {
			c.sawFirst = true
			ttft := float64(time.Since(c.started).Microseconds()) / 1e3
			c.span.SetAttributes(attribute.Float64(obs.AttrStreamTTFTMillis, ttft))
		}
		c.chunks++
		if c.capture {
			c.buf = append(c.buf, s.inner.Current())
		}
		return true
	}

	err := s.inner.Err()
	s.finalize(err == nil, err)
	return false
}

// Current returns the chunk read by the last successful Next.
func (s *Tracked[T]) Current() T { return s.inner.Current() }

// Err reports the inner stream's terminal error, if any.
func (s *Tracked[T]) Err() error { return s.inner.Err() }

// Close closes the inner stream and finalizes the span. Closing before
// exhaustion records the stream as not completed; closing afterwards is a
// no-op for the span. Safe to call more than once.
func (s *Tracked[T]) Close() error {
	err := s.inner.Close()
	s.finalize(false, nil)
	return err
}

// Chunks reports how many chunks have been produced so far.
func (s *Tracked[T]) Chunks() int64 {
	if s.core == nil {
		return 0
	}
	return s.core.chunks
}

func (s *Tracked[T]) finalize(completed bool, err error) {
	if s.core == nil {
		return
	}
	s.cleanup.Stop()
	s.core.finalize(completed, err)
}

// finalize is idempotent: the first caller wins, every later exit path is a
// no-op.
func (c *core) finalize(completed bool, err error) {
	if c == nil || !c.finalized.CompareAndSwap(false, true) {
		return
	}

	c.span.SetAttributes(
		attribute.Int64(obs.AttrStreamChunkCount, c.chunks),
		attribute.Bool(obs.AttrStreamCompleted, completed),
	)
	c.runExtract()

	switch {
	case err != nil:
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	case completed:
		// OK only when the stream genuinely ran to exhaustion.
		c.span.SetStatus(codes.Ok, "")
	}
	c.span.End()
}

// runExtract applies the extractor to whatever was accumulated. Best effort:
// failure is logged and never escapes.
func (c *core) runExtract() {
	if c.extract == nil || !c.capture || len(c.buf) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.L().Warn("stream attribute extraction failed",
				zap.String("span", c.name), zap.Any("panic", r))
		}
	}()
	if attrs := c.extract(c.buf); len(attrs) > 0 {
		c.span.SetAttributes(attrs...)
	}
}

// orphanFinalize runs from the garbage collector when a Tracked stream was
// dropped without exhaustion or Close. It exists to stop span leaks and to
// make the bug visible; it is not part of the correctness contract.
func orphanFinalize(c *core) {
	if c.finalized.Load() {
		return
	}
	logging.L().Warn("stream abandoned without close, finalizing from GC",
		zap.String("span", c.name))
	c.finalize(false, nil)
}
