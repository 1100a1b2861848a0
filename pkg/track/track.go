package track

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/fyrsmithlabs/tracekit/internal/render"
	"github.com/fyrsmithlabs/tracekit/pkg/obs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Aggregator condenses the values produced by a generator into a single
// recorded output. Errors and panics from custom aggregators are contained:
// the default aggregation is used instead.
type Aggregator func(items []any) (string, error)

// options is resolved once at wrap time and shared by every call to the
// wrapper.
type options struct {
	state      *obs.State
	tracerName string
	name       string
	spanType   string
	attrs      []attribute.KeyValue
	argNames   []string
	hasNames   bool
	input      bool
	output     bool
	aggregator Aggregator
}

// Option configures a wrapper at decoration time.
type Option func(*options)

// WithState pins the wrapper to an explicit observability state instead of
// the process-wide default.
func WithState(st *obs.State) Option { return func(o *options) { o.state = st } }

// WithTracerName overrides the instrumentation scope the span is minted from.
func WithTracerName(name string) Option { return func(o *options) { o.tracerName = name } }

// WithName overrides the span name. The default is the wrapped function's
// fully qualified name.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithType declares the span's type tag (e.g. "tool", "llm", "pipeline").
func WithType(t string) Option { return func(o *options) { o.spanType = t } }

// WithAttributes sets static attributes on every span the wrapper opens.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(o *options) { o.attrs = append(o.attrs, attrs...) }
}

// WithArgNames names the wrapped function's arguments, in order, for input
// capture. An empty name excludes that argument. Unnamed trailing arguments
// fall back to positional names.
func WithArgNames(names ...string) Option {
	return func(o *options) {
		o.argNames = names
		o.hasNames = true
	}
}

// WithoutInput disables input capture.
func WithoutInput() Option { return func(o *options) { o.input = false } }

// WithoutOutput disables output capture and generator aggregation.
func WithoutOutput() Option { return func(o *options) { o.output = false } }

// WithAggregator installs a custom generator-output aggregator.
func WithAggregator(agg Aggregator) Option { return func(o *options) { o.aggregator = agg } }

func newOptions(fn any, opts []Option) *options {
	o := &options{
		tracerName: obs.ScopeName,
		input:      true,
		output:     true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.name == "" {
		o.name = qualifiedName(fn)
	}
	return o
}

// st resolves the state per call so a wrapper built before Configure still
// picks up the live installation.
func (o *options) st() *obs.State {
	if o.state != nil {
		return o.state
	}
	return obs.Default()
}

// start opens the span and applies the declared type tag and static
// attributes.
func (o *options) start(ctx context.Context, st *obs.State) (context.Context, trace.Span) {
	ctx, span := st.Tracer(o.tracerName).Start(ctx, o.name)
	if o.spanType != "" {
		span.SetAttributes(attribute.String(obs.AttrType, o.spanType))
	}
	if len(o.attrs) > 0 {
		span.SetAttributes(o.attrs...)
	}
	return ctx, span
}

// captureArgs records each argument as a bounded textual attribute keyed by
// its declared name. Explicitly empty names are excluded.
func (o *options) captureArgs(span trace.Span, args ...any) {
	if !o.input {
		return
	}
	for i, a := range args {
		name := o.argName(i)
		if name == "" {
			continue
		}
		span.SetAttributes(attribute.String(obs.AttrInputPrefix+name, render.Value(a)))
	}
}

func (o *options) argName(i int) string {
	if o.hasNames && i < len(o.argNames) {
		return o.argNames[i]
	}
	return fmt.Sprintf("arg%d", i)
}

// fail records err, marks the span failed, and ends it. The error itself is
// always returned to the caller unchanged.
func (o *options) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

// succeed records the output, marks the span OK, and ends it.
func (o *options) succeed(span trace.Span, out any) {
	if o.output {
		recordOutput(span, out)
	}
	span.SetStatus(codes.Ok, "")
	span.End()
}

// repanic is deferred by wrappers: a panic in wrapped code is recorded, the
// span is ended, and the panic continues unchanged.
func (o *options) repanic(span trace.Span) {
	if r := recover(); r != nil {
		span.RecordError(fmt.Errorf("panic: %v", r))
		span.SetStatus(codes.Error, render.Value(r))
		span.End()
		panic(r)
	}
}

// recordOutput records a mapping as one attribute per key and anything else
// as a single attribute.
func recordOutput(span trace.Span, out any) {
	rv := reflect.ValueOf(out)
	if rv.IsValid() && rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		for _, k := range rv.MapKeys() {
			span.SetAttributes(attribute.String(
				obs.AttrOutputPrefix+k.String(),
				render.Value(rv.MapIndex(k).Interface()),
			))
		}
		return
	}
	span.SetAttributes(attribute.String(obs.AttrOutput, render.Value(out)))
}

// qualifiedName derives a span name from the function's runtime symbol, e.g.
// "github.com/acme/billing.Invoice".
func qualifiedName(fn any) string {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return "anonymous"
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "anonymous"
	}
	// Bound methods carry a -fm suffix.
	return strings.TrimSuffix(rf.Name(), "-fm")
}
