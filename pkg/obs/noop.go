package obs

import (
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Inert providers returned whenever the state is unconfigured or disabled.
// Every method on a tracer, meter, or span minted here is a safe stub: it
// never errors, never blocks, and records nothing observable.
var (
	noopTracerProvider = tracenoop.NewTracerProvider()
	noopMeterProvider  = metricnoop.NewMeterProvider()
	noopLoggerProvider = lognoop.NewLoggerProvider()
)

// NoopTracer returns a tracer whose spans are inert.
func NoopTracer(name string) trace.Tracer {
	return noopTracerProvider.Tracer(name)
}

// NoopMeter returns a meter whose instruments are inert.
func NoopMeter(name string) metric.Meter {
	return noopMeterProvider.Meter(name)
}
