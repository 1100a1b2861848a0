package obs

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log"
	logglobal "go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

// bundle is the provider set produced by the factory and held by State.
// Interface-typed fields are what Tracer/Meter hand out; the concrete SDK
// handles exist only for shutdown and are nil when this process does not own
// the providers.
type bundle struct {
	cfg   Config
	mode  Mode
	owned bool

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	loggerProvider log.LoggerProvider

	sdkTracer *sdktrace.TracerProvider
	sdkMeter  *sdkmetric.MeterProvider
	sdkLogger *sdklog.LoggerProvider
}

// resolveMode collapses ModeAuto into ModeCreate or ModeAttach. AUTO probes
// for a concrete, SDK-backed tracer provider: a supplied handle first, then
// the global installation. Pass-through proxies fail the probe.
func resolveMode(cfg Config) Mode {
	if cfg.Mode != ModeAuto {
		return cfg.Mode
	}
	if sdkTracerProvider(cfg) != nil {
		return ModeAttach
	}
	return ModeCreate
}

// sdkTracerProvider returns the concrete SDK tracer provider to attach to,
// or nil when none is installed.
func sdkTracerProvider(cfg Config) *sdktrace.TracerProvider {
	if tp, ok := cfg.TracerProvider.(*sdktrace.TracerProvider); ok {
		return tp
	}
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		return tp
	}
	return nil
}

// newBundle builds or attaches providers for cfg. Callers own error handling;
// Configure degrades to no-op on any failure here.
func newBundle(ctx context.Context, cfg Config) (*bundle, error) {
	mode := resolveMode(cfg)
	if mode == ModeInternal {
		cfg = internalBatching(cfg)
	}

	switch mode {
	case ModeAttach:
		b, err := attachProviders(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if b != nil {
			return b, nil
		}
		// Discovered provider was a pass-through proxy; build our own.
		return createProviders(ctx, cfg, ModeCreate)
	case ModeCreate, ModeInternal:
		return createProviders(ctx, cfg, mode)
	default:
		return nil, fmt.Errorf("mode %q builds no providers", mode)
	}
}

// Exporter constructors, swappable in tests to exercise build failures.
var (
	buildTraceExporter  = newTraceExporter
	buildMetricExporter = newMetricExporter
	buildLogExporter    = newLogExporter
)

// createProviders builds the full provider set and, only after every enabled
// signal built successfully, installs it as the process-wide ambient default,
// including the composite W3C trace-context + baggage propagator. A failure
// partway tears down whatever was already built so nothing half-configured
// stays installed or keeps exporting.
func createProviders(ctx context.Context, cfg Config, mode Mode) (b *bundle, err error) {
	res := newResource(cfg)

	b = &bundle{
		cfg:            cfg,
		mode:           mode,
		owned:          true,
		tracerProvider: noopTracerProvider,
		meterProvider:  noopMeterProvider,
		loggerProvider: noopLoggerProvider,
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider setup panicked: %v", r)
		}
		if err == nil || b == nil {
			return
		}
		if b.sdkTracer != nil {
			_ = b.sdkTracer.Shutdown(ctx)
		}
		if b.sdkMeter != nil {
			_ = b.sdkMeter.Shutdown(ctx)
		}
		if b.sdkLogger != nil {
			_ = b.sdkLogger.Shutdown(ctx)
		}
		b = nil
	}()

	if cfg.Traces.Enabled {
		exp, expErr := buildTraceExporter(ctx, cfg)
		if expErr != nil {
			return b, fmt.Errorf("creating trace exporter: %w", expErr)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
			// Baggage attributes must land before the batch processor sees
			// the span.
			sdktrace.WithSpanProcessor(NewBaggageProcessor()),
			sdktrace.WithBatcher(exp, batchOptions(cfg)...),
		)
		b.sdkTracer = tp
		b.tracerProvider = tp
	}

	if cfg.Metrics.Enabled {
		exp, expErr := buildMetricExporter(ctx, cfg)
		if expErr != nil {
			return b, fmt.Errorf("creating metric exporter: %w", expErr)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
				exp,
				sdkmetric.WithInterval(cfg.MetricInterval),
			)),
		)
		b.sdkMeter = mp
		b.meterProvider = mp
	}

	if cfg.Logs.Enabled {
		exp, expErr := buildLogExporter(ctx, cfg)
		if expErr != nil {
			return b, fmt.Errorf("creating log exporter: %w", expErr)
		}
		lp := sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		)
		b.sdkLogger = lp
		b.loggerProvider = lp
	}

	// Globals last: a failed build must leave the ambient installation alone.
	if b.sdkTracer != nil {
		otel.SetTracerProvider(b.sdkTracer)
	}
	if b.sdkMeter != nil {
		otel.SetMeterProvider(b.sdkMeter)
	}
	if b.sdkLogger != nil {
		logglobal.SetLoggerProvider(b.sdkLogger)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return b, nil
}

// attachProviders adds the baggage processor and an authenticated batch
// exporter to an already-installed SDK provider. The existing provider is not
// replaced and the global propagator is left alone. Returns (nil, nil) when
// no SDK-backed provider is discoverable, signalling a create fallback.
func attachProviders(ctx context.Context, cfg Config) (*bundle, error) {
	tp := sdkTracerProvider(cfg)
	if tp == nil {
		return nil, nil
	}

	b := &bundle{
		cfg:            cfg,
		mode:           ModeAttach,
		owned:          false,
		tracerProvider: tp,
		meterProvider:  noopMeterProvider,
		loggerProvider: noopLoggerProvider,
	}

	tp.RegisterSpanProcessor(NewBaggageProcessor())

	if cfg.Endpoint != "" || cfg.traceExporter != nil {
		exp, err := buildTraceExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
		tp.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exp, batchOptions(cfg)...))
	}

	if cfg.MeterProvider != nil {
		b.meterProvider = cfg.MeterProvider
	} else {
		b.meterProvider = otel.GetMeterProvider()
	}

	return b, nil
}

// newResource describes the service identity plus SDK metadata.
//
// The resource is standalone rather than merged with resource.Default() to
// avoid schema URL conflicts across semconv versions.
func newResource(cfg Config) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.TelemetrySDKNameKey.String("tracekit"),
		semconv.TelemetrySDKVersionKey.String(Version),
		semconv.TelemetrySDKLanguageGo,
	)
}

// exportHeaders are attached to every export request: a bearer token for
// authentication and the SDK version for collector-side routing.
func exportHeaders(cfg Config) map[string]string {
	h := map[string]string{
		HeaderSDKVersion: Version,
	}
	if cfg.APIKey != "" {
		h[HeaderAuthorization] = "Bearer " + cfg.APIKey
	}
	return h
}

// batchOptions maps config batching knobs onto the batch span processor.
func batchOptions(cfg Config) []sdktrace.BatchSpanProcessorOption {
	return []sdktrace.BatchSpanProcessorOption{
		sdktrace.WithMaxQueueSize(cfg.Batching.MaxQueueSize),
		sdktrace.WithMaxExportBatchSize(cfg.Batching.MaxExportBatchSize),
		sdktrace.WithBatchTimeout(cfg.Batching.ScheduleDelay),
		sdktrace.WithExportTimeout(cfg.Batching.ExportTimeout),
	}
}

// newTraceExporter builds the OTLP span exporter for the configured protocol.
func newTraceExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.traceExporter != nil {
		return cfg.traceExporter, nil
	}

	switch cfg.Protocol {
	case "http/protobuf":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(stripScheme(cfg.Endpoint)),
			otlptracehttp.WithHeaders(exportHeaders(cfg)),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if cfg.Compression {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		return otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithHeaders(exportHeaders(cfg)),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(
				credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}),
			))
		}
		if cfg.Compression {
			opts = append(opts, otlptracegrpc.WithCompressor("gzip"))
		}
		return otlptracegrpc.New(ctx, opts...)
	}
}

// newMetricExporter builds the OTLP metric exporter for the configured
// protocol.
func newMetricExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	if cfg.metricExporter != nil {
		return cfg.metricExporter, nil
	}

	switch cfg.Protocol {
	case "http/protobuf":
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(stripScheme(cfg.Endpoint)),
			otlpmetrichttp.WithHeaders(exportHeaders(cfg)),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if cfg.Compression {
			opts = append(opts, otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression))
		}
		return otlpmetrichttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithHeaders(exportHeaders(cfg)),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		} else {
			opts = append(opts, otlpmetricgrpc.WithTLSCredentials(
				credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}),
			))
		}
		if cfg.Compression {
			opts = append(opts, otlpmetricgrpc.WithCompressor("gzip"))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
}

// newLogExporter builds the OTLP log exporter for the configured protocol.
func newLogExporter(ctx context.Context, cfg Config) (sdklog.Exporter, error) {
	switch cfg.Protocol {
	case "http/protobuf":
		opts := []otlploghttp.Option{
			otlploghttp.WithEndpoint(stripScheme(cfg.Endpoint)),
			otlploghttp.WithHeaders(exportHeaders(cfg)),
		}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		if cfg.Compression {
			opts = append(opts, otlploghttp.WithCompression(otlploghttp.GzipCompression))
		}
		return otlploghttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlploggrpc.Option{
			otlploggrpc.WithEndpoint(cfg.Endpoint),
			otlploggrpc.WithHeaders(exportHeaders(cfg)),
		}
		if cfg.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		} else {
			opts = append(opts, otlploggrpc.WithTLSCredentials(
				credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}),
			))
		}
		if cfg.Compression {
			opts = append(opts, otlploggrpc.WithCompressor("gzip"))
		}
		return otlploggrpc.New(ctx, opts...)
	}
}

// stripScheme removes http:// or https:// from an endpoint URL. The OTLP HTTP
// exporters expect just host:port, not full URLs.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return endpoint
}

// WithTraceExporter overrides the default OTLP span exporter (for testing).
func WithTraceExporter(exp sdktrace.SpanExporter) Option {
	return func(c *Config) { c.traceExporter = exp }
}

// WithMetricExporter overrides the default OTLP metric exporter (for testing).
func WithMetricExporter(exp sdkmetric.Exporter) Option {
	return func(c *Config) { c.metricExporter = exp }
}
