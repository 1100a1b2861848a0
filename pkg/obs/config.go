package obs

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Mode selects the provider wiring strategy. Resolution is terminal: once
// Configure has run, the mode in effect never changes for that configuration.
type Mode string

const (
	// ModeAuto attaches to an already-installed SDK tracer provider when one
	// exists, and creates providers otherwise.
	ModeAuto Mode = "auto"
	// ModeCreate always builds fresh providers and installs them globally.
	ModeCreate Mode = "create"
	// ModeAttach adds the SDK's processors to an existing provider without
	// replacing it or touching the global propagator.
	ModeAttach Mode = "attach"
	// ModeInternal is ModeCreate with aggressive batching defaults, intended
	// for the platform's own high-volume services.
	ModeInternal Mode = "internal"
	// ModeDisabled builds nothing; all instrumentation is inert.
	ModeDisabled Mode = "disabled"
)

// SignalConfig enables or disables one telemetry signal.
type SignalConfig struct {
	Enabled bool `koanf:"enabled"`
}

// BatchingConfig tunes the batch span processor wrapped around the exporter.
type BatchingConfig struct {
	MaxQueueSize       int           `koanf:"max_queue_size"`
	MaxExportBatchSize int           `koanf:"max_export_batch_size"`
	ScheduleDelay      time.Duration `koanf:"schedule_delay"`
	ExportTimeout      time.Duration `koanf:"export_timeout"`
}

// Config holds the full observability configuration. Build one with Resolve;
// it is treated as immutable after Configure.
type Config struct {
	Mode           Mode   `koanf:"mode"`
	APIKey         string `koanf:"api_key"`
	Endpoint       string `koanf:"endpoint"`
	Protocol       string `koanf:"protocol"` // "grpc" (default) or "http/protobuf"
	Insecure       bool   `koanf:"insecure"`
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`

	Traces  SignalConfig `koanf:"traces"`
	Metrics SignalConfig `koanf:"metrics"`
	Logs    SignalConfig `koanf:"logs"`

	Batching       BatchingConfig `koanf:"batching"`
	MetricInterval time.Duration  `koanf:"metric_interval"`
	Compression    bool           `koanf:"compression"`
	LogLevel       string         `koanf:"log_level"`

	// Externally supplied providers for ModeAttach. When TracerProvider is a
	// pass-through proxy rather than an SDK provider, attach falls back to
	// create.
	TracerProvider trace.TracerProvider `koanf:"-"`
	MeterProvider  metric.MeterProvider `koanf:"-"`

	// Exporter overrides, set via WithTraceExporter/WithMetricExporter.
	traceExporter  sdktrace.SpanExporter
	metricExporter sdkmetric.Exporter
}

// NewDefaultConfig returns production defaults. Tracing and metrics are on,
// log export is off, and the endpoint points at a local collector.
func NewDefaultConfig() Config {
	return Config{
		Mode:           ModeAuto,
		Endpoint:       "localhost:4317",
		Protocol:       "grpc",
		Insecure:       true,
		ServiceName:    "tracekit",
		ServiceVersion: Version,
		Traces:         SignalConfig{Enabled: true},
		Metrics:        SignalConfig{Enabled: true},
		Logs:           SignalConfig{Enabled: false},
		Batching: BatchingConfig{
			MaxQueueSize:       2048,
			MaxExportBatchSize: 512,
			ScheduleDelay:      5 * time.Second,
			ExportTimeout:      30 * time.Second,
		},
		MetricInterval: 15 * time.Second,
		Compression:    true,
		LogLevel:       "warn",
	}
}

// internalBatching are the aggressive defaults applied before a ModeInternal
// configuration is built: larger queues, shorter delays, no compression.
func internalBatching(cfg Config) Config {
	cfg.Batching.MaxQueueSize = 10240
	cfg.Batching.MaxExportBatchSize = 2048
	cfg.Batching.ScheduleDelay = 1 * time.Second
	cfg.Compression = false
	return cfg
}

// envPrefix is the namespace for environment overrides.
const envPrefix = "TRACEKIT_"

// envKeys maps environment variable suffixes to config paths.
var envKeys = map[string]string{
	"MODE":                 "mode",
	"API_KEY":              "api_key",
	"ENDPOINT":             "endpoint",
	"PROTOCOL":             "protocol",
	"INSECURE":             "insecure",
	"SERVICE_NAME":         "service_name",
	"SERVICE_VERSION":      "service_version",
	"TRACES_ENABLED":       "traces.enabled",
	"METRICS_ENABLED":      "metrics.enabled",
	"LOGS_ENABLED":         "logs.enabled",
	"BATCH_QUEUE_SIZE":     "batching.max_queue_size",
	"BATCH_SIZE":           "batching.max_export_batch_size",
	"BATCH_DELAY":          "batching.schedule_delay",
	"BATCH_EXPORT_TIMEOUT": "batching.export_timeout",
	"METRIC_INTERVAL":      "metric_interval",
	"COMPRESSION":          "compression",
	"LOG_LEVEL":            "log_level",
}

// Option overrides a resolved Config field. Options are applied after
// environment variables, so explicit arguments always win.
type Option func(*Config)

// WithMode sets the provider wiring strategy.
func WithMode(m Mode) Option { return func(c *Config) { c.Mode = m } }

// WithAPIKey sets the bearer token sent on every export request.
func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }

// WithEndpoint sets the collector endpoint (host:port).
func WithEndpoint(ep string) Option { return func(c *Config) { c.Endpoint = ep } }

// WithProtocol selects the exporter protocol: "grpc" or "http/protobuf".
func WithProtocol(p string) Option { return func(c *Config) { c.Protocol = p } }

// WithInsecure disables transport security toward the collector.
func WithInsecure(insecure bool) Option { return func(c *Config) { c.Insecure = insecure } }

// WithServiceName sets the reported service identity.
func WithServiceName(name string) Option { return func(c *Config) { c.ServiceName = name } }

// WithServiceVersion sets the reported service version.
func WithServiceVersion(v string) Option { return func(c *Config) { c.ServiceVersion = v } }

// WithSignals toggles trace, metric, and log export independently.
func WithSignals(traces, metrics, logs bool) Option {
	return func(c *Config) {
		c.Traces.Enabled = traces
		c.Metrics.Enabled = metrics
		c.Logs.Enabled = logs
	}
}

// WithBatching replaces the batch processor tuning wholesale.
func WithBatching(b BatchingConfig) Option { return func(c *Config) { c.Batching = b } }

// WithCompression toggles gzip compression on export requests.
func WithCompression(on bool) Option { return func(c *Config) { c.Compression = on } }

// WithTracerProvider supplies an existing provider for ModeAttach.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) { c.TracerProvider = tp }
}

// WithMeterProvider supplies an existing meter provider for ModeAttach.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) { c.MeterProvider = mp }
}

// Resolve builds a Config from defaults, TRACEKIT_* environment variables,
// and explicit options, in that precedence order (lowest to highest).
// Resolution is independent of any provider; it never touches global state.
func Resolve(opts ...Option) Config {
	cfg := NewDefaultConfig()
	cfg.applyEnv()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// applyEnv overlays TRACEKIT_* environment variables onto cfg.
func (c *Config) applyEnv() {
	k := koanf.New(".")
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return envKeys[strings.TrimPrefix(s, envPrefix)]
	}), nil)
	if err != nil {
		return
	}

	setString := func(path string, dst *string) {
		if k.Exists(path) {
			*dst = k.String(path)
		}
	}
	setBool := func(path string, dst *bool) {
		if k.Exists(path) {
			*dst = k.Bool(path)
		}
	}
	setInt := func(path string, dst *int) {
		if k.Exists(path) {
			*dst = k.Int(path)
		}
	}
	setDuration := func(path string, dst *time.Duration) {
		if k.Exists(path) {
			*dst = k.Duration(path)
		}
	}

	if k.Exists("mode") {
		c.Mode = Mode(strings.ToLower(k.String("mode")))
	}
	setString("api_key", &c.APIKey)
	setString("endpoint", &c.Endpoint)
	setString("protocol", &c.Protocol)
	setBool("insecure", &c.Insecure)
	setString("service_name", &c.ServiceName)
	setString("service_version", &c.ServiceVersion)
	setBool("traces.enabled", &c.Traces.Enabled)
	setBool("metrics.enabled", &c.Metrics.Enabled)
	setBool("logs.enabled", &c.Logs.Enabled)
	setInt("batching.max_queue_size", &c.Batching.MaxQueueSize)
	setInt("batching.max_export_batch_size", &c.Batching.MaxExportBatchSize)
	setDuration("batching.schedule_delay", &c.Batching.ScheduleDelay)
	setDuration("batching.export_timeout", &c.Batching.ExportTimeout)
	setDuration("metric_interval", &c.MetricInterval)
	setBool("compression", &c.Compression)
	setString("log_level", &c.LogLevel)
}

// Validate checks the configuration for errors. A disabled config is always
// valid.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAuto, ModeCreate, ModeAttach, ModeInternal, ModeDisabled:
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}

	if c.Mode == ModeDisabled {
		return nil
	}

	switch c.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("invalid protocol %q", c.Protocol)
	}

	if c.Endpoint == "" && c.TracerProvider == nil {
		return fmt.Errorf("endpoint is required when observability is enabled")
	}

	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when observability is enabled")
	}

	if c.Batching.MaxQueueSize <= 0 || c.Batching.MaxExportBatchSize <= 0 {
		return fmt.Errorf("batching sizes must be positive")
	}

	if c.Batching.ScheduleDelay <= 0 || c.Batching.ExportTimeout <= 0 {
		return fmt.Errorf("batching intervals must be positive")
	}

	if c.Metrics.Enabled && c.MetricInterval <= 0 {
		return fmt.Errorf("metric_interval must be positive when metrics enabled")
	}

	return nil
}
