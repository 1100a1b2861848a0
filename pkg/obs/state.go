package obs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/tracekit/internal/logging"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// State holds the active provider bundle for one observability installation.
//
// Configure and Shutdown are serialized by a single lock and idempotent;
// Tracer and Meter are lock-free reads. Core logic takes an explicit *State;
// the package-level functions forward to Default() purely as a convenience.
type State struct {
	mu     sync.Mutex
	bundle atomic.Pointer[bundle]
}

// NewState returns an unconfigured State.
func NewState() *State {
	return &State{}
}

// defaultState is the process-wide installation used by the package-level
// convenience functions.
var defaultState = NewState()

// Default returns the process-wide State.
func Default() *State { return defaultState }

// Configure resolves the wiring mode for cfg and installs the resulting
// providers. It is idempotent: a second call logs and returns without
// touching the existing installation, so background export machinery is never
// duplicated. Setup failures degrade to the inert no-op state with a logged
// warning and never propagate.
func (s *State) Configure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bundle.Load() != nil {
		logging.L().Warn("observability already configured, ignoring",
			zap.String("mode", string(cfg.Mode)))
		return
	}

	if err := cfg.Validate(); err != nil {
		logging.L().Warn("invalid observability config, tracing disabled",
			zap.Error(err))
		return
	}

	if cfg.Mode == ModeDisabled {
		s.bundle.Store(&bundle{cfg: cfg, mode: ModeDisabled})
		return
	}

	b, err := s.build(ctx, cfg)
	if err != nil {
		logging.L().Warn("observability setup failed, tracing disabled",
			zap.Error(err))
		return
	}

	if b.loggerProvider != noopLoggerProvider {
		// Route the SDK's own log records through the export pipeline too.
		logging.Activate(ScopeName, b.loggerProvider)
	}

	s.bundle.Store(b)
}

// build wraps newBundle with a panic guard so a misbehaving exporter
// constructor degrades instead of crashing the host.
func (s *State) build(ctx context.Context, cfg Config) (b *bundle, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("provider setup panicked: %v", r)
		}
	}()
	return newBundle(ctx, cfg)
}

// Shutdown flushes and stops every owned provider and returns the State to
// unconfigured. Each provider is shut down independently so one failure does
// not block the others. Safe to call before Configure and safe to call twice.
func (s *State) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bundle.Load()
	s.bundle.Store(nil)

	if b == nil || !b.owned {
		return nil
	}

	if b.sdkLogger != nil {
		// Stop routing internal logs into a pipeline that is about to close.
		logging.Deactivate()
	}

	var errs []error
	if b.sdkTracer != nil {
		if err := b.sdkTracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if b.sdkMeter != nil {
		if err := b.sdkMeter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	if b.sdkLogger != nil {
		if err := b.sdkLogger.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ForceFlush immediately exports pending telemetry from owned providers.
func (s *State) ForceFlush(ctx context.Context) error {
	b := s.bundle.Load()
	if b == nil || !b.owned {
		return nil
	}

	var errs []error
	if b.sdkTracer != nil {
		if err := b.sdkTracer.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}
	if b.sdkMeter != nil {
		if err := b.sdkMeter.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric flush: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Configured reports whether Configure has installed a bundle. This is the
// fast path consulted on every wrapped call.
func (s *State) Configured() bool {
	b := s.bundle.Load()
	return b != nil && b.mode != ModeDisabled
}

// Tracer returns a tracer for the given instrumentation scope, or an inert
// one when unconfigured or disabled. Lock-free.
func (s *State) Tracer(name string) trace.Tracer {
	b := s.bundle.Load()
	if b == nil || b.tracerProvider == nil {
		return NoopTracer(name)
	}
	return b.tracerProvider.Tracer(name)
}

// Meter returns a meter for the given instrumentation scope, or an inert one
// when unconfigured or disabled. Lock-free.
func (s *State) Meter(name string) metric.Meter {
	b := s.bundle.Load()
	if b == nil || b.meterProvider == nil {
		return NoopMeter(name)
	}
	return b.meterProvider.Meter(name)
}

// TracerProvider exposes the active tracer provider, or the inert one when
// unconfigured. Identity is stable across idempotent Configure calls.
func (s *State) TracerProvider() trace.TracerProvider {
	b := s.bundle.Load()
	if b == nil || b.tracerProvider == nil {
		return noopTracerProvider
	}
	return b.tracerProvider
}

// LoggerProvider exposes the active log provider for host logging bridges,
// or the inert one when unconfigured.
func (s *State) LoggerProvider() log.LoggerProvider {
	b := s.bundle.Load()
	if b == nil || b.loggerProvider == nil {
		return noopLoggerProvider
	}
	return b.loggerProvider
}

// Mode reports the resolved mode of the active bundle, or ModeDisabled when
// unconfigured.
func (s *State) Mode() Mode {
	b := s.bundle.Load()
	if b == nil {
		return ModeDisabled
	}
	return b.mode
}

// SetLogger replaces the SDK-internal logger used for degradation warnings
// and instrumentation-internal errors. Nil restores the no-op logger.
func SetLogger(l *zap.Logger) { logging.Set(l) }

// Configure configures the process-wide State. See State.Configure.
func Configure(ctx context.Context, cfg Config) { defaultState.Configure(ctx, cfg) }

// Shutdown shuts down the process-wide State. See State.Shutdown.
func Shutdown(ctx context.Context) error { return defaultState.Shutdown(ctx) }

// Configured reports whether the process-wide State is configured.
func Configured() bool { return defaultState.Configured() }

// Tracer returns a tracer from the process-wide State.
func Tracer(name string) trace.Tracer { return defaultState.Tracer(name) }

// Meter returns a meter from the process-wide State.
func Meter(name string) metric.Meter { return defaultState.Meter(name) }
