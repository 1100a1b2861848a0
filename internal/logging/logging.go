// Package logging holds the SDK's internal zap logger.
//
// The SDK never writes to stdout on its own: the default logger is a no-op
// until the host application hands one over. Instrumentation-internal failures
// (setup degradation, extraction errors, orphaned streams) are logged here and
// must never surface to wrapped user code.
package logging

import (
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// host is the logger the application handed over; active is what L returns.
// They differ only while a bridge is active. Keeping the host separately means
// re-bridging always starts from the plain host logger, never from an already
// bridged one.
var (
	host   atomic.Pointer[zap.Logger]
	active atomic.Pointer[zap.Logger]
)

func init() {
	Set(nil)
}

// Set replaces the SDK-internal logger and drops any active bridge. Passing
// nil restores the no-op logger.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	host.Store(l)
	active.Store(l)
}

// L returns the current SDK-internal logger. Never nil.
func L() *zap.Logger {
	return active.Load()
}

// Activate makes the bridged variant of the host logger the active one.
// Repeated calls replace the bridge rather than stacking cores.
func Activate(name string, provider log.LoggerProvider) {
	active.Store(Bridge(name, host.Load(), provider))
}

// Deactivate restores the plain host logger.
func Deactivate() {
	active.Store(host.Load())
}

// Bridge tees base into an OTel log bridge so host log records travel the
// same export pipeline as spans. Returns base unchanged when provider is nil.
func Bridge(name string, base *zap.Logger, provider log.LoggerProvider) *zap.Logger {
	if provider == nil {
		return base
	}
	otelCore := otelzap.NewCore(name, otelzap.WithLoggerProvider(provider))
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, otelCore)
	}))
}
