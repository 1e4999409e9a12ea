// Package reporting wires the process to Sentry. Reporting is optional:
// without a DSN every call is a no-op.
package reporting

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/delineate/dashboard/dashboard/internal/config"
)

const flushTimeout = 2 * time.Second

var enabled atomic.Bool

// Init configures the global Sentry hub from cfg. It returns a flush func to
// defer in main; the func is safe to call when reporting is disabled.
func Init(cfg config.ErrorReportingConfig, release string) (flush func(), err error) {
	dsn := cfg.DSN()
	if dsn == "" {
		slog.Info("reporting: no DSN configured, error reporting disabled", "env", cfg.DSNEnv)
		return func() {}, nil
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      cfg.Environment,
		Release:          release,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return func() {}, fmt.Errorf("reporting: init sentry: %w", err)
	}
	enabled.Store(true)
	slog.Info("reporting: sentry enabled", "environment", cfg.Environment)

	return func() {
		if !sentry.Flush(flushTimeout) {
			slog.Warn("reporting: flush timed out")
		}
	}, nil
}

// Enabled reports whether Init configured a Sentry client.
func Enabled() bool { return enabled.Load() }
