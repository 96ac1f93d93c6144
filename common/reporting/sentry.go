// Package reporting forwards crashes and fatal errors to Sentry when a DSN is configured.
package reporting

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 5 * time.Second

var enabled atomic.Bool

// Init configures the Sentry client. An empty dsn leaves reporting disabled.
func Init(dsn, release string) {
	if dsn == "" {
		slog.Debug("Sentry DSN not configured; crash reporting disabled")
		return
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
		Release:          release,
	})
	if err != nil {
		slog.Error("sentry.Init:", "error", err)
		return
	}
	enabled.Store(true)
}

// Enabled reports whether Init configured a client.
func Enabled() bool {
	return enabled.Load()
}

// CaptureError sends err to Sentry and waits for delivery.
func CaptureError(err error) {
	if err == nil || !enabled.Load() {
		return
	}
	sentry.CaptureException(err)
	flush()
}

// Recover reports a panic and re-panics. Defer it first in main and in long-lived goroutines.
func Recover() {
	r := recover()
	if r == nil {
		return
	}
	if enabled.Load() {
		sentry.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentry.LevelFatal)
		})
		sentry.CurrentHub().Recover(r)
		flush()
	}
	panic(fmt.Sprint(r))
}

func flush() {
	if !sentry.Flush(flushTimeout) {
		slog.Error("sentry.Flush: timeout")
	}
}
