// Package metrics records login flow counters on the global OpenTelemetry meter provider.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/codearena/arena"

type metricsManager struct {
	attempts metric.Int64Counter
	polls    metric.Int64Counter
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetricsManager(provider metric.MeterProvider) *metricsManager {
	meter := provider.Meter(meterName)
	attempts, err := meter.Int64Counter("arena.login.attempts", metric.WithDescription("Login initiations"))
	if err != nil {
		attempts = noop.Int64Counter{}
	}
	polls, err := meter.Int64Counter("arena.login.polls", metric.WithDescription("Login status polls"))
	if err != nil {
		polls = noop.Int64Counter{}
	}
	outcomes, err := meter.Int64Counter("arena.login.outcomes", metric.WithDescription("Terminal login outcomes by status"))
	if err != nil {
		outcomes = noop.Int64Counter{}
	}
	duration, err := meter.Float64Histogram("arena.login.duration",
		metric.WithDescription("Time from initiation to terminal status"),
		metric.WithUnit("s"),
	)
	if err != nil {
		duration = noop.Float64Histogram{}
	}
	return &metricsManager{
		attempts: attempts,
		polls:    polls,
		outcomes: outcomes,
		duration: duration,
	}
}

// manager is resolved lazily so a meter provider installed by telemetry.Init is picked up.
func manager() *metricsManager {
	return newMetricsManager(otel.GetMeterProvider())
}

// LoginAttempted counts one initiation request.
func LoginAttempted(ctx context.Context) {
	manager().attempts.Add(ctx, 1)
}

// LoginPolled counts one status request.
func LoginPolled(ctx context.Context) {
	manager().polls.Add(ctx, 1)
}

// LoginFinished records the terminal status of a login and how long it took.
func LoginFinished(ctx context.Context, status string, elapsed time.Duration) {
	m := manager()
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.outcomes.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
