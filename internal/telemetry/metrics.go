package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/zkardes/chrono-meister-sub000"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Retry metrics
	RetryAttemptsTotal  metric.Int64Counter
	RetryExhaustedTotal metric.Int64Counter

	// Session metrics
	SessionRefreshTotal       metric.Int64Counter
	SessionRefreshErrorsTotal metric.Int64Counter
	SessionRecoveryTotal      metric.Int64Counter
	ProactiveRefreshTotal     metric.Int64Counter

	// Storage metrics
	StorageFallbackTotal  metric.Int64Counter
	StorageEvictionsTotal metric.Int64Counter
	StoragePurgesTotal    metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.RetryAttemptsTotal, _ = meter.Int64Counter(
		"chrono.retry.attempts.total",
		metric.WithDescription("Total number of retried operation attempts"),
		metric.WithUnit("{attempt}"),
	)

	m.RetryExhaustedTotal, _ = meter.Int64Counter(
		"chrono.retry.exhausted.total",
		metric.WithDescription("Total number of operations that exhausted their retry budget"),
		metric.WithUnit("{operation}"),
	)

	m.SessionRefreshTotal, _ = meter.Int64Counter(
		"chrono.session.refresh.total",
		metric.WithDescription("Total number of session refresh calls"),
		metric.WithUnit("{refresh}"),
	)

	m.SessionRefreshErrorsTotal, _ = meter.Int64Counter(
		"chrono.session.refresh.errors.total",
		metric.WithDescription("Total number of failed session refresh calls"),
		metric.WithUnit("{error}"),
	)

	m.SessionRecoveryTotal, _ = meter.Int64Counter(
		"chrono.session.recovery.total",
		metric.WithDescription("Total number of silent session loss recovery attempts"),
		metric.WithUnit("{attempt}"),
	)

	m.ProactiveRefreshTotal, _ = meter.Int64Counter(
		"chrono.session.proactive_refresh.total",
		metric.WithDescription("Total number of monitor-initiated proactive refreshes"),
		metric.WithUnit("{refresh}"),
	)

	m.StorageFallbackTotal, _ = meter.Int64Counter(
		"chrono.storage.fallback.total",
		metric.WithDescription("Total number of durable tier write failures absorbed by the memory tier"),
		metric.WithUnit("{failure}"),
	)

	m.StorageEvictionsTotal, _ = meter.Int64Counter(
		"chrono.storage.evictions.total",
		metric.WithDescription("Total number of expired or corrupt entries evicted"),
		metric.WithUnit("{entry}"),
	)

	m.StoragePurgesTotal, _ = meter.Int64Counter(
		"chrono.storage.purges.total",
		metric.WithDescription("Total number of quota-triggered expired entry purges"),
		metric.WithUnit("{purge}"),
	)

	return m
}
