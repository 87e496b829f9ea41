package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// LoaderMetricsMeterName is the name used for the loader metrics meter
	LoaderMetricsMeterName = "github.com/refdatahq/lookupd/loader"

	// HTTPMetricsMeterName is the name used for the HTTP server metrics meter
	HTTPMetricsMeterName = "github.com/refdatahq/lookupd/http"
)

// LoaderMetrics holds the OpenTelemetry instruments for reload pass metrics
type LoaderMetrics struct {
	passDuration metric.Float64Histogram
	tablesLoaded metric.Int64Gauge
	tablesFailed metric.Int64Gauge
}

// NewLoaderMetrics creates a new LoaderMetrics instance with the given meter
// provider. If provider is nil, it returns nil (no-op metrics).
func NewLoaderMetrics(provider metric.MeterProvider) (*LoaderMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(LoaderMetricsMeterName)

	passDuration, err := meter.Float64Histogram(
		"lookupd_reload_pass_duration_seconds",
		metric.WithDescription("Duration of reload passes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	tablesLoaded, err := meter.Int64Gauge(
		"lookupd_tables_loaded",
		metric.WithDescription("Number of tables with a usable loaded version"),
		metric.WithUnit("{table}"),
	)
	if err != nil {
		return nil, err
	}

	tablesFailed, err := meter.Int64Gauge(
		"lookupd_tables_failed",
		metric.WithDescription("Number of tables without a usable version"),
		metric.WithUnit("{table}"),
	)
	if err != nil {
		return nil, err
	}

	return &LoaderMetrics{
		passDuration: passDuration,
		tablesLoaded: tablesLoaded,
		tablesFailed: tablesFailed,
	}, nil
}

// RecordPass records the duration and outcome of one reload pass
func (m *LoaderMetrics) RecordPass(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.passDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}

	m.passDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTables records the current loaded/failed table counts
func (m *LoaderMetrics) RecordTables(ctx context.Context, loaded, failed int64) {
	if m == nil || m.tablesLoaded == nil {
		return
	}

	m.tablesLoaded.Record(ctx, loaded)
	m.tablesFailed.Record(ctx, failed)
}
