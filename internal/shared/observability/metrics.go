package observability

import (
	"context"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Registerer overrides the Prometheus registry. Tests use a private one.
	Registerer promclient.Registerer `yaml:"-" mapstructure:"-"`
}

// MetricsCollector records file operation and approval metrics. A zero value
// collector is valid and records nothing.
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider

	operations        metric.Int64Counter
	operationDuration metric.Float64Histogram
	approvals         metric.Int64Counter
	pendingApprovals  metric.Int64UpDownCounter
	connections       metric.Int64UpDownCounter
	grepStrategy      metric.Int64Counter
}

// NewMetricsCollector creates a collector backed by the OpenTelemetry SDK.
// Values are exported through the default Prometheus registry so promhttp
// serves them on /metrics.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	var opts []prometheus.Option
	if config.Registerer != nil {
		opts = append(opts, prometheus.WithRegisterer(config.Registerer))
	}
	exporter, err := prometheus.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("fsgate")

	m := &MetricsCollector{provider: provider}

	if m.operations, err = meter.Int64Counter(
		"fsgate.file.operations.total",
		metric.WithDescription("Total number of file operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create operations counter: %w", err)
	}

	if m.operationDuration, err = meter.Float64Histogram(
		"fsgate.file.operation.duration",
		metric.WithDescription("File operation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	if m.approvals, err = meter.Int64Counter(
		"fsgate.approvals.total",
		metric.WithDescription("Approval decisions by outcome"),
		metric.WithUnit("{decision}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create approvals counter: %w", err)
	}

	if m.pendingApprovals, err = meter.Int64UpDownCounter(
		"fsgate.approvals.pending",
		metric.WithDescription("Approvals awaiting a decision"),
		metric.WithUnit("{approval}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create pending approvals gauge: %w", err)
	}

	if m.connections, err = meter.Int64UpDownCounter(
		"fsgate.connections.active",
		metric.WithDescription("Open websocket connections"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create connections gauge: %w", err)
	}

	if m.grepStrategy, err = meter.Int64Counter(
		"fsgate.grep.strategy.total",
		metric.WithDescription("Content searches served by each grep strategy"),
		metric.WithUnit("{search}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create grep strategy counter: %w", err)
	}

	return m, nil
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordOperation records one file operation outcome.
func (m *MetricsCollector) RecordOperation(ctx context.Context, action, status string, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", status),
	)
	m.operations.Add(ctx, 1, attrs)
	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("action", action)))
}

// RecordApproval records an approval decision: approved, rejected, expired
// or direct.
func (m *MetricsCollector) RecordApproval(ctx context.Context, action, outcome string) {
	if m == nil || m.approvals == nil {
		return
	}
	m.approvals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

// AddPending adjusts the pending approvals gauge.
func (m *MetricsCollector) AddPending(ctx context.Context, delta int64) {
	if m == nil || m.pendingApprovals == nil {
		return
	}
	m.pendingApprovals.Add(ctx, delta)
}

// AddConnections adjusts the open connections gauge for a role.
func (m *MetricsCollector) AddConnections(ctx context.Context, role string, delta int64) {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Add(ctx, delta, metric.WithAttributes(attribute.String("role", role)))
}

// RecordGrepStrategy counts which cascade strategy answered a search.
func (m *MetricsCollector) RecordGrepStrategy(ctx context.Context, strategy string) {
	if m == nil || m.grepStrategy == nil {
		return
	}
	m.grepStrategy.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}
