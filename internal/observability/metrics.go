package observability

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "candidate-selection"

// MetricsCollector records selection and feedback activity. A collector built
// from a disabled config is a no-op; every Record method is nil-safe.
type MetricsCollector struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	gatherer promclient.Gatherer

	selections    metric.Int64Counter
	selectionTime metric.Float64Histogram
	utility       metric.Float64Histogram
	chosen        metric.Int64Counter
	skipped       metric.Int64Counter
	outcomes      metric.Int64Counter
	outcomeTime   metric.Float64Histogram

	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port" mapstructure:"prometheus_port"`
}

// NewMetricsCollector creates a collector registered with the default
// Prometheus registry and, when a port is configured, serves /metrics.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	return newMetricsCollector(config, promclient.DefaultRegisterer, promclient.DefaultGatherer, true)
}

// NewMetricsCollectorWithRegistry builds a collector on a dedicated registry
// and never starts an HTTP server. Intended for tests and embedding.
func NewMetricsCollectorWithRegistry(config MetricsConfig, reg *promclient.Registry) (*MetricsCollector, error) {
	if reg == nil {
		reg = promclient.NewRegistry()
	}
	return newMetricsCollector(config, reg, reg, false)
}

func newMetricsCollector(config MetricsConfig, reg promclient.Registerer, gatherer promclient.Gatherer, serve bool) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	meter := provider.Meter(meterName)

	collector := &MetricsCollector{
		meter:    meter,
		provider: provider,
		gatherer: gatherer,
	}

	if collector.selections, err = meter.Int64Counter(
		"candsel.selection.requests",
		metric.WithDescription("Total number of selection rounds"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create selection requests counter: %w", err)
	}

	if collector.selectionTime, err = meter.Float64Histogram(
		"candsel.selection.duration",
		metric.WithDescription("Time spent scoring and choosing candidates"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create selection duration histogram: %w", err)
	}

	if collector.utility, err = meter.Float64Histogram(
		"candsel.selection.utility",
		metric.WithDescription("Utility of chosen candidates"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create utility histogram: %w", err)
	}

	if collector.chosen, err = meter.Int64Counter(
		"candsel.selection.chosen",
		metric.WithDescription("Times each candidate was chosen"),
		metric.WithUnit("{selection}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create chosen counter: %w", err)
	}

	if collector.skipped, err = meter.Int64Counter(
		"candsel.selection.skipped",
		metric.WithDescription("Candidates excluded from a round"),
		metric.WithUnit("{candidate}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create skipped counter: %w", err)
	}

	if collector.outcomes, err = meter.Int64Counter(
		"candsel.outcome.reports",
		metric.WithDescription("Outcome reports ingested"),
		metric.WithUnit("{report}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create outcome counter: %w", err)
	}

	if collector.outcomeTime, err = meter.Float64Histogram(
		"candsel.outcome.latency",
		metric.WithDescription("Request latency reported by the gateway"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create outcome latency histogram: %w", err)
	}

	if serve && config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("failed to start prometheus server: %w", err)
		}
	}

	return collector, nil
}

// Enabled reports whether the collector records anything.
func (m *MetricsCollector) Enabled() bool {
	return m != nil && m.selections != nil
}

// Handler serves the collector's registry in Prometheus text format.
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// StartPrometheusServer starts the Prometheus metrics server
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	m.prometheusServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server and flushes the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.prometheusServer != nil {
		errs = append(errs, m.prometheusServer.Shutdown(ctx))
	}
	if m.provider != nil {
		errs = append(errs, m.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// RecordSelection records one selection round and the candidates it chose.
func (m *MetricsCollector) RecordSelection(ctx context.Context, mode, status string, duration time.Duration, chosen map[string]float64) {
	if !m.Enabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	m.selections.Add(ctx, 1, attrs)
	m.selectionTime.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))

	for id, utility := range chosen {
		m.chosen.Add(ctx, 1, metric.WithAttributes(attribute.String("candidate", id)))
		m.utility.Record(ctx, utility, metric.WithAttributes(attribute.String("mode", mode)))
	}
}

// RecordSkipped records candidates excluded from a round.
func (m *MetricsCollector) RecordSkipped(ctx context.Context, reason string, count int) {
	if !m.Enabled() || count <= 0 {
		return
	}
	m.skipped.Add(ctx, int64(count), metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordOutcome records one outcome report from the gateway.
func (m *MetricsCollector) RecordOutcome(ctx context.Context, success bool, latency time.Duration) {
	if !m.Enabled() {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.outcomes.Add(ctx, 1, attrs)
	m.outcomeTime.Record(ctx, latency.Seconds(), attrs)
}
