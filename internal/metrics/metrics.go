// Package metrics provides Prometheus metrics instrumentation for the controller.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	// StatusExists marks a discovery pass that found its pod already running.
	StatusExists = "exists"
)

// DNS probe target label values.
const (
	TargetService = "service"
	TargetPod     = "pod"
)

// Collector provides metrics recording interface.
// This allows components to record metrics without direct prometheus dependency.
//
//nolint:interfacebloat // All methods are needed for comprehensive metrics coverage
type Collector interface {
	// Reconcile metrics
	RecordReconcileDuration(ctx context.Context, status string, duration time.Duration)
	RecordReconcileError(ctx context.Context, errorType string)

	// DNS verification metrics
	RecordDNSProbe(ctx context.Context, target, status string, duration time.Duration)
	RecordResolvedPods(ctx context.Context, namespace, service string, count int)

	// Kubernetes API metrics
	RecordAPICall(ctx context.Context, verb, resource, status string, duration time.Duration)
	RecordAPIError(ctx context.Context, verb, errorType string)

	// Discovery metrics
	RecordDiscoveryConfigured(ctx context.Context, discoveryType, status string)
	RecordCleanupFailure(ctx context.Context, resource string)
	RecordValidationError(ctx context.Context, component string)
}

// prometheusCollector implements Collector using Prometheus metrics.
type prometheusCollector struct {
	// Reconcile metrics
	reconcileDuration    *prometheus.HistogramVec
	reconcileErrorsTotal *prometheus.CounterVec

	// DNS verification metrics
	dnsProbeDuration *prometheus.HistogramVec
	dnsProbesTotal   *prometheus.CounterVec
	resolvedPods     *prometheus.GaugeVec

	// Kubernetes API metrics
	apiDuration    *prometheus.HistogramVec
	apiCallsTotal  *prometheus.CounterVec
	apiErrorsTotal *prometheus.CounterVec

	// Discovery metrics
	discoveryConfiguredTotal *prometheus.CounterVec
	cleanupFailuresTotal     *prometheus.CounterVec
	validationErrorsTotal    *prometheus.CounterVec
}

// NewCollector creates a new Prometheus metrics collector and registers metrics.
func NewCollector(reg prometheus.Registerer) Collector {
	c := &prometheusCollector{}
	c.initReconcileMetrics()
	c.initDNSMetrics()
	c.initAPIMetrics()
	c.initDiscoveryMetrics()
	c.register(reg)

	return c
}

// RecordReconcileDuration records the duration of a reconcile pass.
func (c *prometheusCollector) RecordReconcileDuration(_ context.Context, status string, duration time.Duration) {
	c.reconcileDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordReconcileError records a reconcile error by type.
func (c *prometheusCollector) RecordReconcileError(_ context.Context, errorType string) {
	c.reconcileErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordDNSProbe records a DNS lookup against the configured resolver.
func (c *prometheusCollector) RecordDNSProbe(_ context.Context, target, status string, duration time.Duration) {
	c.dnsProbeDuration.WithLabelValues(target).Observe(duration.Seconds())
	c.dnsProbesTotal.WithLabelValues(target, status).Inc()
}

// RecordResolvedPods records how many pods of a service resolved individually.
func (c *prometheusCollector) RecordResolvedPods(_ context.Context, namespace, service string, count int) {
	c.resolvedPods.WithLabelValues(namespace, service).Set(float64(count))
}

// RecordAPICall records a Kubernetes API call.
func (c *prometheusCollector) RecordAPICall(
	_ context.Context,
	verb, resource, status string,
	duration time.Duration,
) {
	c.apiDuration.WithLabelValues(verb, resource).Observe(duration.Seconds())
	c.apiCallsTotal.WithLabelValues(verb, resource, status).Inc()
}

// RecordAPIError records a Kubernetes API error.
func (c *prometheusCollector) RecordAPIError(_ context.Context, verb, errorType string) {
	c.apiErrorsTotal.WithLabelValues(verb, errorType).Inc()
}

// RecordDiscoveryConfigured records the outcome of configuring a discovery strategy.
func (c *prometheusCollector) RecordDiscoveryConfigured(_ context.Context, discoveryType, status string) {
	c.discoveryConfiguredTotal.WithLabelValues(discoveryType, status).Inc()
}

// RecordCleanupFailure records an object that could not be deleted during cleanup.
func (c *prometheusCollector) RecordCleanupFailure(_ context.Context, resource string) {
	c.cleanupFailuresTotal.WithLabelValues(resource).Inc()
}

// RecordValidationError records a rejected configuration.
func (c *prometheusCollector) RecordValidationError(_ context.Context, component string) {
	c.validationErrorsTotal.WithLabelValues(component).Inc()
}

func (c *prometheusCollector) initReconcileMetrics() {
	c.reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hsc_reconcile_duration_seconds",
			Help:    "Duration of HeadlessService reconciliation",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
	c.reconcileErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsc_reconcile_errors_total",
			Help: "Total reconcile errors by type",
		},
		[]string{"error_type"},
	)
}

func (c *prometheusCollector) initDNSMetrics() {
	c.dnsProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hsc_dns_probe_duration_seconds",
			Help:    "Duration of DNS lookups against the configured resolver",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		},
		[]string{"target"},
	)
	c.dnsProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsc_dns_probes_total",
			Help: "Total DNS lookups by target and outcome",
		},
		[]string{"target", "status"},
	)
	c.resolvedPods = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hsc_dns_resolved_pods",
			Help: "Number of pods whose per-pod FQDN resolved",
		},
		[]string{"namespace", "service"},
	)
}

func (c *prometheusCollector) initAPIMetrics() {
	c.apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hsc_kubernetes_api_duration_seconds",
			Help:    "Duration of Kubernetes API calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"verb", "resource"},
	)
	c.apiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsc_kubernetes_api_calls_total",
			Help: "Total Kubernetes API calls",
		},
		[]string{"verb", "resource", "status"},
	)
	c.apiErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsc_kubernetes_api_errors_total",
			Help: "Total Kubernetes API errors by type",
		},
		[]string{"verb", "error_type"},
	)
}

func (c *prometheusCollector) initDiscoveryMetrics() {
	c.discoveryConfiguredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsc_discovery_configured_total",
			Help: "Discovery strategy configuration attempts by type and outcome",
		},
		[]string{"type", "status"},
	)
	c.cleanupFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsc_cleanup_failures_total",
			Help: "Objects that could not be deleted during cleanup",
		},
		[]string{"resource"},
	)
	c.validationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsc_validation_errors_total",
			Help: "Rejected HeadlessService configurations by component",
		},
		[]string{"component"},
	)
}

func (c *prometheusCollector) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.reconcileDuration,
		c.reconcileErrorsTotal,
		c.dnsProbeDuration,
		c.dnsProbesTotal,
		c.resolvedPods,
		c.apiDuration,
		c.apiCallsTotal,
		c.apiErrorsTotal,
		c.discoveryConfiguredTotal,
		c.cleanupFailuresTotal,
		c.validationErrorsTotal,
	)
}

// NoopCollector is a no-op implementation of Collector for testing.
type NoopCollector struct{}

// NewNoopCollector creates a new no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

// RecordReconcileDuration is a no-op.
func (c *NoopCollector) RecordReconcileDuration(_ context.Context, _ string, _ time.Duration) {}

// RecordReconcileError is a no-op.
func (c *NoopCollector) RecordReconcileError(_ context.Context, _ string) {}

// RecordDNSProbe is a no-op.
func (c *NoopCollector) RecordDNSProbe(_ context.Context, _, _ string, _ time.Duration) {}

// RecordResolvedPods is a no-op.
func (c *NoopCollector) RecordResolvedPods(_ context.Context, _, _ string, _ int) {}

// RecordAPICall is a no-op.
func (c *NoopCollector) RecordAPICall(_ context.Context, _, _, _ string, _ time.Duration) {}

// RecordAPIError is a no-op.
func (c *NoopCollector) RecordAPIError(_ context.Context, _, _ string) {}

// RecordDiscoveryConfigured is a no-op.
func (c *NoopCollector) RecordDiscoveryConfigured(_ context.Context, _, _ string) {}

// RecordCleanupFailure is a no-op.
func (c *NoopCollector) RecordCleanupFailure(_ context.Context, _ string) {}

// RecordValidationError is a no-op.
func (c *NoopCollector) RecordValidationError(_ context.Context, _ string) {}
