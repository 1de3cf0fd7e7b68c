package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for Nurture
type Metrics struct {
	// Delivery counters
	EmailsSentTotal   *prometheus.CounterVec
	EmailsFailedTotal *prometheus.CounterVec

	// Subscriber counters
	SubscribersCapturedTotal *prometheus.CounterVec
	UnsubscribesTotal        prometheus.Counter

	// Queue gauges
	QueuePending    prometheus.Gauge
	QueueProcessing prometheus.Gauge
	QueueFailed     prometheus.Gauge

	// Provider counters
	ProviderErrorsTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nurture_emails_sent_total",
				Help: "Total number of emails accepted by a provider",
			},
			[]string{"provider"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nurture_emails_failed_total",
				Help: "Total number of emails a provider rejected",
			},
			[]string{"provider"},
		),

		SubscribersCapturedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nurture_subscribers_captured_total",
				Help: "Total number of leads captured",
			},
			[]string{"source"},
		),
		UnsubscribesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nurture_unsubscribes_total",
				Help: "Total number of unsubscribe events",
			},
		),

		QueuePending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nurture_queue_pending",
				Help: "Number of emails waiting in the queue",
			},
		),
		QueueProcessing: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nurture_queue_processing",
				Help: "Number of emails currently being processed",
			},
		),
		QueueFailed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nurture_queue_failed",
				Help: "Number of failed emails awaiting operator attention",
			},
		),

		ProviderErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nurture_provider_errors_total",
				Help: "Total number of provider API errors",
			},
			[]string{"provider", "operation"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nurture_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nurture_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.SubscribersCapturedTotal,
		m.UnsubscribesTotal,
		m.QueuePending,
		m.QueueProcessing,
		m.QueueFailed,
		m.ProviderErrorsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncEmailsSent increments the sent email counter
func IncEmailsSent(provider string) {
	m := Global()
	if m != nil {
		m.EmailsSentTotal.WithLabelValues(provider).Inc()
	}
}

// IncEmailsFailed increments the failed email counter
func IncEmailsFailed(provider string) {
	m := Global()
	if m != nil {
		m.EmailsFailedTotal.WithLabelValues(provider).Inc()
	}
}

// IncSubscribersCaptured increments the captured lead counter
func IncSubscribersCaptured(source string) {
	m := Global()
	if m != nil {
		if source == "" {
			source = "unknown"
		}
		m.SubscribersCapturedTotal.WithLabelValues(source).Inc()
	}
}

// IncUnsubscribes increments the unsubscribe counter
func IncUnsubscribes() {
	m := Global()
	if m != nil {
		m.UnsubscribesTotal.Inc()
	}
}

// IncProviderErrors increments the provider error counter
func IncProviderErrors(provider, operation string) {
	m := Global()
	if m != nil {
		m.ProviderErrorsTotal.WithLabelValues(provider, operation).Inc()
	}
}
