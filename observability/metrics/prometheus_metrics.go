// Package metrics provides Prometheus collectors for the relay's components.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using the Prometheus client.
// Every metric name is prefixed with the sanitized component name.
type PrometheusMetrics struct {
	serviceName string

	// processedTotal tracks processed items by status and type
	processedTotal *prometheus.CounterVec
	// errorsTotal tracks errors by error type and operation
	errorsTotal *prometheus.CounterVec
	// durationSeconds tracks operation latency
	durationSeconds *prometheus.HistogramVec
	// fileSizeBytes tracks relayed payload sizes
	fileSizeBytes *prometheus.HistogramVec
	// inProgress tracks operations currently in flight
	inProgress *prometheus.GaugeVec
}

// New creates a PrometheusMetrics instance and registers its collectors on reg.
// A nil reg uses prometheus.DefaultRegisterer.
//
// Pre-configured metrics:
//   - {name}_processed_total: Counter for successful and failed operations
//   - {name}_errors_total: Counter for errors by type and operation
//   - {name}_duration_seconds: Histogram for operation durations
//   - {name}_file_size_bytes: Histogram for payload sizes with exponential buckets
//   - {name}_in_progress: Gauge for concurrent operations
//
// Panics if registration fails (e.g. the same name is registered twice on reg).
func New(serviceName string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	name := SanitizeName(serviceName)
	m := &PrometheusMetrics{serviceName: name}

	m.processedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_processed_total", name),
			Help: fmt.Sprintf("Total processed items by %s", name),
		},
		[]string{"status", "type"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_errors_total", name),
			Help: fmt.Sprintf("Total errors in %s", name),
		},
		[]string{"error_type", "operation"},
	)

	// Upstream fetches for media routinely take longer than the default buckets cover.
	m.durationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_duration_seconds", name),
			Help:    fmt.Sprintf("Operation duration in %s", name),
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	// Buckets: 1KB, 10KB, 100KB, 1MB, 10MB, 100MB, 1GB
	m.fileSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_file_size_bytes", name),
			Help:    fmt.Sprintf("Payload sizes relayed by %s", name),
			Buckets: prometheus.ExponentialBuckets(1024, 10, 7),
		},
		[]string{"file_type"},
	)

	m.inProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_in_progress", name),
			Help: fmt.Sprintf("Operations in progress in %s", name),
		},
		[]string{"operation"},
	)

	reg.MustRegister(
		m.processedTotal,
		m.errorsTotal,
		m.durationSeconds,
		m.fileSizeBytes,
		m.inProgress,
	)

	return m
}

// RecordSuccess increments {name}_processed_total with status="success".
func (m *PrometheusMetrics) RecordSuccess(operationType string) {
	m.processedTotal.WithLabelValues("success", operationType).Inc()
}

// RecordError increments both the processed counter (status="error") and the
// detailed error counter.
func (m *PrometheusMetrics) RecordError(operationType string, errorType string) {
	m.processedTotal.WithLabelValues("error", operationType).Inc()
	m.errorsTotal.WithLabelValues(errorType, operationType).Inc()
}

// RecordDuration observes an operation duration in seconds.
func (m *PrometheusMetrics) RecordDuration(operation string, duration float64) {
	m.durationSeconds.WithLabelValues(operation).Observe(duration)
}

// RecordFileSize observes a payload size in bytes.
func (m *PrometheusMetrics) RecordFileSize(fileType string, bytes int64) {
	m.fileSizeBytes.WithLabelValues(fileType).Observe(float64(bytes))
}

// StartOperation increments the in-progress gauge.
func (m *PrometheusMetrics) StartOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Inc()
}

// EndOperation decrements the in-progress gauge.
func (m *PrometheusMetrics) EndOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Dec()
}

// SanitizeName maps a component name onto the Prometheus metric name alphabet.
func SanitizeName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "relay"
	}
	return b.String()
}
