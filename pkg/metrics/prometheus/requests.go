package prometheus

import (
	"time"

	"github.com/marmos91/dittostorage/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// requestMetrics is the Prometheus implementation of metrics.RequestMetrics.
type requestMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	retriesTotal     *prometheus.CounterVec
	rejectedTotal    *prometheus.CounterVec
	transfersTotal   *prometheus.CounterVec
	pendingJobs      prometheus.Gauge
}

// NewRequestMetrics creates a Prometheus-backed RequestMetrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewRequestMetrics() metrics.RequestMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopRequestMetrics()
	}

	reg := metrics.GetRegistry()

	return &requestMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostorage_requests_total",
				Help: "Total number of bus requests by method and status",
			},
			[]string{"method", "status", "error_kind"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittostorage_request_duration_milliseconds",
				Help: "Duration of bus requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"method"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittostorage_requests_in_flight",
				Help: "Current number of bus requests being processed",
			},
			[]string{"method"},
		),
		retriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostorage_request_retries_total",
				Help: "Requests restarted after an Unauthorized provider failure",
			},
			[]string{"method"},
		),
		rejectedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostorage_requests_rejected_total",
				Help: "Requests refused before reaching the provider",
			},
			[]string{"reason"},
		),
		transfersTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittostorage_transfers_total",
				Help: "Finished upload and download jobs by outcome",
			},
			[]string{"kind", "outcome"},
		),
		pendingJobs: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittostorage_pending_jobs",
				Help: "Current number of registered transfer jobs",
			},
		),
	}
}

func (m *requestMetrics) RecordRequest(method string, duration time.Duration, errorKind string) {
	status := "success"
	if errorKind != "" {
		status = "error"
	}

	m.requestsTotal.WithLabelValues(method, status, errorKind).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *requestMetrics) RecordRequestStart(method string) {
	m.requestsInFlight.WithLabelValues(method).Inc()
}

func (m *requestMetrics) RecordRequestEnd(method string) {
	m.requestsInFlight.WithLabelValues(method).Dec()
}

func (m *requestMetrics) RecordRetry(method string) {
	m.retriesTotal.WithLabelValues(method).Inc()
}

func (m *requestMetrics) RecordRejected(reason string) {
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

func (m *requestMetrics) RecordTransfer(kind string, outcome string) {
	m.transfersTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *requestMetrics) SetPendingJobs(count int) {
	m.pendingJobs.Set(float64(count))
}
