package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/msvee3/Interview-prep/internal/interview"
)

// Metrics holds the Prometheus collectors for interview sessions.
// It implements interview.Observer and the backend request recorder.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive   prometheus.Gauge
	SessionsTotal    *prometheus.CounterVec
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	CaptureErrors    *prometheus.CounterVec
	AnswersSubmitted *prometheus.CounterVec
}

var _ interview.Observer = (*Metrics)(nil)

// New creates a Metrics instance with every collector registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "interview"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of interview sessions in progress",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of interview sessions by outcome",
		},
		[]string{"outcome"},
	)

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of backend requests",
		},
		[]string{"op", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"op"},
	)

	captureErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Total number of speech capture failures",
		},
		[]string{"reason"},
	)

	answersSubmitted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_submitted_total",
			Help:      "Total number of answers submitted",
		},
		[]string{"mode"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		requestsTotal,
		requestDuration,
		captureErrors,
		answersSubmitted,
	)

	return &Metrics{
		registry:         registry,
		SessionsActive:   sessionsActive,
		SessionsTotal:    sessionsTotal,
		RequestsTotal:    requestsTotal,
		RequestDuration:  requestDuration,
		CaptureErrors:    captureErrors,
		AnswersSubmitted: answersSubmitted,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records a completed backend request.
func (m *Metrics) ObserveRequest(op, status string, d time.Duration) {
	m.RequestsTotal.WithLabelValues(op, status).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) SessionStarted() {
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionEnded(outcome string) {
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AnswerSubmitted(voice bool) {
	mode := "text"
	if voice {
		mode = "voice"
	}
	m.AnswersSubmitted.WithLabelValues(mode).Inc()
}

func (m *Metrics) CaptureFailed(reason string) {
	m.CaptureErrors.WithLabelValues(reason).Inc()
}
