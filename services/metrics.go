package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the interview pipeline.
type Metrics struct {
	registry *prometheus.Registry

	AnalyticsResults   *prometheus.CounterVec
	AIRequestDuration  *prometheus.HistogramVec
	AIRequestErrors    *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	SessionTransitions *prometheus.CounterVec
	SessionsEnded      *prometheus.CounterVec
	PipelineErrors     *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		AnalyticsResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intervue_analytics_results_total",
				Help: "Analytics results produced, by source",
			},
			[]string{"source"},
		),
		AIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intervue_ai_request_duration_seconds",
				Help:    "Latency of generative AI calls",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
			},
			[]string{"operation"},
		),
		AIRequestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intervue_ai_request_errors_total",
				Help: "Generative AI calls that failed or returned unusable output",
			},
			[]string{"operation"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "intervue_sessions_active",
				Help: "Interview sessions currently registered",
			},
		),
		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intervue_session_transitions_total",
				Help: "Session controller state transitions",
			},
			[]string{"from", "to"},
		),
		SessionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intervue_sessions_ended_total",
				Help: "Sessions that reached the completed state, by end reason",
			},
			[]string{"reason"},
		),
		PipelineErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intervue_completion_pipeline_errors_total",
				Help: "Failures in the post-session completion steps",
			},
			[]string{"step"},
		),
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intervue_events_published_total",
				Help: "Domain events published to the message broker",
			},
			[]string{"status"},
		),
	}
}

// NewDefaultMetrics builds a registry that also carries the Go runtime and process collectors.
func NewDefaultMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetrics(registry)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The helpers below tolerate a nil *Metrics so components can run without instrumentation.

func (m *Metrics) recordAnalytics(source string) {
	if m == nil {
		return
	}
	m.AnalyticsResults.WithLabelValues(source).Inc()
}

func (m *Metrics) recordAICall(operation string, seconds float64, failed bool) {
	if m == nil {
		return
	}
	m.AIRequestDuration.WithLabelValues(operation).Observe(seconds)
	if failed {
		m.AIRequestErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) recordTransition(from, to SessionState) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) recordSessionEnded(reason EndReason) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) recordPipelineError(step string) {
	if m == nil {
		return
	}
	m.PipelineErrors.WithLabelValues(step).Inc()
}

func (m *Metrics) recordEvent(status string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(status).Inc()
}

func (m *Metrics) setActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
