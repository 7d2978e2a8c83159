// Package metrics provides Prometheus metrics for the SuperClaw control plane.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the control plane.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	DecisionsTotal      *prometheus.CounterVec
	PorterScore         prometheus.Histogram
	SchedulerRunsTotal  *prometheus.CounterVec
	ScheduledJobs       prometheus.Gauge
	SlackEventsTotal    *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superclaw_http_requests_total",
				Help: "Management API requests by route and status code.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "superclaw_http_request_duration_seconds",
				Help:    "Management API request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superclaw_routing_decisions_total",
				Help: "Classification decisions by classifier, source, target agent and outcome.",
			},
			[]string{"classifier", "source", "agent", "outcome"},
		),
		PorterScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "superclaw_porter_score",
				Help:    "Winning Porter score for tasks assigned by handoff rules.",
				Buckets: []float64{1, 3, 5, 10, 20, 40, 80},
			},
		),
		SchedulerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superclaw_scheduler_runs_total",
				Help: "Scheduled job runs by result.",
			},
			[]string{"result"},
		),
		ScheduledJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "superclaw_scheduled_jobs",
				Help: "Number of cron jobs currently scheduled.",
			},
		),
		SlackEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superclaw_slack_events_total",
				Help: "Slack events by type and handling result.",
			},
			[]string{"type", "result"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "superclaw_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.PorterScore,
		m.SchedulerRunsTotal,
		m.ScheduledJobs,
		m.SlackEventsTotal,
		m.ErrorsTotal,
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTP records one management API request.
func (m *Metrics) RecordHTTP(method, route string, status int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordDecision counts a classification. Outcome is "rule", "handoff" or
// "fallback".
func (m *Metrics) RecordDecision(classifier, source, agent, outcome string) {
	m.DecisionsTotal.WithLabelValues(classifier, source, agent, outcome).Inc()
}

// ObservePorterScore records the winning score of a Porter assignment.
func (m *Metrics) ObservePorterScore(score int) {
	m.PorterScore.Observe(float64(score))
}

// RecordSchedulerRun counts a cron job firing.
func (m *Metrics) RecordSchedulerRun(result string) {
	m.SchedulerRunsTotal.WithLabelValues(result).Inc()
}

// SetScheduledJobs sets the scheduled job gauge.
func (m *Metrics) SetScheduledJobs(n int) {
	m.ScheduledJobs.Set(float64(n))
}

// RecordSlackEvent counts a Slack event.
func (m *Metrics) RecordSlackEvent(eventType, result string) {
	m.SlackEventsTotal.WithLabelValues(eventType, result).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}
