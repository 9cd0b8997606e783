// Package metrics exports Prometheus metrics for mirroring runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/mirror/internal/handler"
)

// Run statuses recorded by RecordRun.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Metrics holds the mirror's collectors.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	DispatchTotal *prometheus.CounterVec
	Fallbacks     *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	TriageHits    prometheus.Counter

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Passing a fresh
// prometheus.NewRegistry keeps tests independent of the global registry.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_runs_total",
			Help: "Mirroring runs by final status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mirror_run_duration_seconds",
			Help:    "Wall time of a mirroring run",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_dispatch_total",
			Help: "Resource dispatches by handler and outcome",
		}, []string{"handler", "outcome"}),
		Fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_fallbacks_total",
			Help: "Fallback messages substituted into documents by failure kind",
		}, []string{"kind"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mirror_fetch_duration_seconds",
			Help:    "Duration of upstream reads",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		TriageHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "mirror_triage_hits_total",
			Help: "URLs served from the triage cache instead of being processed again",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_http_requests_total",
			Help: "API requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mirror_http_request_duration_seconds",
			Help:    "API request latency by method and route",
			Buckets: []float64{0.005, 0.05, 0.25, 1, 5, 30, 120, 600},
		}, []string{"method", "route"}),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mirror_http_requests_in_flight",
			Help: "API requests currently being served",
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(status string, d time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// ObserveDispatch matches handler.ObserveFunc.
func (m *Metrics) ObserveDispatch(name string, outcome handler.Outcome, _ handler.FailureKind) {
	m.DispatchTotal.WithLabelValues(name, outcome.String()).Inc()
}

// ObserveFallback counts one substituted fallback.
func (m *Metrics) ObserveFallback(kind handler.FailureKind) {
	m.Fallbacks.WithLabelValues(kind.String()).Inc()
}

// ObserveFetch records one upstream read.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FetchDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveTriageHit counts one triage cache hit.
func (m *Metrics) ObserveTriageHit() {
	m.TriageHits.Inc()
}
