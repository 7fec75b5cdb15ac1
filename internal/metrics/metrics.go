// Package metrics provides Prometheus metrics for the project builder.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunsActive       prometheus.Gauge
	ArtifactsTotal   *prometheus.CounterVec
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	RequestsTotal    *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	DBSizeBytes      prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "builder_runs_total",
				Help: "Finished runs by kind and terminal status.",
			},
			[]string{"kind", "status"},
		),
		RunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "builder_runs_active",
				Help: "Runs currently holding a project run lock.",
			},
		),
		ArtifactsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "builder_artifacts_total",
				Help: "Processed artifacts by result.",
			},
			[]string{"result"},
		),
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "builder_provider_calls_total",
				Help: "Generation provider calls by operation and result.",
			},
			[]string{"op", "result"},
		),
		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "builder_provider_call_duration_seconds",
				Help:    "Generation provider call duration including retries.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 180},
			},
			[]string{"op"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "builder_http_requests_total",
				Help: "HTTP API requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "builder_errors_total",
				Help: "Total errors by module and kind.",
			},
			[]string{"module", "kind"},
		),
		DBSizeBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "builder_db_size_bytes",
				Help: "Size of the project database.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.RunsTotal)
	reg.MustRegister(m.RunsActive)
	reg.MustRegister(m.ArtifactsTotal)
	reg.MustRegister(m.ProviderCalls)
	reg.MustRegister(m.ProviderDuration)
	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.ErrorsTotal)
	reg.MustRegister(m.DBSizeBytes)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(kind, status string) {
	m.RunsTotal.WithLabelValues(kind, status).Inc()
}

// RunStarted and RunFinished track the active run gauge.
func (m *Metrics) RunStarted()  { m.RunsActive.Inc() }
func (m *Metrics) RunFinished() { m.RunsActive.Dec() }

// RecordArtifact counts a processed artifact ("ok" or "error").
func (m *Metrics) RecordArtifact(result string) {
	m.ArtifactsTotal.WithLabelValues(result).Inc()
}

// ObserveProviderCall records one provider operation.
func (m *Metrics) ObserveProviderCall(op, result string, seconds float64) {
	m.ProviderCalls.WithLabelValues(op, result).Inc()
	m.ProviderDuration.WithLabelValues(op).Observe(seconds)
}

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(route, code string) {
	m.RequestsTotal.WithLabelValues(route, code).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, kind string) {
	m.ErrorsTotal.WithLabelValues(module, kind).Inc()
}

// SetDBSize sets the database size gauge.
func (m *Metrics) SetDBSize(bytes float64) {
	m.DBSizeBytes.Set(bytes)
}
