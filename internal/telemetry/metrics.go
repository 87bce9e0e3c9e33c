// Package telemetry holds the sync metrics and the optional OTLP tracing setup.
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asccrash/asccrash/internal/model"
)

const namespace = "asccrash"

// Metrics counts sync activity in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	newSubmissions    *prometheus.CounterVec
	artifactsRecov    *prometheus.CounterVec
	artifactFailures  *prometheus.CounterVec
	pagesFetched      *prometheus.CounterVec
	sourceFailures    prometheus.Counter
	lastSuccess       prometheus.Gauge
	lastRunSuccessful prometheus.Gauge
}

// NewMetrics registers the sync collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		newSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "new_submissions_total",
			Help:      "Submissions stored for the first time.",
		}, []string{"kind"}),
		artifactsRecov: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "artifacts_recovered_total",
			Help:      "Crash logs and screenshots downloaded.",
		}, []string{"kind"}),
		artifactFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "artifact_failures_total",
			Help:      "Artifact downloads that failed and will be retried.",
		}, []string{"kind"}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pages_fetched_total",
			Help:      "Submission list pages fetched.",
		}, []string{"kind"}),
		sourceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "source_failures_total",
			Help:      "Apps whose sync failed.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last sync that finished without errors.",
		}),
		lastRunSuccessful: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_run_successful",
			Help:      "1 if the last sync finished without errors.",
		}),
	}

	m.registry.MustRegister(
		m.newSubmissions,
		m.artifactsRecov,
		m.artifactFailures,
		m.pagesFetched,
		m.sourceFailures,
		m.lastSuccess,
		m.lastRunSuccessful,
	)

	// Pre-create the labelled series so a quiet run still exports zeros.
	for _, kind := range model.Kinds {
		m.newSubmissions.WithLabelValues(string(kind))
		m.artifactsRecov.WithLabelValues(string(kind))
		m.artifactFailures.WithLabelValues(string(kind))
		m.pagesFetched.WithLabelValues(string(kind))
	}

	return m
}

func (m *Metrics) PagesFetched(kind model.Kind, n int) {
	m.pagesFetched.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *Metrics) NewSubmissions(kind model.Kind, n int) {
	m.newSubmissions.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *Metrics) ArtifactRecovered(kind model.Kind) {
	m.artifactsRecov.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ArtifactFailed(kind model.Kind) {
	m.artifactFailures.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) SourceFailed() {
	m.sourceFailures.Inc()
}

func (m *Metrics) RunFinished(at time.Time, ok bool) {
	if ok {
		m.lastSuccess.Set(float64(at.Unix()))
		m.lastRunSuccessful.Set(1)
		return
	}
	m.lastRunSuccessful.Set(0)
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
