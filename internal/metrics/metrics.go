// Package metrics holds the Prometheus instruments of a scan.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	// Namespace is the namespace for all sentinel metrics.
	Namespace = "bandi_sentinel"

	pushJob = "bandi_sentinel_scan"
)

// Metrics holds all scan metrics.
type Metrics struct {
	registry *prometheus.Registry

	CandidatesFound    *prometheus.CounterVec
	AnnouncementsNew   *prometheus.CounterVec
	CandidatesFiltered *prometheus.CounterVec
	SourceErrors       *prometheus.CounterVec
	AlertsSent         *prometheus.CounterVec
	SourceDuration     *prometheus.HistogramVec
	RunDuration        prometheus.Gauge
	LastRunTimestamp   prometheus.Gauge
}

// New creates the instruments on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.CandidatesFound = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "candidates_found_total",
		Help:      "Candidates extracted by source adapters",
	}, []string{"source"})

	m.AnnouncementsNew = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "announcements_new_total",
		Help:      "Announcements inserted into the repository",
	}, []string{"source"})

	m.CandidatesFiltered = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "candidates_filtered_total",
		Help:      "Candidates rejected by exclusion terms",
	}, []string{"source"})

	m.SourceErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "source_errors_total",
		Help:      "Adapter failures by kind",
	}, []string{"source", "kind"})

	m.AlertsSent = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "notifications_total",
		Help:      "Notification attempts by result",
	}, []string{"result"})

	m.SourceDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "source_duration_seconds",
		Help:      "Time spent scanning one source",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"source"})

	m.RunDuration = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last complete run",
	})

	m.LastRunTimestamp = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last completed run",
	})

	return m
}

// Registry exposes the underlying registry, for tests and gatherers.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveSource records the outcome of one adapter execution.
func (m *Metrics) ObserveSource(source string, found, inserted, filtered int, errKind string, d time.Duration) {
	m.CandidatesFound.WithLabelValues(source).Add(float64(found))
	m.AnnouncementsNew.WithLabelValues(source).Add(float64(inserted))
	m.CandidatesFiltered.WithLabelValues(source).Add(float64(filtered))
	if errKind != "" {
		m.SourceErrors.WithLabelValues(source, errKind).Inc()
	}
	m.SourceDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveNotification counts one delivery attempt.
func (m *Metrics) ObserveNotification(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AlertsSent.WithLabelValues(result).Inc()
}

// ObserveRun records the end of a run.
func (m *Metrics) ObserveRun(d time.Duration, finished time.Time) {
	m.RunDuration.Set(d.Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the registry to a Pushgateway. A one-shot scan exits before
// any scraper could collect it.
func (m *Metrics) Push(gatewayURL string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, pushJob).Gatherer(m.registry).Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
