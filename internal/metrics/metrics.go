// Package metrics exposes prometheus collectors for scraping and patrol runs
// plus a per-call batch accumulator.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ModeItem   = "item"
	ModeSearch = "search"
	ModePatrol = "patrol"
	// ModeSweep labels whole sweep batches. Individual re-checks inside a
	// sweep are counted under ModePatrol.
	ModeSweep  = "sweep"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics bundles the collectors on a dedicated registry. A nil *Metrics is
// a valid no-op sink.
type Metrics struct {
	Registry         *prometheus.Registry
	ScrapeAttempts   *prometheus.CounterVec
	ScrapeDuration   *prometheus.HistogramVec
	ErrorsTotal      *prometheus.CounterVec
	ExtractionMisses *prometheus.CounterVec
	SweepRecords     *prometheus.CounterVec
	BatchSuccess     *prometheus.GaugeVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esp_scrape_attempts_total",
			Help: "Scrape and patrol attempts by site, mode and outcome.",
		},
		[]string{"site", "mode", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "esp_scrape_duration_seconds",
			Help:    "Wall time of one scrape or patrol call, or of one sweep batch.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"mode"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esp_errors_total",
			Help: "Errors by kind.",
		},
		[]string{"kind"},
	)
	misses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esp_extraction_miss_total",
			Help: "Fields whose fallback chain found nothing.",
		},
		[]string{"site", "field"},
	)
	sweep := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esp_sweep_records_total",
			Help: "Records processed by the staleness sweep.",
		},
		[]string{"outcome"},
	)
	success := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "esp_batch_success_ratio",
			Help: "Success ratio of the most recent batch.",
		},
		[]string{"mode"},
	)

	registry.MustRegister(attempts, duration, errorsTotal, misses, sweep, success)

	return &Metrics{
		Registry:         registry,
		ScrapeAttempts:   attempts,
		ScrapeDuration:   duration,
		ErrorsTotal:      errorsTotal,
		ExtractionMisses: misses,
		SweepRecords:     sweep,
		BatchSuccess:     success,
	}
}

func (m *Metrics) IncAttempt(site, mode string, ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailure
	}
	m.ScrapeAttempts.WithLabelValues(site, mode, outcome).Inc()
}

func (m *Metrics) ObserveDuration(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// IncError counts an error under a kind label such as browser.ErrorKind.
func (m *Metrics) IncError(kind string) {
	if m == nil || kind == "" || kind == "none" {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncExtractionMiss(site, field string) {
	if m == nil {
		return
	}
	m.ExtractionMisses.WithLabelValues(site, field).Inc()
}

func (m *Metrics) IncSweepRecord(outcome string) {
	if m == nil {
		return
	}
	m.SweepRecords.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetBatchSuccess(mode string, ratio float64) {
	if m == nil {
		return
	}
	m.BatchSuccess.WithLabelValues(mode).Set(ratio)
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
