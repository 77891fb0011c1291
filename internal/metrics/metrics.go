// Package metrics holds the Prometheus collectors for the scan pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mentionscan"

type Metrics struct {
	ScansDispatched  *prometheus.CounterVec
	ScanRunsFinished *prometheus.CounterVec
	CrawlPages       prometheus.Histogram
	LLMCalls         *prometheus.CounterVec
	LLMCallSeconds   *prometheus.HistogramVec
	EnrichmentsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. A nil reg gets a fresh registry so
// tests can build any number of instances.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		ScansDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "scans_dispatched_total",
			Help:      "Scheduled scans sent by the dispatcher, by outcome.",
		}, []string{"outcome"}),
		ScanRunsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_finished_total",
			Help:      "Scan runs that reached a terminal status.",
		}, []string{"status"}),
		CrawlPages: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "crawler",
			Name:      "pages",
			Help:      "Pages extracted per crawl.",
			Buckets:   []float64{0, 1, 3, 5, 10, 15},
		}),
		LLMCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "LLM completions by platform and outcome.",
		}, []string{"platform", "outcome"}),
		LLMCallSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM completion latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"platform"}),
		EnrichmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "runs_total",
			Help:      "Enrichment runs by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// The helpers below are no-ops on a nil *Metrics.

func (m *Metrics) Dispatched(outcome string) {
	if m != nil {
		m.ScansDispatched.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RunFinished(status string) {
	if m != nil {
		m.ScanRunsFinished.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Crawled(pages int) {
	if m != nil {
		m.CrawlPages.Observe(float64(pages))
	}
}

func (m *Metrics) LLMCall(platform, outcome string, took time.Duration) {
	if m != nil {
		m.LLMCalls.WithLabelValues(platform, outcome).Inc()
		m.LLMCallSeconds.WithLabelValues(platform).Observe(took.Seconds())
	}
}

func (m *Metrics) Enriched(outcome string) {
	if m != nil {
		m.EnrichmentsTotal.WithLabelValues(outcome).Inc()
	}
}
