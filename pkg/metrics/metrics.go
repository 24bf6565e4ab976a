// Package metrics defines the Prometheus collectors used by the indexer and
// query server and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	QueriesTotal        *prometheus.CounterVec
	QueryLatency        prometheus.Histogram
	QueryResultsCount   prometheus.Histogram
	ConnectionsTotal    prometheus.Counter
	ConnectionsInFlight prometheus.Gauge
	RequestErrorsTotal  *prometheus.CounterVec
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	DocsIndexedTotal    prometheus.Counter
	DocsSkippedTotal    prometheus.Counter
	IndexLoadsTotal     *prometheus.CounterVec
	IndexTerms          prometheus.Gauge
	IndexDocuments      prometheus.Gauge
}

// New creates all collectors and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them on Handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termsearch_queries_total",
				Help: "Total term queries by result type (hit, zero_result, invalid).",
			},
			[]string{"result_type"},
		),
		QueryLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "termsearch_query_latency_seconds",
				Help:    "Time from request received to response written.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		QueryResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "termsearch_query_results_count",
				Help:    "Number of documents returned per query.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 1000},
			},
		),
		ConnectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termsearch_connections_total",
				Help: "Total accepted client connections.",
			},
		),
		ConnectionsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "termsearch_connections_in_flight",
				Help: "Connections currently being served.",
			},
		),
		RequestErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termsearch_request_errors_total",
				Help: "Per-connection failures by stage (accept, read, write, too_large).",
			},
			[]string{"stage"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termsearch_cache_hits_total",
				Help: "Total query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termsearch_cache_misses_total",
				Help: "Total query cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termsearch_docs_indexed_total",
				Help: "Documents tokenized into the index.",
			},
		),
		DocsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "termsearch_docs_skipped_total",
				Help: "Documents given an ID but skipped because they were unreadable or empty.",
			},
		),
		IndexLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termsearch_index_loads_total",
				Help: "Index snapshot loads by status.",
			},
			[]string{"status"},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "termsearch_index_terms",
				Help: "Distinct terms in the active snapshot.",
			},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "termsearch_index_documents",
				Help: "Manifest entries in the active snapshot.",
			},
		),
	}

	reg.MustRegister(
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResultsCount,
		m.ConnectionsTotal,
		m.ConnectionsInFlight,
		m.RequestErrorsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.DocsSkippedTotal,
		m.IndexLoadsTotal,
		m.IndexTerms,
		m.IndexDocuments,
	)

	return m
}

// ObserveQuery records a completed query.
func (m *Metrics) ObserveQuery(resultType string, results int, seconds float64) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(resultType).Inc()
	m.QueryResultsCount.Observe(float64(results))
	m.QueryLatency.Observe(seconds)
}

func (m *Metrics) RequestError(stage string) {
	if m == nil {
		return
	}
	m.RequestErrorsTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ConnectionsInFlight.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.ConnectionsInFlight.Dec()
}

func (m *Metrics) CacheResult(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) DocIndexed(skipped bool) {
	if m == nil {
		return
	}
	if skipped {
		m.DocsSkippedTotal.Inc()
	} else {
		m.DocsIndexedTotal.Inc()
	}
}

// SnapshotLoaded records a load attempt and, on success, the snapshot size.
func (m *Metrics) SnapshotLoaded(terms, docs int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.IndexLoadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.IndexLoadsTotal.WithLabelValues("ok").Inc()
	m.IndexTerms.Set(float64(terms))
	m.IndexDocuments.Set(float64(docs))
}

// Handler returns the Prometheus scrape HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
