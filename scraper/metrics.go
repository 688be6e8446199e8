package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request phases used as metric labels.
const (
	phaseListing = "listing"
	phaseDetail  = "detail"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	RecordsTotal       prometheus.Counter
	RetriesTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	PagesWalkedTotal   prometheus.Counter
	DegradedTotal prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookscraper_requests_total",
			Help: "Total HTTP requests issued, by phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookscraper_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookscraper_records_total",
			Help: "Total enriched records produced.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookscraper_retries_total",
			Help: "Total retry attempts for transient fetch failures.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookscraper_errors_total",
			Help: "Total fetch errors by type.",
		},
		[]string{"error_type"},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookscraper_pages_walked_total",
			Help: "Catalogue pages successfully fetched and parsed.",
		},
	)
	degraded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookscraper_degraded_records_total",
			Help: "Records emitted with empty enrichment after a detail failure.",
		},
	)

	registry.MustRegister(requests, requestDuration, records, retries, errorsTotal, pages, degraded)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		RecordsTotal:       records,
		RetriesTotal:       retries,
		ErrorsTotal:        errorsTotal,
		PagesWalkedTotal:   pages,
		DegradedTotal: degraded,
	}
}

// IncRequest increments the requests counter for a phase.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRecords increments the enriched-records counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncPages increments the walked-pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesWalkedTotal.Inc()
}

// IncDegraded increments the degraded-records counter.
func (m *Metrics) IncDegraded() {
	if m == nil {
		return
	}
	m.DegradedTotal.Inc()
}
