// Package scraper implements the catalogue traversal and concurrent
// detail-page enrichment pipeline: a sequential, throttled walker streams
// summaries into a bounded worker pool, and completed records leave in
// discovery order.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/yufuqiang/web-scraper/config"
	"github.com/yufuqiang/web-scraper/models"
)

// RecordSink receives the final ordered records, one call per completed run.
type RecordSink interface {
	Process(books []*models.Book) error
}

// Scraper wires the walker and enricher over a shared fetcher.
type Scraper struct {
	cfg      *config.Config
	fetcher  *CollyFetcher
	walker   *walker
	enricher *enricher
	retry    *retrier
	failures *failureLog
	Metrics  *Metrics
}

// New builds a scraper from a validated configuration.
func New(cfg *config.Config) (*Scraper, error) {
	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}

	retry := newRetrier(cfg, metrics)
	failures := newFailureLog()

	return &Scraper{
		cfg:      cfg,
		fetcher:  fetcher,
		walker:   newWalker(fetcher, retry, cfg, metrics, failures),
		enricher: newEnricher(fetcher, retry, cfg, metrics, failures),
		retry:    retry,
		failures: failures,
		Metrics:  metrics,
	}, nil
}

// WithTransport swaps the HTTP transport on the underlying fetcher.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.fetcher.WithTransport(rt)
}

// Run walks the catalogue, enriches every discovered summary and hands the
// ordered records to the sink. Partial results are preferred over aborting:
// only a sink failure is returned as an error.
func (s *Scraper) Run(ctx context.Context, sink RecordSink) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	books := s.enricher.Enrich(ctx, s.walker.Walk(ctx))

	if err := sink.Process(books); err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}

	byType, urls := s.failures.snapshot()
	return &models.ScrapeResult{
		StartTime:      start,
		EndTime:        time.Now(),
		PagesFetched:   s.walker.Pages(),
		SummariesFound: len(books),
		RecordsWritten: len(books),
		DetailFailures: s.enricher.Degraded(),
		RetryCount:     s.retry.TotalRetries(),
		RequestCount:   s.fetcher.Requests(),
		FailedURLs:     urls,
		ErrorsByType:   byType,
	}, nil
}

// failureLog tallies fetch failures across walker and enricher.
type failureLog struct {
	mu     sync.Mutex
	byType map[string]int
	urls   []string
}

func newFailureLog() *failureLog {
	return &failureLog{byType: make(map[string]int)}
}

func (l *failureLog) record(url string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byType[errorTypeLabel(err)]++
	l.urls = append(l.urls, url)
}

func (l *failureLog) snapshot() (map[string]int, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byType := make(map[string]int, len(l.byType))
	for k, v := range l.byType {
		byType[k] = v
	}
	urls := make([]string, len(l.urls))
	copy(urls, l.urls)
	return byType, urls
}
