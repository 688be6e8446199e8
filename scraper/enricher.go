package scraper

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yufuqiang/web-scraper/config"
	"github.com/yufuqiang/web-scraper/models"
	"github.com/yufuqiang/web-scraper/parser"
)

// detailJob tags a summary with its discovery index so results can be
// reassembled into input order after concurrent completion.
type detailJob struct {
	index   int
	summary models.BookSummary
}

type detailResult struct {
	index int
	book  *models.Book
}

// enricher fans detail-page fetches across a fixed pool of workers and
// restores discovery order on the way out. A failed detail fetch degrades
// only that record; the batch always completes.
type enricher struct {
	fetcher  Fetcher
	retry    *retrier
	workers  int
	metrics  *Metrics
	failures *failureLog

	degraded int64
}

func newEnricher(fetcher Fetcher, retry *retrier, cfg *config.Config, metrics *Metrics, failures *failureLog) *enricher {
	return &enricher{
		fetcher:  fetcher,
		retry:    retry,
		workers:  cfg.Workers,
		metrics:  metrics,
		failures: failures,
	}
}

// Enrich consumes summaries until the channel closes and returns one Book
// per summary, in arrival order. At most `workers` detail fetches are in
// flight at any moment; the unbuffered jobs channel blocks dispatch until
// a worker is free.
func (e *enricher) Enrich(ctx context.Context, summaries <-chan models.BookSummary) []*models.Book {
	jobs := make(chan detailJob)
	results := make(chan detailResult)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- detailResult{index: job.index, book: e.enrichOne(ctx, job.summary)}
			}
		}()
	}

	go func() {
		index := 0
		for summary := range summaries {
			jobs <- detailJob{index: index, summary: summary}
			index++
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	collected := make([]detailResult, 0, 64)
	for result := range results {
		collected = append(collected, result)
	}
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].index < collected[j].index
	})

	books := make([]*models.Book, 0, len(collected))
	for _, result := range collected {
		books = append(books, result.book)
	}
	return books
}

// enrichOne owns the full fetch+parse cycle for a single record.
func (e *enricher) enrichOne(ctx context.Context, summary models.BookSummary) *models.Book {
	e.metrics.IncRequest(phaseDetail)

	doc, err := e.retry.fetch(ctx, e.fetcher, summary.DetailURL)
	if err != nil {
		atomic.AddInt64(&e.degraded, 1)
		e.failures.record(summary.DetailURL, err)
		e.metrics.IncError(errorTypeLabel(err))
		e.metrics.IncDegraded()
		slog.Warn("detail fetch failed, emitting degraded record",
			slog.String("url", summary.DetailURL),
			slog.String("title", summary.Title),
			slog.Any("error", err),
		)
		return models.Merge(summary, models.BookDetails{}, time.Now())
	}

	details := parser.ParseDetails(doc)
	e.metrics.IncRecords()
	return models.Merge(summary, details, time.Now())
}

// Degraded reports how many records were emitted without enrichment.
func (e *enricher) Degraded() int {
	return int(atomic.LoadInt64(&e.degraded))
}
