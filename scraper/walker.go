package scraper

import (
	"context"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/yufuqiang/web-scraper/config"
	"github.com/yufuqiang/web-scraper/models"
	"github.com/yufuqiang/web-scraper/parser"
)

// delayFunc produces the politeness pause between catalogue page fetches.
// Tests substitute a zero-delay implementation.
type delayFunc func() time.Duration

// randomDelay draws uniformly from [min, max].
func randomDelay(min, max time.Duration) delayFunc {
	if max < min {
		max = min
	}
	return func() time.Duration {
		if max == min {
			return min
		}
		return min + time.Duration(rand.Int63n(int64(max-min)))
	}
}

// walker traverses catalogue pages sequentially and streams the summaries
// it finds. Page fetches are intentionally serialized and throttled; each
// Walk call is a fresh traversal from page 1.
type walker struct {
	fetcher  Fetcher
	retry    *retrier
	startURL string
	maxPages int
	delay    delayFunc
	metrics  *Metrics
	failures *failureLog

	pages int64
}

func newWalker(fetcher Fetcher, retry *retrier, cfg *config.Config, metrics *Metrics, failures *failureLog) *walker {
	return &walker{
		fetcher:  fetcher,
		retry:    retry,
		startURL: cfg.BaseURL,
		maxPages: cfg.MaxPages,
		delay:    randomDelay(cfg.MinDelay, cfg.MaxDelay),
		metrics:  metrics,
		failures: failures,
	}
}

// Walk starts a traversal and returns the lazy, finite summary stream.
// The channel closes when maxPages is reached, the last page has no next
// link, or a page fetch fails after retries (partial results are kept).
func (w *walker) Walk(ctx context.Context) <-chan models.BookSummary {
	out := make(chan models.BookSummary)

	go func() {
		defer close(out)

		pageURL := w.startURL
		for page := 1; page <= w.maxPages && pageURL != ""; page++ {
			w.metrics.IncRequest(phaseListing)
			doc, err := w.retry.fetch(ctx, w.fetcher, pageURL)
			if err != nil {
				w.failures.record(pageURL, err)
				w.metrics.IncError(errorTypeLabel(err))
				slog.Error("catalogue page fetch failed, ending traversal",
					slog.String("url", pageURL),
					slog.Int("page", page),
					slog.Any("error", err),
				)
				return
			}
			atomic.AddInt64(&w.pages, 1)
			w.metrics.IncPages()

			summaries, next := parser.ParseCatalogue(doc, pageURL)
			slog.Info("catalogue page parsed",
				slog.String("url", pageURL),
				slog.Int("page", page),
				slog.Int("items", len(summaries)),
			)

			for _, summary := range summaries {
				select {
				case out <- summary:
				case <-ctx.Done():
					return
				}
			}

			pageURL = next
			if pageURL == "" || page == w.maxPages {
				return
			}
			if d := w.delay(); d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Pages reports how many catalogue pages were fetched and parsed.
func (w *walker) Pages() int {
	return int(atomic.LoadInt64(&w.pages))
}
