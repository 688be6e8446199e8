package scraper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/yufuqiang/web-scraper/config"
)

// retrier re-issues transient fetch failures with capped exponential
// backoff. It lives with the callers of Fetcher so each call site keeps
// control over its own policy.
type retrier struct {
	max        int
	backoff    time.Duration
	backoffMax time.Duration
	metrics    *Metrics

	total int64
}

func newRetrier(cfg *config.Config, metrics *Metrics) *retrier {
	return &retrier{
		max:        cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		backoffMax: cfg.RetryBackoffMax,
		metrics:    metrics,
	}
}

// fetch issues the request and retries transient failures up to the
// configured limit. Non-transient failures return immediately.
func (r *retrier) fetch(ctx context.Context, f Fetcher, pageURL string) (*goquery.Document, error) {
	doc, err := f.Fetch(ctx, pageURL)
	for attempt := 1; err != nil && attempt <= r.max && transientError(err); attempt++ {
		atomic.AddInt64(&r.total, 1)
		r.metrics.IncRetries()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.delay(attempt)):
		}
		doc, err = f.Fetch(ctx, pageURL)
	}
	return doc, err
}

func (r *retrier) delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := r.backoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if r.backoffMax > 0 && delay > r.backoffMax {
		delay = r.backoffMax
	}
	return delay
}

// TotalRetries reports how many retries were performed.
func (r *retrier) TotalRetries() int {
	return int(atomic.LoadInt64(&r.total))
}
