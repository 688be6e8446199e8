package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/yufuqiang/web-scraper/config"
)

// Fetcher retrieves a single page and hands back a parsed document.
// Implementations classify failures into the typed error taxonomy and do
// not retry; retry policy belongs to the caller.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*goquery.Document, error)
}

// CollyFetcher issues synchronous GETs through a colly collector. The base
// collector carries the user agent, timeout and transport; each Fetch
// clones it so response callbacks stay private to that request while the
// HTTP backend (connection pool, visited store) is shared.
type CollyFetcher struct {
	base    *colly.Collector
	metrics *Metrics

	requestCount int64
}

// NewFetcher builds a fetcher restricted to the host of cfg.BaseURL.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*CollyFetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &CollyFetcher{base: collector, metrics: metrics}, nil
}

// WithTransport swaps the HTTP transport; tests install mock transports.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.base.WithTransport(rt)
}

// Requests reports how many fetches were attempted.
func (f *CollyFetcher) Requests() int {
	return int(atomic.LoadInt64(&f.requestCount))
}

// Fetch performs one GET and parses the body into a document. Transport
// failures and non-2xx responses come back as classified errors.
func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atomic.AddInt64(&f.requestCount, 1)

	collector := f.base.Clone()

	var (
		doc        *goquery.Document
		statusCode int
		fetchErr   error
	)
	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			fetchErr = fmt.Errorf("parse document: %w", err)
			return
		}
		doc = parsed
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	start := time.Now()
	visitErr := collector.Visit(pageURL)
	f.metrics.ObserveDuration(time.Since(start))

	if fetchErr == nil {
		fetchErr = visitErr
	}
	if fetchErr != nil {
		return nil, classifyError(fetchErr, statusCode)
	}
	if doc == nil {
		return nil, classifyError(fmt.Errorf("empty response"), statusCode)
	}
	return doc, nil
}
