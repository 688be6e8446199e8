package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/yufuqiang/web-scraper/config"
)

func newTestFetcher(t *testing.T, transport http.RoundTripper) *CollyFetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test/"
	fetcher, err := NewFetcher(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	fetcher.WithTransport(transport)
	return fetcher
}

func TestFetcherReturnsDocument(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/catalogue/page-1.html",
		htmlResponder(`<html><body><h1>Catalogue</h1></body></html>`))

	fetcher := newTestFetcher(t, transport)

	doc, err := fetcher.Fetch(context.Background(), "http://example.test/catalogue/page-1.html")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := doc.Find("h1").Text(); got != "Catalogue" {
		t.Fatalf("h1=%q, want Catalogue", got)
	}
	if fetcher.Requests() != 1 {
		t.Fatalf("requests=%d, want 1", fetcher.Requests())
	}
}

func TestFetcherClassifiesStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusInternalServerError, expected: "http_error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", "http://example.test/page.html",
				httpmock.NewStringResponder(tt.status, ""))

			fetcher := newTestFetcher(t, transport)

			_, err := fetcher.Fetch(context.Background(), "http://example.test/page.html")
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if got := errorTypeLabel(err); got != tt.expected {
				t.Fatalf("label=%q, want %q (err=%v)", got, tt.expected, err)
			}
			var status ErrHTTPStatus
			if !errors.As(err, &status) || status.Code != tt.status {
				t.Fatalf("err=%v, want ErrHTTPStatus with code %d", err, tt.status)
			}
		})
	}
}

func TestFetcherClassifiesConnectionError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/page.html",
		httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

	fetcher := newTestFetcher(t, transport)

	_, err := fetcher.Fetch(context.Background(), "http://example.test/page.html")
	if err == nil {
		t.Fatal("expected connection error")
	}
	if got := errorTypeLabel(err); got != "connection" {
		t.Fatalf("label=%q, want connection (err=%v)", got, err)
	}
}

func TestFetcherHonoursCancelledContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	fetcher := newTestFetcher(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fetcher.Fetch(ctx, "http://example.test/"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if fetcher.Requests() != 0 {
		t.Fatalf("requests=%d, want 0 after cancellation", fetcher.Requests())
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: errors.New("Forbidden"), statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: errors.New("Not Found"), statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: errors.New("Too Many Requests"), statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: errors.New("Internal Server Error"), statusCode: http.StatusInternalServerError, expected: "http_error"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestTransientError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "timeout", err: ErrTimeout{Err: context.DeadlineExceeded}, transient: true},
		{name: "connection", err: ErrConnection{Err: errors.New("refused")}, transient: true},
		{name: "rate limited", err: ErrHTTPStatus{Code: http.StatusTooManyRequests}, transient: true},
		{name: "server error", err: ErrHTTPStatus{Code: http.StatusBadGateway}, transient: true},
		{name: "not found", err: ErrHTTPStatus{Code: http.StatusNotFound}, transient: false},
		{name: "forbidden", err: ErrHTTPStatus{Code: http.StatusForbidden}, transient: false},
		{name: "plain error", err: errors.New("boom"), transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transientError(tt.err); got != tt.transient {
				t.Fatalf("transientError(%v) = %v, want %v", tt.err, got, tt.transient)
			}
		})
	}
}
