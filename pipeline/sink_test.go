package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yufuqiang/web-scraper/models"
)

type collectingWriter struct {
	mu    sync.Mutex
	books []*models.Book
	err   error
}

func (cw *collectingWriter) Write(books []*models.Book) error {
	if cw.err != nil {
		return cw.err
	}
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.books = append(cw.books, books...)
	return nil
}

func (cw *collectingWriter) Close() error    { return nil }
func (cw *collectingWriter) Validate() error { return nil }

func testBooks(n int) []*models.Book {
	books := make([]*models.Book, 0, n)
	for i := 1; i <= n; i++ {
		books = append(books, &models.Book{
			Title:     fmt.Sprintf("Book %d", i),
			Price:     float64(i),
			URL:       fmt.Sprintf("http://example.test/catalogue/book-%d/index.html", i),
			ScrapedAt: time.Unix(0, 0),
		})
	}
	return books
}

func TestSinkPreservesOrder(t *testing.T) {
	writer := &collectingWriter{}
	sink, err := NewSink(writer, 100)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	books := testBooks(5)
	if err := sink.Process(books); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(writer.books) != 5 {
		t.Fatalf("written=%d, want 5", len(writer.books))
	}
	for i, book := range writer.books {
		if book.URL != books[i].URL {
			t.Fatalf("writer.books[%d]=%q, want %q", i, book.URL, books[i].URL)
		}
	}
	if sink.Written() != 5 {
		t.Fatalf("Written()=%d, want 5", sink.Written())
	}
}

func TestSinkDropsDuplicateURLs(t *testing.T) {
	writer := &collectingWriter{}
	sink, err := NewSink(writer, 100)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	books := testBooks(3)
	books = append(books, &models.Book{Title: "Book 2 again", Price: 2, URL: books[1].URL})

	if err := sink.Process(books); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(writer.books) != 3 {
		t.Fatalf("written=%d, want 3 (duplicate dropped)", len(writer.books))
	}
	if got := sink.QualitySignals()["duplicate_url"]; got != 1 {
		t.Fatalf("duplicate_url=%d, want 1", got)
	}
}

func TestSinkKeepsDegradedRecords(t *testing.T) {
	writer := &collectingWriter{}
	sink, err := NewSink(writer, 100)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	degraded := &models.Book{Title: "", Price: 0, URL: "http://example.test/b"}
	if err := sink.Process([]*models.Book{degraded}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(writer.books) != 1 {
		t.Fatalf("written=%d, want 1 (degraded records are kept)", len(writer.books))
	}
	signals := sink.QualitySignals()
	if signals["missing_title"] != 1 || signals["zero_price"] != 1 {
		t.Fatalf("signals=%v, want missing_title and zero_price counted", signals)
	}
}

func TestSinkKeepsRecordsWithoutIdentity(t *testing.T) {
	writer := &collectingWriter{}
	sink, err := NewSink(writer, 100)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	// Two parse-defective records without URLs must not collapse into one.
	books := []*models.Book{
		{Title: "A", Price: 1},
		{Title: "B", Price: 2},
	}
	if err := sink.Process(books); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(writer.books) != 2 {
		t.Fatalf("written=%d, want 2", len(writer.books))
	}
}

func TestSinkPropagatesWriterError(t *testing.T) {
	boom := errors.New("disk full")
	sink, err := NewSink(&collectingWriter{err: boom}, 100)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	if err := sink.Process(testBooks(1)); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want wrapped writer error", err)
	}
}

func TestSinkEmptyBatch(t *testing.T) {
	writer := &collectingWriter{}
	sink, err := NewSink(writer, 100)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	if err := sink.Process(nil); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
	if sink.Written() != 0 {
		t.Fatalf("Written()=%d, want 0", sink.Written())
	}
}
