// Package pipeline persists enriched records. The sink checks data
// quality, de-duplicates by detail URL and hands the surviving records to
// an OutputWriter in discovery order, one batch per completed run.
package pipeline

import (
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yufuqiang/web-scraper/models"
	"github.com/yufuqiang/web-scraper/parser"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(books []*models.Book) error
	Close() error
	Validate() error
}

// Sink implements the record sink over an OutputWriter.
type Sink struct {
	writer OutputWriter
	seen   *lru.Cache[string, struct{}]

	mu      sync.Mutex
	written int
	quality map[string]int
}

// NewSink builds a sink whose duplicate-detection window holds up to
// dedupeSize detail URLs.
func NewSink(writer OutputWriter, dedupeSize int) (*Sink, error) {
	if dedupeSize <= 0 {
		dedupeSize = 1024
	}
	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Sink{
		writer:  writer,
		seen:    seen,
		quality: make(map[string]int),
	}, nil
}

// Process writes records in the order received. Duplicate detail URLs are
// dropped so every discovered summary appears exactly once; degraded or
// defaulted records are counted as quality signals but still written.
func (s *Sink) Process(books []*models.Book) error {
	kept := make([]*models.Book, 0, len(books))
	for _, book := range books {
		if book == nil {
			continue
		}
		for _, issue := range parser.QualityIssues(book) {
			s.count(issue)
		}
		if book.URL != "" {
			if _, dup := s.seen.Get(book.URL); dup {
				s.count("duplicate_url")
				slog.Warn("duplicate detail URL dropped", slog.String("url", book.URL))
				continue
			}
			s.seen.Add(book.URL, struct{}{})
		}
		kept = append(kept, book)
	}

	if len(kept) == 0 {
		slog.Warn("no records to write")
		return nil
	}

	if err := s.writer.Write(kept); err != nil {
		return fmt.Errorf("write records: %w", err)
	}

	s.mu.Lock()
	s.written += len(kept)
	s.mu.Unlock()

	slog.Info("records written", slog.Int("count", len(kept)))
	return nil
}

// Written reports how many records reached the writer.
func (s *Sink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// QualitySignals returns a snapshot of the data-quality counters.
func (s *Sink) QualitySignals() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.quality))
	for k, v := range s.quality {
		out[k] = v
	}
	return out
}

func (s *Sink) count(kind string) {
	s.mu.Lock()
	s.quality[kind]++
	s.mu.Unlock()
}
