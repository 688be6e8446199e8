// Package models defines data structures for the scraper.
package models

import "time"

// BookSummary is the minimal product data lifted from one catalogue
// listing element. Identity within a run is DetailURL; fields that were
// missing in the markup carry their zero value.
type BookSummary struct {
	Title         string
	Price         float64
	Availability  string
	Rating        string
	RatingNumeric int
	DetailURL     string
}

// BookDetails holds the fields scraped from a product detail page.
// All fields are empty strings when the detail fetch failed.
type BookDetails struct {
	UPC         string
	Category    string
	Description string
}

// Book is a fully enriched record as handed to the record sink.
type Book struct {
	Title         string    `csv:"title" json:"title"`
	Price         float64   `csv:"price" json:"price"`
	Availability  string    `csv:"availability" json:"availability"`
	Rating        string    `csv:"rating" json:"rating"`
	RatingNumeric int       `csv:"rating_numeric" json:"rating_numeric"`
	Category      string    `csv:"category" json:"category"`
	UPC           string    `csv:"upc" json:"upc"`
	Description   string    `csv:"description" json:"description"`
	URL           string    `csv:"url" json:"url"`
	ScrapedAt     time.Time `csv:"scraped_at" json:"scraped_at"`
}

// Merge combines a summary with its detail-page fields into an output
// record. A zero-value BookDetails produces a degraded record.
func Merge(s BookSummary, d BookDetails, at time.Time) *Book {
	return &Book{
		Title:         s.Title,
		Price:         s.Price,
		Availability:  s.Availability,
		Rating:        s.Rating,
		RatingNumeric: s.RatingNumeric,
		Category:      d.Category,
		UPC:           d.UPC,
		Description:   d.Description,
		URL:           s.DetailURL,
		ScrapedAt:     at,
	}
}

// ScrapeResult holds the overall outcome of one scraping run.
type ScrapeResult struct {
	StartTime      time.Time
	EndTime        time.Time
	PagesFetched   int
	SummariesFound int
	RecordsWritten int
	DetailFailures int
	RetryCount     int
	RequestCount   int
	FailedURLs     []string
	ErrorsByType   map[string]int
}
