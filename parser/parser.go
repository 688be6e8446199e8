// Package parser extracts catalogue and detail-page fields from parsed
// documents. Extraction is defensive: a missing or malformed field falls
// back to a default and never aborts the rest of the page.
package parser

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yufuqiang/web-scraper/models"
)

// Sentinels used when a detail page lacks the corresponding element.
const (
	NoDescription   = "No description available."
	UnknownCategory = "Unknown"
	UnknownUPC      = "N/A"
)

// ParseCatalogue extracts the product summaries from one catalogue page
// and the absolute URL of the next page, or "" at the last page.
func ParseCatalogue(doc *goquery.Document, pageURL string) ([]models.BookSummary, string) {
	var summaries []models.BookSummary
	doc.Find("article.product_pod").Each(func(_ int, sel *goquery.Selection) {
		summaries = append(summaries, extractSummary(sel, pageURL))
	})
	return summaries, nextPageURL(doc, pageURL)
}

func extractSummary(sel *goquery.Selection, pageURL string) models.BookSummary {
	link := sel.Find("h3 a")

	title := strings.TrimSpace(link.AttrOr("title", ""))
	if title == "" {
		title = strings.TrimSpace(link.Text())
	}

	availability := NormalizeAvailability(sel.Find("p.instock.availability").Text())
	if availability == "" {
		availability = NormalizeAvailability(sel.Find("p.availability").Text())
	}

	rating := ratingText(sel)

	return models.BookSummary{
		Title:         title,
		Price:         ParsePrice(sel.Find("p.price_color").Text()),
		Availability:  availability,
		Rating:        rating,
		RatingNumeric: RatingToNumeric(rating),
		DetailURL:     detailURL(link.AttrOr("href", ""), pageURL),
	}
}

// ParseDetails extracts the enrichment fields from a product detail page.
// Missing elements fall back to the documented sentinels.
func ParseDetails(doc *goquery.Document) models.BookDetails {
	details := models.BookDetails{
		UPC:         UnknownUPC,
		Category:    UnknownCategory,
		Description: NoDescription,
	}

	if desc := doc.Find("#product_description").NextFiltered("p"); desc.Length() > 0 {
		details.Description = strings.TrimSpace(desc.Text())
	}

	// Category is the third breadcrumb: Home > Books > <category> > <title>.
	if crumbs := doc.Find("ul.breadcrumb li"); crumbs.Length() > 2 {
		details.Category = strings.TrimSpace(crumbs.Eq(2).Text())
	}

	if upc := doc.Find("table.table-striped td").First(); upc.Length() > 0 {
		details.UPC = strings.TrimSpace(upc.Text())
	}

	return details
}

// detailURL resolves a product link against its catalogue page URL. The
// target site omits the catalogue/ path segment in front-page links, so it
// is inserted when neither the href nor the page carries it.
func detailURL(href, pageURL string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if !strings.Contains(href, "catalogue/") && !strings.Contains(pageURL, "catalogue/") {
		href = "catalogue/" + href
	}
	return resolveURL(pageURL, href)
}

func nextPageURL(doc *goquery.Document, pageURL string) string {
	href, ok := doc.Find("li.next a").First().Attr("href")
	if !ok {
		return ""
	}
	return resolveURL(pageURL, strings.TrimSpace(href))
}

func resolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// ParsePrice strips currency symbols and parses the remainder.
// Malformed input yields zero.
func ParsePrice(text string) float64 {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "Â£", "")
	text = strings.ReplaceAll(text, "£", "")
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0
	}
	return value
}

// NormalizeAvailability trims spacing from the availability text.
func NormalizeAvailability(text string) string {
	return strings.TrimSpace(text)
}

// RatingToNumeric converts the textual rating to a numeric scale.
func RatingToNumeric(rating string) int {
	switch strings.TrimSpace(rating) {
	case "Zero":
		return 0
	case "One":
		return 1
	case "Two":
		return 2
	case "Three":
		return 3
	case "Four":
		return 4
	case "Five":
		return 5
	default:
		return 0
	}
}

// ratingText pulls the rating word out of the star-rating class list,
// e.g. "star-rating Three".
func ratingText(sel *goquery.Selection) string {
	class := sel.Find("p.star-rating").AttrOr("class", "")
	parts := strings.Fields(class)
	if len(parts) > 1 {
		return parts[1]
	}
	return ""
}

// QualityIssues reports data-quality signals for a record without
// rejecting it; degraded records are still emitted exactly once.
func QualityIssues(b *models.Book) []string {
	if b == nil {
		return []string{"nil_record"}
	}
	var issues []string
	if strings.TrimSpace(b.Title) == "" {
		issues = append(issues, "missing_title")
	}
	if b.Price == 0 {
		issues = append(issues, "zero_price")
	}
	if strings.TrimSpace(b.URL) == "" {
		issues = append(issues, "missing_url")
	}
	return issues
}
