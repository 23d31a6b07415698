package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/clickbait-pipeline/internal/config"
	"github.com/clickbait-pipeline/internal/models"
)

// ValidationError describes why a raw record was rejected before persistence
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// anonymousNames are author bylines that carry no identity; articles with
// these collapse into one synthetic author per publisher.
var anonymousNames = map[string]bool{
	"":   true,
	"익명":  true,
	"기자":  true,
}

// Normalizer cleans and validates raw provider records. Length rules are
// applied after HTML stripping, so they cannot be bypassed by markup.
type Normalizer struct {
	minTitleLength     int
	maxContentLength   int
	allowedURLPrefixes []string
}

// NewNormalizer creates a Normalizer from ingestion config
func NewNormalizer(cfg config.IngestConfig) *Normalizer {
	return &Normalizer{
		minTitleLength:     cfg.MinTitleLength,
		maxContentLength:   cfg.MaxContentLength,
		allowedURLPrefixes: cfg.AllowedURLPrefixes,
	}
}

// Prepare normalizes a raw record in place and validates it.
// It returns a *ValidationError when the record must be rejected.
func (n *Normalizer) Prepare(rec models.RawRecord) (models.RawRecord, error) {
	rec.URL = strings.TrimSpace(rec.URL)
	if !n.acceptedURL(rec.URL) {
		return rec, &ValidationError{Field: "url", Message: "url does not match an accepted source domain"}
	}

	rec.Title = StripHTML(rec.Title)
	if utf8.RuneCountInString(rec.Title) < n.minTitleLength {
		return rec, &ValidationError{
			Field:   "title",
			Message: fmt.Sprintf("title must be at least %d characters", n.minTitleLength),
		}
	}

	// Overlong content is truncated, never rejected
	rec.Content = truncateRunes(StripHTML(rec.Content), n.maxContentLength)

	rec.AuthorName, rec.PublisherName = NormalizeAuthor(rec.AuthorName, rec.PublisherName)
	if rec.PublisherName == "" {
		return rec, &ValidationError{Field: "publisher_name", Message: "publisher name is required"}
	}
	if rec.PublishedAt.IsZero() {
		return rec, &ValidationError{Field: "published_at", Message: "published timestamp is required"}
	}

	return rec, nil
}

func (n *Normalizer) acceptedURL(url string) bool {
	for _, prefix := range n.allowedURLPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// StripHTML removes tags and decodes entities, collapsing whitespace runs
// to single spaces.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseWhitespace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseWhitespace(s)
	}
	return collapseWhitespace(doc.Text())
}

// NormalizeAuthor trims the byline and maps anonymous bylines to a
// per-publisher synthetic author.
func NormalizeAuthor(name, publisher string) (string, string) {
	name = strings.TrimSpace(name)
	publisher = strings.TrimSpace(publisher)
	if anonymousNames[name] {
		name = "익명기자_" + publisher
	}
	return name, publisher
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most max runes, not bytes, so multibyte
// characters are never split.
func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
