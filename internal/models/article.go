package models

import (
	"time"
)

// ScoringStatus represents where an article is in the scoring lifecycle
type ScoringStatus string

const (
	ScoringStatusUnscored  ScoringStatus = "unscored"
	ScoringStatusSubmitted ScoringStatus = "submitted"
	ScoringStatusScored    ScoringStatus = "scored"
	ScoringStatusFailed    ScoringStatus = "failed"
)

// Score bounds for the clickbait scale
const (
	MinScore = 0
	MaxScore = 100
)

// Article represents a stored news article. Rows are immutable after insert
// except for the score fields, which only the batch manager writes.
type Article struct {
	ID               string        `json:"id" db:"id"`
	ExternalURL      string        `json:"external_url" db:"external_url"`
	Title            string        `json:"title" db:"title"`
	Content          string        `json:"content" db:"content"`
	AuthorID         string        `json:"author_id" db:"author_id"`
	PublisherName    string        `json:"publisher_name" db:"publisher_name"`
	PublishedAt      time.Time     `json:"published_at" db:"published_at"`
	Score            *int          `json:"score,omitempty" db:"score"`
	ScoreExplanation *string       `json:"score_explanation,omitempty" db:"score_explanation"`
	ScoringStatus    ScoringStatus `json:"scoring_status" db:"scoring_status"`
	BatchJobID       *string       `json:"batch_job_id,omitempty" db:"batch_job_id"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// ValidScore reports whether a score fits the clickbait scale
func ValidScore(score int) bool {
	return score >= MinScore && score <= MaxScore
}

// RawRecord is one record fetched from the news search provider
type RawRecord struct {
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	URL              string    `json:"url"`
	PublishedAt      time.Time `json:"published_at"`
	AuthorName       string    `json:"author_name"`
	PublisherName    string    `json:"publisher_name"`
	ExternalAuthorID string    `json:"external_author_id,omitempty"`
}

// IngestOutcome classifies the result of ingesting one raw record
type IngestOutcome string

const (
	IngestInserted IngestOutcome = "inserted"
	IngestSkipped  IngestOutcome = "skipped"
	IngestRejected IngestOutcome = "rejected"
)

// IngestResult is the per-record outcome of an ingest call
type IngestResult struct {
	Outcome   IngestOutcome `json:"outcome"`
	Reason    string        `json:"reason,omitempty"`
	ArticleID string        `json:"article_id,omitempty"`
}

// HighScoreArticle is one entry in a high-score report, ordered by score
type HighScoreArticle struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	ExternalURL   string    `json:"external_url"`
	PublisherName string    `json:"publisher_name"`
	Score         int       `json:"score"`
	Explanation   string    `json:"explanation,omitempty"`
	PublishedAt   time.Time `json:"published_at"`
}

// HighScoreReport summarizes the most clickbait-heavy articles over a
// recent window: totals per publisher, per bait keyword, and the top
// offenders by score.
type HighScoreReport struct {
	Threshold       int                `json:"threshold"`
	Days            int                `json:"days"`
	TotalArticles   int                `json:"total_articles"`
	PublisherCounts map[string]int     `json:"publisher_counts"`
	KeywordCounts   map[string]int     `json:"keyword_counts,omitempty"`
	TopArticles     []HighScoreArticle `json:"top_articles"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// IngestReport summarizes an ingestion run
type IngestReport struct {
	Keywords   []string  `json:"keywords"`
	Fetched    int       `json:"fetched"`
	Inserted   int       `json:"inserted"`
	Skipped    int       `json:"skipped"`
	Rejected   int       `json:"rejected"`
	Failed     int       `json:"failed"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
