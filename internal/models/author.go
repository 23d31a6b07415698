package models

import (
	"time"
)

// Author represents a journalist. The aggregate fields (ArticleCount,
// AverageScore, MaxScore) are derived from the articles table and are
// written only by the reconciliation engine.
type Author struct {
	ID               string    `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	PublisherName    string    `json:"publisher_name" db:"publisher_name"`
	ExternalAuthorID string    `json:"external_author_id,omitempty" db:"external_author_id"`
	ArticleCount     int       `json:"article_count" db:"article_count"`
	AverageScore     float64   `json:"average_score" db:"average_score"`
	MaxScore         int       `json:"max_score" db:"max_score"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// AuthorAggregates holds the authoritative values recomputed from articles
type AuthorAggregates struct {
	ArticleCount int     `json:"article_count"`
	AverageScore float64 `json:"average_score"`
	MaxScore     int     `json:"max_score"`
}

// ReconcileMode selects how aggressively reconciliation writes
type ReconcileMode string

const (
	// ReconcileFullRebuild recomputes and overwrites every author unconditionally
	ReconcileFullRebuild ReconcileMode = "full"
	// ReconcileIncrementalFix writes only authors whose stored aggregates drifted
	ReconcileIncrementalFix ReconcileMode = "incremental"
)

// AuthorDelta records one corrected author in a reconciliation report
type AuthorDelta struct {
	AuthorID string           `json:"author_id"`
	Name     string           `json:"name"`
	Before   AuthorAggregates `json:"before"`
	After    AuthorAggregates `json:"after"`
}

// ReconciliationReport summarizes a reconciliation run
type ReconciliationReport struct {
	Mode             ReconcileMode `json:"mode"`
	AuthorsChecked   int           `json:"authors_checked"`
	AuthorsCorrected int           `json:"authors_corrected"`
	AuthorsFailed    int           `json:"authors_failed"`
	Deltas           []AuthorDelta `json:"deltas,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
}
