package provider

import (
	"context"
	"time"

	"github.com/clickbait-pipeline/internal/models"
)

// BatchProviderStatus is the scoring provider's view of a batch
type BatchProviderStatus string

const (
	StatusPending BatchProviderStatus = "pending"
	StatusRunning BatchProviderStatus = "running"
	StatusDone    BatchProviderStatus = "done"
	StatusError   BatchProviderStatus = "error"
)

// ScoringRequest is one article handed to the scorer
type ScoringRequest struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}

// ScoringResult is one per-article outcome from a finished batch.
// Failed results carry FailureReason instead of a score; both variants are
// validated at this boundary before they reach the state machine.
type ScoringResult struct {
	ArticleID     string `json:"article_id"`
	Score         int    `json:"score"`
	Explanation   string `json:"explanation"`
	Failed        bool   `json:"failed"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// ScoringProvider is the external batch scoring service
type ScoringProvider interface {
	SubmitBatch(ctx context.Context, requests []ScoringRequest) (string, error)
	GetStatus(ctx context.Context, providerBatchID string) (BatchProviderStatus, error)
	FetchResults(ctx context.Context, providerBatchID string) ([]ScoringResult, error)
}

// SearchProvider is the external news search service
type SearchProvider interface {
	Search(ctx context.Context, keyword string, from, to time.Time, limit int) ([]models.RawRecord, error)
}
