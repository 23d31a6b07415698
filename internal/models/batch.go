package models

import (
	"time"
)

// BatchState represents the status of a scoring batch job
type BatchState string

const (
	BatchStatePending    BatchState = "pending"
	BatchStateSubmitted  BatchState = "submitted"
	BatchStateInProgress BatchState = "in_progress"
	BatchStateCompleted  BatchState = "completed"
	BatchStateFailed     BatchState = "failed"
	BatchStateExpired    BatchState = "expired"
)

// Terminal reports whether a batch state is final
func (s BatchState) Terminal() bool {
	switch s {
	case BatchStateCompleted, BatchStateFailed, BatchStateExpired:
		return true
	}
	return false
}

// BatchJob groups articles into one provider-side scoring unit.
// MemberArticleIDs is fixed at creation and never mutated.
type BatchJob struct {
	ID               string     `json:"id" db:"id"`
	ProviderBatchID  string     `json:"provider_batch_id,omitempty" db:"provider_batch_id"`
	State            BatchState `json:"state" db:"state"`
	MemberArticleIDs []string   `json:"member_article_ids" db:"-"`
	RetryCount       int        `json:"retry_count" db:"retry_count"`
	LastError        string     `json:"last_error,omitempty" db:"last_error"`
	NextAttemptAt    *time.Time `json:"next_attempt_at,omitempty" db:"next_attempt_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at" db:"expires_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the job passed its TTL at the given instant
func (j *BatchJob) Expired(now time.Time) bool {
	return now.After(j.ExpiresAt)
}

// BatchJobStatus is the API response for a batch job, with member outcomes
type BatchJobStatus struct {
	BatchJob
	MemberCount int `json:"member_count"`
	ScoredCount int `json:"scored_count"`
	FailedCount int `json:"failed_count"`
}

// CycleReport summarizes one form/submit/poll cycle
type CycleReport struct {
	Polled     int        `json:"polled"`
	Completed  int        `json:"completed"`
	Failed     int        `json:"failed"`
	Expired    int        `json:"expired"`
	Submitted  int        `json:"submitted"`
	FormedJob  string     `json:"formed_job,omitempty"`
	FormedSize int        `json:"formed_size"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Errors     []string   `json:"errors,omitempty"`
}

// StatsSummary is the operator-facing snapshot of pipeline totals
type StatsSummary struct {
	TotalArticles    int       `json:"total_articles"`
	ScoredArticles   int       `json:"scored_articles"`
	PendingArticles  int       `json:"pending_articles"`
	FailedArticles   int       `json:"failed_articles"`
	TotalAuthors     int       `json:"total_authors"`
	ActiveBatchJobs  int       `json:"active_batch_jobs"`
	GeneratedAt      time.Time `json:"generated_at"`
}
