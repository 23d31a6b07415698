package repository

import (
	"context"
	"errors"
	"time"

	"github.com/clickbait-pipeline/internal/database"
	"github.com/clickbait-pipeline/internal/models"
	"github.com/lib/pq"
)

// ArticleRepository defines the interface for article data operations.
// Score-related writes are conditional on the current scoring status so
// concurrent workers converge instead of clobbering each other.
type ArticleRepository interface {
	Insert(ctx context.Context, article *models.Article) error
	GetByID(ctx context.Context, id string) (*models.Article, error)
	GetByExternalURL(ctx context.Context, url string) (*models.Article, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.Article, error)
	ApplyScore(ctx context.Context, articleID, jobID string, score int, explanation string) (bool, error)
	MarkFailed(ctx context.Context, articleID, jobID string) (bool, error)
	ReleaseSubmitted(ctx context.Context, jobID string) (int, error)
	RequeueFailed(ctx context.Context, ids []string) (int, error)
	CountByStatus(ctx context.Context) (map[models.ScoringStatus]int, error)
	StatusCountsForIDs(ctx context.Context, ids []string) (map[models.ScoringStatus]int, error)
	AggregatesForAuthor(ctx context.Context, authorID string) (models.AuthorAggregates, error)
	ListHighScores(ctx context.Context, minScore int, since time.Time) ([]*models.Article, error)
}

// AuthorRepository defines the interface for author data operations
type AuthorRepository interface {
	Insert(ctx context.Context, author *models.Author) error
	GetByID(ctx context.Context, id string) (*models.Author, error)
	GetByNamePublisher(ctx context.Context, name, publisher string) (*models.Author, error)
	ListIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	UpdateAggregates(ctx context.Context, id string, agg models.AuthorAggregates) error
}

// BatchJobRepository defines the interface for batch job data operations
type BatchJobRepository interface {
	FormBatch(ctx context.Context, job *models.BatchJob, maxSize int) ([]string, error)
	GetByID(ctx context.Context, id string) (*models.BatchJob, error)
	GetActive(ctx context.Context) ([]*models.BatchJob, error)
	CountActive(ctx context.Context) (int, error)
	MarkSubmitted(ctx context.Context, id, providerBatchID string) (bool, error)
	MarkInProgress(ctx context.Context, id string) (bool, error)
	MarkTerminal(ctx context.Context, id string, to models.BatchState, lastError string) (bool, error)
	RecordRetry(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, lastError string) (bool, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	Article  ArticleRepository
	Author   AuthorRepository
	BatchJob BatchJobRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		Article:  NewArticleRepo(db),
		Author:   NewAuthorRepo(db),
		BatchJob: NewBatchJobRepo(db),
	}
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, the store-level signal for a lost insert race.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
