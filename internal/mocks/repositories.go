package mocks

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/clickbait-pipeline/internal/models"
	"github.com/lib/pq"
)

// uniqueViolation mimics the Postgres error the real repos surface on a
// lost insert race
func uniqueViolation() error {
	return &pq.Error{Code: "23505"}
}

// MockArticleRepository is an in-memory implementation of ArticleRepository
type MockArticleRepository struct {
	mu          sync.Mutex
	Articles    map[string]*models.Article
	ByURL       map[string]*models.Article
	order       []string
	InsertError error
	UpdateError error
}

func NewMockArticleRepository() *MockArticleRepository {
	return &MockArticleRepository{
		Articles: make(map[string]*models.Article),
		ByURL:    make(map[string]*models.Article),
	}
}

func (m *MockArticleRepository) Insert(ctx context.Context, article *models.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertError != nil {
		return m.InsertError
	}
	if _, exists := m.ByURL[article.ExternalURL]; exists {
		return uniqueViolation()
	}
	m.Articles[article.ID] = article
	m.ByURL[article.ExternalURL] = article
	m.order = append(m.order, article.ID)
	return nil
}

func (m *MockArticleRepository) GetByID(ctx context.Context, id string) (*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Articles[id], nil
}

func (m *MockArticleRepository) GetByExternalURL(ctx context.Context, url string) (*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ByURL[url], nil
}

func (m *MockArticleRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var articles []*models.Article
	for _, id := range m.order {
		if wanted[id] {
			articles = append(articles, m.Articles[id])
		}
	}
	return articles, nil
}

func (m *MockArticleRepository) ApplyScore(ctx context.Context, articleID, jobID string, score int, explanation string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	article := m.Articles[articleID]
	if article == nil || article.ScoringStatus != models.ScoringStatusSubmitted ||
		article.BatchJobID == nil || *article.BatchJobID != jobID {
		return false, nil
	}
	s := score
	e := explanation
	article.Score = &s
	article.ScoreExplanation = &e
	article.ScoringStatus = models.ScoringStatusScored
	article.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockArticleRepository) MarkFailed(ctx context.Context, articleID, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	article := m.Articles[articleID]
	if article == nil || article.ScoringStatus != models.ScoringStatusSubmitted ||
		article.BatchJobID == nil || *article.BatchJobID != jobID {
		return false, nil
	}
	article.ScoringStatus = models.ScoringStatusFailed
	article.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockArticleRepository) ReleaseSubmitted(ctx context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateError != nil {
		return 0, m.UpdateError
	}
	released := 0
	for _, article := range m.Articles {
		if article.ScoringStatus == models.ScoringStatusSubmitted &&
			article.BatchJobID != nil && *article.BatchJobID == jobID {
			article.ScoringStatus = models.ScoringStatusUnscored
			article.BatchJobID = nil
			released++
		}
	}
	return released, nil
}

func (m *MockArticleRepository) RequeueFailed(ctx context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	requeued := 0
	for _, id := range ids {
		article := m.Articles[id]
		if article == nil || article.ScoringStatus != models.ScoringStatusFailed {
			continue
		}
		article.ScoringStatus = models.ScoringStatusUnscored
		article.Score = nil
		article.ScoreExplanation = nil
		article.BatchJobID = nil
		requeued++
	}
	return requeued, nil
}

func (m *MockArticleRepository) CountByStatus(ctx context.Context) (map[models.ScoringStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[models.ScoringStatus]int)
	for _, article := range m.Articles {
		counts[article.ScoringStatus]++
	}
	return counts, nil
}

func (m *MockArticleRepository) StatusCountsForIDs(ctx context.Context, ids []string) (map[models.ScoringStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[models.ScoringStatus]int)
	for _, id := range ids {
		if article := m.Articles[id]; article != nil {
			counts[article.ScoringStatus]++
		}
	}
	return counts, nil
}

func (m *MockArticleRepository) AggregatesForAuthor(ctx context.Context, authorID string) (models.AuthorAggregates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var agg models.AuthorAggregates
	var sum, scored int
	for _, article := range m.Articles {
		if article.AuthorID != authorID {
			continue
		}
		agg.ArticleCount++
		if article.ScoringStatus == models.ScoringStatusScored && article.Score != nil {
			scored++
			sum += *article.Score
			if *article.Score > agg.MaxScore {
				agg.MaxScore = *article.Score
			}
		}
	}
	if scored > 0 {
		agg.AverageScore = math.Round(float64(sum)/float64(scored)*100) / 100
	}
	return agg, nil
}

func (m *MockArticleRepository) ListHighScores(ctx context.Context, minScore int, since time.Time) ([]*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var articles []*models.Article
	for _, id := range m.order {
		article := m.Articles[id]
		if article.ScoringStatus != models.ScoringStatusScored || article.Score == nil {
			continue
		}
		if *article.Score < minScore || article.PublishedAt.Before(since) {
			continue
		}
		articles = append(articles, article)
	}
	sort.SliceStable(articles, func(i, j int) bool {
		return *articles[i].Score > *articles[j].Score
	})
	return articles, nil
}

// claimUnscored marks up to maxSize unscored articles as submitted members
// of jobID, oldest first, and returns their IDs. Used by the mock batch repo
// to mirror the real FormBatch transaction.
func (m *MockArticleRepository) claimUnscored(jobID string, maxSize int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var claimed []string
	for _, id := range m.order {
		if len(claimed) >= maxSize {
			break
		}
		article := m.Articles[id]
		if article.ScoringStatus != models.ScoringStatusUnscored {
			continue
		}
		j := jobID
		article.ScoringStatus = models.ScoringStatusSubmitted
		article.BatchJobID = &j
		claimed = append(claimed, id)
	}
	return claimed
}

// MockAuthorRepository is an in-memory implementation of AuthorRepository
type MockAuthorRepository struct {
	mu          sync.Mutex
	Authors     map[string]*models.Author
	byKey       map[string]*models.Author
	order       []string
	InsertError error
	UpdateError error
	GetError    error
}

func NewMockAuthorRepository() *MockAuthorRepository {
	return &MockAuthorRepository{
		Authors: make(map[string]*models.Author),
		byKey:   make(map[string]*models.Author),
	}
}

func authorKey(name, publisher string) string {
	return name + "\x00" + publisher
}

func (m *MockAuthorRepository) Insert(ctx context.Context, author *models.Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertError != nil {
		return m.InsertError
	}
	key := authorKey(author.Name, author.PublisherName)
	if _, exists := m.byKey[key]; exists {
		return uniqueViolation()
	}
	m.Authors[author.ID] = author
	m.byKey[key] = author
	m.order = append(m.order, author.ID)
	return nil
}

func (m *MockAuthorRepository) GetByID(ctx context.Context, id string) (*models.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	return m.Authors[id], nil
}

func (m *MockAuthorRepository) GetByNamePublisher(ctx context.Context, name, publisher string) (*models.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[authorKey(name, publisher)], nil
}

func (m *MockAuthorRepository) ListIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids, nil
}

func (m *MockAuthorRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Authors), nil
}

func (m *MockAuthorRepository) UpdateAggregates(ctx context.Context, id string, agg models.AuthorAggregates) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateError != nil {
		return m.UpdateError
	}
	author := m.Authors[id]
	if author == nil {
		return nil
	}
	author.ArticleCount = agg.ArticleCount
	author.AverageScore = agg.AverageScore
	author.MaxScore = agg.MaxScore
	author.UpdatedAt = time.Now()
	return nil
}

// MockBatchJobRepository is an in-memory implementation of BatchJobRepository.
// It shares the article mock so FormBatch mirrors the real single-transaction
// claim.
type MockBatchJobRepository struct {
	mu            sync.Mutex
	Jobs          map[string]*models.BatchJob
	order         []string
	articles      *MockArticleRepository
	FormBatchErr  error
	TransitionErr error
}

func NewMockBatchJobRepository(articles *MockArticleRepository) *MockBatchJobRepository {
	return &MockBatchJobRepository{
		Jobs:     make(map[string]*models.BatchJob),
		articles: articles,
	}
}

func (m *MockBatchJobRepository) FormBatch(ctx context.Context, job *models.BatchJob, maxSize int) ([]string, error) {
	if m.FormBatchErr != nil {
		return nil, m.FormBatchErr
	}

	memberIDs := m.articles.claimUnscored(job.ID, maxSize)
	if len(memberIDs) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *job
	stored.MemberArticleIDs = append([]string(nil), memberIDs...)
	m.Jobs[job.ID] = &stored
	m.order = append(m.order, job.ID)
	return memberIDs, nil
}

func (m *MockBatchJobRepository) GetByID(ctx context.Context, id string) (*models.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := m.Jobs[id]
	if job == nil {
		return nil, nil
	}
	copied := *job
	copied.MemberArticleIDs = append([]string(nil), job.MemberArticleIDs...)
	return &copied, nil
}

func (m *MockBatchJobRepository) GetActive(ctx context.Context) ([]*models.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []*models.BatchJob
	for _, id := range m.order {
		job := m.Jobs[id]
		if job.State.Terminal() {
			continue
		}
		copied := *job
		copied.MemberArticleIDs = append([]string(nil), job.MemberArticleIDs...)
		jobs = append(jobs, &copied)
	}
	return jobs, nil
}

func (m *MockBatchJobRepository) CountActive(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, job := range m.Jobs {
		if !job.State.Terminal() {
			count++
		}
	}
	return count, nil
}

func (m *MockBatchJobRepository) MarkSubmitted(ctx context.Context, id, providerBatchID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.TransitionErr != nil {
		return false, m.TransitionErr
	}
	job := m.Jobs[id]
	if job == nil || job.State != models.BatchStatePending {
		return false, nil
	}
	job.State = models.BatchStateSubmitted
	job.ProviderBatchID = providerBatchID
	job.NextAttemptAt = nil
	job.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockBatchJobRepository) MarkInProgress(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.TransitionErr != nil {
		return false, m.TransitionErr
	}
	job := m.Jobs[id]
	if job == nil || job.State != models.BatchStateSubmitted {
		return false, nil
	}
	job.State = models.BatchStateInProgress
	job.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockBatchJobRepository) MarkTerminal(ctx context.Context, id string, to models.BatchState, lastError string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.TransitionErr != nil {
		return false, m.TransitionErr
	}
	job := m.Jobs[id]
	if job == nil || job.State.Terminal() {
		return false, nil
	}
	job.State = to
	job.LastError = lastError
	job.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockBatchJobRepository) RecordRetry(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, lastError string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.TransitionErr != nil {
		return false, m.TransitionErr
	}
	job := m.Jobs[id]
	if job == nil || job.State != models.BatchStatePending {
		return false, nil
	}
	job.RetryCount = retryCount
	job.NextAttemptAt = &nextAttemptAt
	job.LastError = lastError
	job.UpdatedAt = time.Now()
	return true, nil
}
