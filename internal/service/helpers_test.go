package service_test

import (
	"context"
	"fmt"
	"time"

	"github.com/clickbait-pipeline/internal/config"
	"github.com/clickbait-pipeline/internal/mocks"
	"github.com/clickbait-pipeline/internal/models"
	"github.com/clickbait-pipeline/internal/repository"
	"github.com/clickbait-pipeline/internal/service"
	"github.com/rs/zerolog"
)

// testEnv bundles services wired against in-memory repositories and fake
// providers
type testEnv struct {
	services *service.Services
	articles *mocks.MockArticleRepository
	authors  *mocks.MockAuthorRepository
	jobs     *mocks.MockBatchJobRepository
	scorer   *mocks.MockScoringProvider
	search   *mocks.MockSearchProvider
	cfg      *config.Config
}

func newTestEnv() *testEnv {
	articles := mocks.NewMockArticleRepository()
	authors := mocks.NewMockAuthorRepository()
	jobs := mocks.NewMockBatchJobRepository(articles)

	repos := &repository.Repositories{
		Article:  articles,
		Author:   authors,
		BatchJob: jobs,
	}

	cfg := &config.Config{
		Ingest: config.IngestConfig{
			AllowedURLPrefixes: []string{"https://n.news.naver.com", "https://m.entertain.naver.com"},
			Keywords:           []string{"논란"},
			MinTitleLength:     9,
			MaxContentLength:   700,
			MaxPerKeyword:      100,
		},
		Batch: config.BatchConfig{
			MaxSize:       10,
			MaxRetries:    3,
			TTL:           24 * time.Hour,
			RetryBackoff:  time.Minute,
			CycleInterval: time.Minute,
			PollWorkers:   2,
		},
		Reconcile: config.ReconcileConfig{
			AverageEpsilon: 0.01,
		},
		Stats: config.StatsConfig{
			HighScoreThreshold: 80,
			HighScoreDays:      7,
		},
	}

	scorer := mocks.NewMockScoringProvider()
	search := mocks.NewMockSearchProvider()

	return &testEnv{
		services: service.NewServices(repos, cfg, search, scorer, zerolog.Nop()),
		articles: articles,
		authors:  authors,
		jobs:     jobs,
		scorer:   scorer,
		search:   search,
		cfg:      cfg,
	}
}

// seedAuthor inserts an author directly into the mock store
func (e *testEnv) seedAuthor(id, name string) *models.Author {
	author := &models.Author{
		ID:            id,
		Name:          name,
		PublisherName: "Daily News",
		CreatedAt:     time.Now(),
	}
	e.authors.Insert(context.Background(), author)
	return author
}

// seedArticle inserts an unscored article directly into the mock store
func (e *testEnv) seedArticle(id, authorID string) *models.Article {
	article := &models.Article{
		ID:            id,
		ExternalURL:   fmt.Sprintf("https://n.news.naver.com/article/%s", id),
		Title:         "A headline long enough to pass",
		Content:       "Body text for " + id,
		AuthorID:      authorID,
		PublisherName: "Daily News",
		PublishedAt:   time.Now().Add(-time.Hour),
		ScoringStatus: models.ScoringStatusUnscored,
		CreatedAt:     time.Now(),
	}
	e.articles.Insert(context.Background(), article)
	return article
}

// rawRecord builds a valid searchable record for ingestion tests
func rawRecord(url string) models.RawRecord {
	return models.RawRecord{
		Title:         "A headline long enough to pass",
		Content:       "Some body text describing the event in detail.",
		URL:           url,
		PublishedAt:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		AuthorName:    "Kim Reporter",
		PublisherName: "Daily News",
	}
}
