package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clickbait-pipeline/internal/mocks"
	"github.com/clickbait-pipeline/internal/models"
	"github.com/clickbait-pipeline/internal/repository"
	"github.com/clickbait-pipeline/internal/service"
	"github.com/rs/zerolog"
)

func TestIngest_InsertThenSkip(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	rec := rawRecord("https://n.news.naver.com/article/001/0001")

	result, err := env.services.Ingest.Ingest(ctx, rec)
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	if result.Outcome != models.IngestInserted {
		t.Fatalf("expected inserted, got %s (%s)", result.Outcome, result.Reason)
	}
	if result.ArticleID == "" {
		t.Error("expected article ID on insert")
	}

	again, err := env.services.Ingest.Ingest(ctx, rec)
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if again.Outcome != models.IngestSkipped {
		t.Errorf("expected skipped on re-ingest, got %s", again.Outcome)
	}
	if again.ArticleID != result.ArticleID {
		t.Errorf("skip should reference the stored article: got %s, want %s",
			again.ArticleID, result.ArticleID)
	}
	if len(env.articles.Articles) != 1 {
		t.Errorf("expected 1 stored article, got %d", len(env.articles.Articles))
	}
}

func TestIngest_ShortTitleRejected(t *testing.T) {
	env := newTestEnv()

	rec := rawRecord("https://n.news.naver.com/article/001/0002")
	rec.Title = "Short"

	result, err := env.services.Ingest.Ingest(context.Background(), rec)
	if err != nil {
		t.Fatalf("ingest returned error for invalid record: %v", err)
	}
	if result.Outcome != models.IngestRejected {
		t.Fatalf("expected rejected, got %s", result.Outcome)
	}
	if len(env.articles.Articles) != 0 {
		t.Error("rejected record must not be stored")
	}
	if len(env.authors.Authors) != 0 {
		t.Error("rejected record must not create an author")
	}
}

func TestIngest_UnknownDomainRejected(t *testing.T) {
	env := newTestEnv()

	rec := rawRecord("https://example.com/article/1")

	result, err := env.services.Ingest.Ingest(context.Background(), rec)
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if result.Outcome != models.IngestRejected {
		t.Errorf("expected rejected for unknown domain, got %s", result.Outcome)
	}
}

func TestIngest_AuthorReusedAcrossArticles(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.services.Ingest.Ingest(ctx, rawRecord("https://n.news.naver.com/article/001/0003"))
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	second, err := env.services.Ingest.Ingest(ctx, rawRecord("https://n.news.naver.com/article/001/0004"))
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}

	if len(env.authors.Authors) != 1 {
		t.Fatalf("same byline and publisher must map to one author, got %d", len(env.authors.Authors))
	}
	a1 := env.articles.Articles[first.ArticleID]
	a2 := env.articles.Articles[second.ArticleID]
	if a1.AuthorID != a2.AuthorID {
		t.Errorf("articles share an author: %s vs %s", a1.AuthorID, a2.AuthorID)
	}
}

// racingAuthorRepo simulates losing the author insert race: the lookup misses
// while another writer lands the row, so Insert hits the unique constraint.
type racingAuthorRepo struct {
	*mocks.MockAuthorRepository
	misses int
}

func (r *racingAuthorRepo) GetByNamePublisher(ctx context.Context, name, publisher string) (*models.Author, error) {
	if r.misses > 0 {
		r.misses--
		return nil, nil
	}
	return r.MockAuthorRepository.GetByNamePublisher(ctx, name, publisher)
}

func TestIngest_AuthorInsertRaceFallsBackToWinner(t *testing.T) {
	articles := mocks.NewMockArticleRepository()
	authors := mocks.NewMockAuthorRepository()
	jobs := mocks.NewMockBatchJobRepository(articles)

	winner := &models.Author{
		ID:            "winner-id",
		Name:          "Kim Reporter",
		PublisherName: "Daily News",
		CreatedAt:     time.Now(),
	}
	if err := authors.Insert(context.Background(), winner); err != nil {
		t.Fatalf("seeding winner failed: %v", err)
	}

	racing := &racingAuthorRepo{MockAuthorRepository: authors, misses: 1}
	repos := &repository.Repositories{Article: articles, Author: racing, BatchJob: jobs}
	cfg := newTestEnv().cfg
	services := service.NewServices(repos, cfg, mocks.NewMockSearchProvider(),
		mocks.NewMockScoringProvider(), zerolog.Nop())

	result, err := services.Ingest.Ingest(context.Background(),
		rawRecord("https://n.news.naver.com/article/001/0005"))
	if err != nil {
		t.Fatalf("ingest failed despite recoverable race: %v", err)
	}
	if result.Outcome != models.IngestInserted {
		t.Fatalf("expected inserted, got %s", result.Outcome)
	}
	if got := articles.Articles[result.ArticleID].AuthorID; got != "winner-id" {
		t.Errorf("article must reference the winner's author row, got %s", got)
	}
	if len(authors.Authors) != 1 {
		t.Errorf("race must not create a duplicate author, got %d", len(authors.Authors))
	}
}

func TestRunIngestion_CountsOutcomes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	short := rawRecord("https://n.news.naver.com/article/001/0012")
	short.Title = "Tiny"
	env.search.Records["논란"] = []models.RawRecord{
		rawRecord("https://n.news.naver.com/article/001/0010"),
		rawRecord("https://n.news.naver.com/article/001/0011"),
		rawRecord("https://n.news.naver.com/article/001/0010"), // duplicate of the first
		short,
	}

	report, err := env.services.Ingest.RunIngestion(ctx, service.IngestionRunRequest{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if report.Fetched != 4 {
		t.Errorf("fetched = %d, want 4", report.Fetched)
	}
	if report.Inserted != 2 {
		t.Errorf("inserted = %d, want 2", report.Inserted)
	}
	if report.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", report.Skipped)
	}
	if report.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", report.Rejected)
	}
	if report.Failed != 0 {
		t.Errorf("failed = %d, want 0", report.Failed)
	}
}

func TestRunIngestion_DryRunPersistsNothing(t *testing.T) {
	env := newTestEnv()

	env.search.Records["논란"] = []models.RawRecord{
		rawRecord("https://n.news.naver.com/article/001/0020"),
	}

	report, err := env.services.Ingest.RunIngestion(context.Background(),
		service.IngestionRunRequest{DryRun: true})
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if report.Inserted != 1 {
		t.Errorf("dry run inserted = %d, want 1", report.Inserted)
	}
	if len(env.articles.Articles) != 0 {
		t.Error("dry run must not persist articles")
	}
	if len(env.authors.Authors) != 0 {
		t.Error("dry run must not persist authors")
	}
}

func TestRunIngestion_MultipleKeywords(t *testing.T) {
	env := newTestEnv()

	env.search.Records["이슈"] = []models.RawRecord{
		rawRecord("https://n.news.naver.com/article/001/0030"),
	}

	report, err := env.services.Ingest.RunIngestion(context.Background(),
		service.IngestionRunRequest{Keywords: []string{"논란", "이슈"}})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// The first keyword has no records configured, so only the second
	// contributes
	if report.Inserted != 1 {
		t.Errorf("inserted = %d, want 1", report.Inserted)
	}
	if env.search.SearchCalls != 2 {
		t.Errorf("search calls = %d, want 2", env.search.SearchCalls)
	}
}

func TestRunIngestion_SearchFailureDoesNotAbort(t *testing.T) {
	env := newTestEnv()
	env.search.SearchErr = errors.New("search unavailable")

	report, err := env.services.Ingest.RunIngestion(context.Background(),
		service.IngestionRunRequest{Keywords: []string{"논란", "이슈"}})
	if err != nil {
		t.Fatalf("run must not abort on search failure: %v", err)
	}
	if report.Failed != 2 {
		t.Errorf("failed = %d, want 2", report.Failed)
	}
	if report.Fetched != 0 {
		t.Errorf("fetched = %d, want 0", report.Fetched)
	}
}
