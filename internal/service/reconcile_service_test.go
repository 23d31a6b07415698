package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/clickbait-pipeline/internal/models"
)

// seedScored inserts an article already carrying a score
func (e *testEnv) seedScored(id, authorID string, score int) {
	article := e.seedArticle(id, authorID)
	s := score
	article.Score = &s
	article.ScoringStatus = models.ScoringStatusScored
}

func TestReconcile_FullRebuildComputesAggregates(t *testing.T) {
	env := newTestEnv()
	env.seedAuthor("auth-1", "Kim Reporter")
	env.seedScored("art-1", "auth-1", 80)
	env.seedScored("art-2", "auth-1", 61)

	// Unscored and failed articles count toward volume but not the averages
	env.seedArticle("art-3", "auth-1")
	failed := env.seedArticle("art-4", "auth-1")
	failed.ScoringStatus = models.ScoringStatusFailed

	ctx := context.Background()
	report, err := env.services.Reconcile.Reconcile(ctx, models.ReconcileFullRebuild)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.AuthorsChecked != 1 || report.AuthorsCorrected != 1 {
		t.Errorf("checked/corrected = %d/%d, want 1/1",
			report.AuthorsChecked, report.AuthorsCorrected)
	}

	author := env.authors.Authors["auth-1"]
	if author.ArticleCount != 4 {
		t.Errorf("article count = %d, want 4", author.ArticleCount)
	}
	if author.AverageScore != 70.5 {
		t.Errorf("average = %v, want 70.5", author.AverageScore)
	}
	if author.MaxScore != 80 {
		t.Errorf("max = %d, want 80", author.MaxScore)
	}
}

func TestReconcile_SecondRunCorrectsNothing(t *testing.T) {
	env := newTestEnv()
	env.seedAuthor("auth-1", "Kim Reporter")
	env.seedScored("art-1", "auth-1", 33)

	ctx := context.Background()
	if _, err := env.services.Reconcile.Reconcile(ctx, models.ReconcileFullRebuild); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	before := *env.authors.Authors["auth-1"]

	report, err := env.services.Reconcile.Reconcile(ctx, models.ReconcileFullRebuild)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if report.AuthorsCorrected != 0 {
		t.Errorf("second run corrected %d authors, want 0", report.AuthorsCorrected)
	}

	after := env.authors.Authors["auth-1"]
	if after.ArticleCount != before.ArticleCount ||
		after.AverageScore != before.AverageScore ||
		after.MaxScore != before.MaxScore {
		t.Error("second run must not change aggregate values")
	}
}

func TestReconcile_IncrementalWritesOnlyDriftedAuthors(t *testing.T) {
	env := newTestEnv()
	env.seedAuthor("auth-1", "Kim Reporter")
	env.seedAuthor("auth-2", "Lee Reporter")
	env.seedScored("art-1", "auth-1", 50)
	env.seedScored("art-2", "auth-2", 90)

	ctx := context.Background()
	// Bring both authors in sync, then corrupt one
	if _, err := env.services.Reconcile.Reconcile(ctx, models.ReconcileFullRebuild); err != nil {
		t.Fatalf("setup run failed: %v", err)
	}
	env.authors.Authors["auth-2"].ArticleCount = 99

	report, err := env.services.Reconcile.Reconcile(ctx, models.ReconcileIncrementalFix)
	if err != nil {
		t.Fatalf("incremental run failed: %v", err)
	}
	if report.AuthorsChecked != 2 {
		t.Errorf("checked = %d, want 2", report.AuthorsChecked)
	}
	if report.AuthorsCorrected != 1 {
		t.Fatalf("corrected = %d, want 1", report.AuthorsCorrected)
	}
	if len(report.Deltas) != 1 || report.Deltas[0].AuthorID != "auth-2" {
		t.Errorf("delta must name the drifted author, got %+v", report.Deltas)
	}
	if report.Deltas[0].Before.ArticleCount != 99 || report.Deltas[0].After.ArticleCount != 1 {
		t.Errorf("delta before/after = %d/%d, want 99/1",
			report.Deltas[0].Before.ArticleCount, report.Deltas[0].After.ArticleCount)
	}
	if env.authors.Authors["auth-2"].ArticleCount != 1 {
		t.Error("drifted author must be corrected")
	}
}

func TestReconcile_AverageWithinEpsilonIsNotDrift(t *testing.T) {
	env := newTestEnv()
	env.seedAuthor("auth-1", "Kim Reporter")
	env.seedScored("art-1", "auth-1", 50)

	author := env.authors.Authors["auth-1"]
	author.ArticleCount = 1
	author.AverageScore = 50.005 // within the 0.01 tolerance
	author.MaxScore = 50

	report, err := env.services.Reconcile.Reconcile(context.Background(), models.ReconcileIncrementalFix)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if report.AuthorsCorrected != 0 {
		t.Errorf("corrected = %d, want 0 for sub-epsilon drift", report.AuthorsCorrected)
	}
	if env.authors.Authors["auth-1"].AverageScore != 50.005 {
		t.Error("incremental mode must not rewrite an undrifted author")
	}
}

func TestReconcile_AuthorFailureDoesNotAbortRun(t *testing.T) {
	env := newTestEnv()
	env.seedAuthor("auth-1", "Kim Reporter")
	env.seedAuthor("auth-2", "Lee Reporter")
	env.seedScored("art-1", "auth-1", 40)
	env.seedScored("art-2", "auth-2", 60)
	env.authors.UpdateError = errors.New("write refused")

	report, err := env.services.Reconcile.Reconcile(context.Background(), models.ReconcileFullRebuild)
	if err != nil {
		t.Fatalf("run must not abort on per-author failures: %v", err)
	}
	if report.AuthorsChecked != 2 {
		t.Errorf("checked = %d, want 2", report.AuthorsChecked)
	}
	if report.AuthorsFailed != 2 {
		t.Errorf("failed = %d, want 2", report.AuthorsFailed)
	}
	if report.AuthorsCorrected != 0 {
		t.Errorf("corrected = %d, want 0", report.AuthorsCorrected)
	}
}

func TestReconcile_UnknownModeRejected(t *testing.T) {
	env := newTestEnv()

	if _, err := env.services.Reconcile.Reconcile(context.Background(), models.ReconcileMode("weekly")); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}

func TestHighScoreReport(t *testing.T) {
	env := newTestEnv()
	env.seedAuthor("auth-1", "Kim Reporter")

	env.seedScored("art-1", "auth-1", 95)
	env.articles.Articles["art-1"].Title = "충격 이럴 수가 있나 충격적인 결말"
	env.articles.Articles["art-1"].PublisherName = "Daily News"

	env.seedScored("art-2", "auth-1", 85)
	env.articles.Articles["art-2"].Title = "논란의 그 발언 전문 공개"
	env.articles.Articles["art-2"].PublisherName = "Evening Post"

	// Below threshold, excluded
	env.seedScored("art-3", "auth-1", 60)

	// High score but outside the window, excluded
	env.seedScored("art-4", "auth-1", 99)
	env.articles.Articles["art-4"].PublishedAt = time.Now().AddDate(0, 0, -30)

	report, err := env.services.Reconcile.HighScoreReport(context.Background(), 80, 7, 10)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}

	if report.TotalArticles != 2 {
		t.Fatalf("total = %d, want 2", report.TotalArticles)
	}
	if report.Threshold != 80 || report.Days != 7 {
		t.Errorf("threshold/days = %d/%d, want 80/7", report.Threshold, report.Days)
	}
	if report.PublisherCounts["Daily News"] != 1 || report.PublisherCounts["Evening Post"] != 1 {
		t.Errorf("publisher counts = %v", report.PublisherCounts)
	}
	// The repeated keyword counts once per title
	if report.KeywordCounts["충격"] != 1 || report.KeywordCounts["논란"] != 1 {
		t.Errorf("keyword counts = %v", report.KeywordCounts)
	}

	if len(report.TopArticles) != 2 {
		t.Fatalf("top articles = %d, want 2", len(report.TopArticles))
	}
	if report.TopArticles[0].Score != 95 || report.TopArticles[1].Score != 85 {
		t.Errorf("top articles not ordered by score: %d, %d",
			report.TopArticles[0].Score, report.TopArticles[1].Score)
	}
}

func TestHighScoreReport_DefaultsAndLimit(t *testing.T) {
	env := newTestEnv()
	env.seedAuthor("auth-1", "Kim Reporter")
	for i := 0; i < 5; i++ {
		env.seedScored(fmt.Sprintf("art-%d", i), "auth-1", 90+i)
	}

	report, err := env.services.Reconcile.HighScoreReport(context.Background(), 0, 0, 3)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.Threshold != 80 {
		t.Errorf("threshold = %d, want configured default 80", report.Threshold)
	}
	if report.Days != 7 {
		t.Errorf("days = %d, want configured default 7", report.Days)
	}
	if report.TotalArticles != 5 {
		t.Errorf("total = %d, want 5", report.TotalArticles)
	}
	if len(report.TopArticles) != 3 {
		t.Errorf("top articles = %d, want limit 3", len(report.TopArticles))
	}
	if report.TopArticles[0].Score != 94 {
		t.Errorf("highest score = %d, want 94", report.TopArticles[0].Score)
	}
}

func TestStatsSummary(t *testing.T) {
	env := newTestEnv()
	env.seedAuthor("auth-1", "Kim Reporter")
	env.seedScored("art-1", "auth-1", 70)
	env.seedArticle("art-2", "auth-1")
	failed := env.seedArticle("art-3", "auth-1")
	failed.ScoringStatus = models.ScoringStatusFailed

	summary, err := env.services.Reconcile.StatsSummary(context.Background())
	if err != nil {
		t.Fatalf("stats summary failed: %v", err)
	}
	if summary.TotalArticles != 3 {
		t.Errorf("total = %d, want 3", summary.TotalArticles)
	}
	if summary.ScoredArticles != 1 {
		t.Errorf("scored = %d, want 1", summary.ScoredArticles)
	}
	if summary.PendingArticles != 1 {
		t.Errorf("pending = %d, want 1", summary.PendingArticles)
	}
	if summary.FailedArticles != 1 {
		t.Errorf("failed = %d, want 1", summary.FailedArticles)
	}
	if summary.TotalAuthors != 1 {
		t.Errorf("authors = %d, want 1", summary.TotalAuthors)
	}
	if summary.ActiveBatchJobs != 0 {
		t.Errorf("active jobs = %d, want 0", summary.ActiveBatchJobs)
	}
}
