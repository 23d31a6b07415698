package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/clickbait-pipeline/internal/config"
	"github.com/clickbait-pipeline/internal/models"
	"github.com/clickbait-pipeline/internal/repository"
	"github.com/rs/zerolog"
)

// reconcileService is the concrete implementation of ReconcileService
type reconcileService struct {
	repos *repository.Repositories
	cfg   *config.Config
	log   zerolog.Logger
}

// newReconcileService creates a new ReconcileService
func newReconcileService(repos *repository.Repositories, cfg *config.Config, log zerolog.Logger) *reconcileService {
	return &reconcileService{
		repos: repos,
		cfg:   cfg,
		log:   log.With().Str("service", "reconcile").Logger(),
	}
}

// Reconcile recomputes author aggregates from the articles table.
// FullRebuild overwrites every author unconditionally; IncrementalFix writes
// only authors whose stored values drifted beyond tolerance. Both modes
// produce the same end state for any author they touch, and a failure on one
// author never aborts the rest.
func (s *reconcileService) Reconcile(ctx context.Context, mode models.ReconcileMode) (*models.ReconciliationReport, error) {
	if mode != models.ReconcileFullRebuild && mode != models.ReconcileIncrementalFix {
		return nil, fmt.Errorf("unknown reconcile mode %q", mode)
	}

	report := &models.ReconciliationReport{
		Mode:      mode,
		StartedAt: time.Now(),
	}

	authorIDs, err := s.repos.Author.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}

	for _, authorID := range authorIDs {
		report.AuthorsChecked++

		if err := s.reconcileAuthor(ctx, authorID, mode, report); err != nil {
			report.AuthorsFailed++
			s.log.Error().Err(err).Str("author_id", authorID).Msg("Author reconciliation failed")
		}
	}

	report.FinishedAt = time.Now()
	s.log.Info().
		Str("mode", string(mode)).
		Int("checked", report.AuthorsChecked).
		Int("corrected", report.AuthorsCorrected).
		Int("failed", report.AuthorsFailed).
		Msg("Reconciliation completed")

	return report, nil
}

func (s *reconcileService) reconcileAuthor(ctx context.Context, authorID string,
	mode models.ReconcileMode, report *models.ReconciliationReport) error {
	author, err := s.repos.Author.GetByID(ctx, authorID)
	if err != nil {
		return fmt.Errorf("load author: %w", err)
	}
	if author == nil {
		return fmt.Errorf("author disappeared during reconciliation")
	}

	authoritative, err := s.repos.Article.AggregatesForAuthor(ctx, authorID)
	if err != nil {
		return fmt.Errorf("compute aggregates: %w", err)
	}

	stored := models.AuthorAggregates{
		ArticleCount: author.ArticleCount,
		AverageScore: author.AverageScore,
		MaxScore:     author.MaxScore,
	}
	drifted := s.drifted(stored, authoritative)

	if mode == models.ReconcileIncrementalFix && !drifted {
		return nil
	}

	if err := s.repos.Author.UpdateAggregates(ctx, authorID, authoritative); err != nil {
		return fmt.Errorf("write aggregates: %w", err)
	}

	if drifted {
		report.AuthorsCorrected++
		report.Deltas = append(report.Deltas, models.AuthorDelta{
			AuthorID: authorID,
			Name:     author.Name,
			Before:   stored,
			After:    authoritative,
		})
		s.log.Debug().
			Str("author_id", authorID).
			Int("count", authoritative.ArticleCount).
			Float64("avg", authoritative.AverageScore).
			Int("max", authoritative.MaxScore).
			Msg("Author aggregates corrected")
	}
	return nil
}

// drifted compares aggregates: exact equality for count and max, epsilon
// tolerance for the average
func (s *reconcileService) drifted(stored, authoritative models.AuthorAggregates) bool {
	if stored.ArticleCount != authoritative.ArticleCount {
		return true
	}
	if stored.MaxScore != authoritative.MaxScore {
		return true
	}
	return math.Abs(stored.AverageScore-authoritative.AverageScore) > s.cfg.Reconcile.AverageEpsilon
}

// highScoreKeywords are the headline phrasings tallied in the high-score
// report; bait titles cluster around them.
var highScoreKeywords = []string{
	"충격",
	"깜짝",
	"대박",
	"실화",
	"놀라운",
	"믿을 수 없는",
	"경악",
	"화제",
	"논란",
	"폭로",
	"고백",
	"비밀",
}

// HighScoreReport surveys articles scored at or above the threshold over the
// last N days: counts per publisher and per bait keyword, plus the top
// offenders by score. Zero arguments fall back to configured defaults.
func (s *reconcileService) HighScoreReport(ctx context.Context, threshold, days, limit int) (*models.HighScoreReport, error) {
	if threshold <= 0 {
		threshold = s.cfg.Stats.HighScoreThreshold
	}
	if days <= 0 {
		days = s.cfg.Stats.HighScoreDays
	}
	if limit <= 0 {
		limit = 20
	}

	since := time.Now().AddDate(0, 0, -days)
	articles, err := s.repos.Article.ListHighScores(ctx, threshold, since)
	if err != nil {
		return nil, fmt.Errorf("list high scores: %w", err)
	}

	report := &models.HighScoreReport{
		Threshold:       threshold,
		Days:            days,
		TotalArticles:   len(articles),
		PublisherCounts: make(map[string]int),
		KeywordCounts:   make(map[string]int),
		GeneratedAt:     time.Now(),
	}

	for i, article := range articles {
		report.PublisherCounts[article.PublisherName]++
		for _, keyword := range highScoreKeywords {
			if strings.Contains(article.Title, keyword) {
				report.KeywordCounts[keyword]++
			}
		}

		if i >= limit || article.Score == nil {
			continue
		}
		entry := models.HighScoreArticle{
			ID:            article.ID,
			Title:         article.Title,
			ExternalURL:   article.ExternalURL,
			PublisherName: article.PublisherName,
			Score:         *article.Score,
			PublishedAt:   article.PublishedAt,
		}
		if article.ScoreExplanation != nil {
			entry.Explanation = *article.ScoreExplanation
		}
		report.TopArticles = append(report.TopArticles, entry)
	}

	s.log.Info().
		Int("threshold", threshold).
		Int("days", days).
		Int("matched", report.TotalArticles).
		Msg("High-score report generated")

	return report, nil
}

// StatsSummary returns totals over articles, authors, and active jobs
func (s *reconcileService) StatsSummary(ctx context.Context) (*models.StatsSummary, error) {
	statusCounts, err := s.repos.Article.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}

	authorCount, err := s.repos.Author.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count authors: %w", err)
	}

	activeJobs, err := s.repos.BatchJob.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active jobs: %w", err)
	}

	total := 0
	for _, count := range statusCounts {
		total += count
	}

	return &models.StatsSummary{
		TotalArticles:   total,
		ScoredArticles:  statusCounts[models.ScoringStatusScored],
		PendingArticles: statusCounts[models.ScoringStatusUnscored] + statusCounts[models.ScoringStatusSubmitted],
		FailedArticles:  statusCounts[models.ScoringStatusFailed],
		TotalAuthors:    authorCount,
		ActiveBatchJobs: activeJobs,
		GeneratedAt:     time.Now(),
	}, nil
}
