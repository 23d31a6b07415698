package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clickbait-pipeline/internal/config"
	"github.com/clickbait-pipeline/internal/ingest"
	"github.com/clickbait-pipeline/internal/models"
	"github.com/clickbait-pipeline/internal/provider"
	"github.com/clickbait-pipeline/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ingestService is the concrete implementation of IngestService
type ingestService struct {
	repos      *repository.Repositories
	search     provider.SearchProvider
	normalizer *ingest.Normalizer
	cfg        *config.Config
	log        zerolog.Logger
}

// newIngestService creates a new IngestService
func newIngestService(repos *repository.Repositories, search provider.SearchProvider,
	cfg *config.Config, log zerolog.Logger) *ingestService {
	return &ingestService{
		repos:      repos,
		search:     search,
		normalizer: ingest.NewNormalizer(cfg.Ingest),
		cfg:        cfg,
		log:        log.With().Str("service", "ingest").Logger(),
	}
}

// Ingest normalizes, validates, and stores one raw record. Re-ingesting the
// same URL is a no-op: the first successful insert wins and every later call
// returns Skipped without mutation.
func (s *ingestService) Ingest(ctx context.Context, rec models.RawRecord) (models.IngestResult, error) {
	rec, err := s.normalizer.Prepare(rec)
	if err != nil {
		var ve *ingest.ValidationError
		if errors.As(err, &ve) {
			return models.IngestResult{Outcome: models.IngestRejected, Reason: ve.Error()}, nil
		}
		return models.IngestResult{}, err
	}

	existing, err := s.repos.Article.GetByExternalURL(ctx, rec.URL)
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("lookup external url: %w", err)
	}
	if existing != nil {
		return models.IngestResult{
			Outcome:   models.IngestSkipped,
			Reason:    "duplicate",
			ArticleID: existing.ID,
		}, nil
	}

	author, err := s.resolveAuthor(ctx, rec)
	if err != nil {
		return models.IngestResult{}, err
	}

	now := time.Now()
	article := &models.Article{
		ID:            uuid.New().String(),
		ExternalURL:   rec.URL,
		Title:         rec.Title,
		Content:       rec.Content,
		AuthorID:      author.ID,
		PublisherName: rec.PublisherName,
		PublishedAt:   rec.PublishedAt,
		ScoringStatus: models.ScoringStatusUnscored,
		CreatedAt:     now,
	}

	if err := s.repos.Article.Insert(ctx, article); err != nil {
		// Concurrent ingestion of the same URL: the loser reads the winner
		if repository.IsUniqueViolation(err) {
			winner, lookupErr := s.repos.Article.GetByExternalURL(ctx, rec.URL)
			if lookupErr != nil || winner == nil {
				return models.IngestResult{}, fmt.Errorf("insert article: %w", err)
			}
			return models.IngestResult{
				Outcome:   models.IngestSkipped,
				Reason:    "duplicate",
				ArticleID: winner.ID,
			}, nil
		}
		return models.IngestResult{}, fmt.Errorf("insert article: %w", err)
	}

	s.log.Debug().
		Str("article_id", article.ID).
		Str("author", author.Name).
		Msg("Article ingested")

	return models.IngestResult{Outcome: models.IngestInserted, ArticleID: article.ID}, nil
}

// resolveAuthor finds or creates the author for a record. Creation is
// idempotent under concurrency: losing the insert race on the
// (name, publisher) unique key falls back to re-reading the winner's row.
func (s *ingestService) resolveAuthor(ctx context.Context, rec models.RawRecord) (*models.Author, error) {
	author, err := s.repos.Author.GetByNamePublisher(ctx, rec.AuthorName, rec.PublisherName)
	if err != nil {
		return nil, fmt.Errorf("lookup author: %w", err)
	}
	if author != nil {
		return author, nil
	}

	author = &models.Author{
		ID:               uuid.New().String(),
		Name:             rec.AuthorName,
		PublisherName:    rec.PublisherName,
		ExternalAuthorID: rec.ExternalAuthorID,
		CreatedAt:        time.Now(),
	}
	if err := s.repos.Author.Insert(ctx, author); err != nil {
		if repository.IsUniqueViolation(err) {
			winner, lookupErr := s.repos.Author.GetByNamePublisher(ctx, rec.AuthorName, rec.PublisherName)
			if lookupErr != nil {
				return nil, fmt.Errorf("re-read author after race: %w", lookupErr)
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("create author: %w", err)
	}

	s.log.Info().
		Str("author_id", author.ID).
		Str("name", author.Name).
		Str("publisher", author.PublisherName).
		Msg("Author created")

	return author, nil
}

// RunIngestion crawls each keyword over the requested day and ingests every
// fetched record. Per-record failures are counted and never abort the run.
func (s *ingestService) RunIngestion(ctx context.Context, req IngestionRunRequest) (*models.IngestReport, error) {
	keywords := req.Keywords
	if len(keywords) == 0 {
		keywords = s.cfg.Ingest.Keywords
	}
	maxPerKeyword := req.MaxPerKeyword
	if maxPerKeyword <= 0 {
		maxPerKeyword = s.cfg.Ingest.MaxPerKeyword
	}
	day := req.Date
	if day.IsZero() {
		day = time.Now()
	}
	from := day.Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)

	report := &models.IngestReport{
		Keywords:  keywords,
		DryRun:    req.DryRun,
		StartedAt: time.Now(),
	}

	for _, keyword := range keywords {
		records, err := s.search.Search(ctx, keyword, from, to, maxPerKeyword)
		if err != nil {
			s.log.Error().Err(err).Str("keyword", keyword).Msg("Search failed")
			report.Failed++
			continue
		}
		report.Fetched += len(records)

		for _, rec := range records {
			var result models.IngestResult
			if req.DryRun {
				result, err = s.dryRunResult(ctx, rec)
			} else {
				result, err = s.Ingest(ctx, rec)
			}
			if err != nil {
				s.log.Error().Err(err).Str("url", rec.URL).Msg("Ingest failed")
				report.Failed++
				continue
			}
			switch result.Outcome {
			case models.IngestInserted:
				report.Inserted++
			case models.IngestSkipped:
				report.Skipped++
			case models.IngestRejected:
				report.Rejected++
			}
		}
	}

	report.FinishedAt = time.Now()
	s.log.Info().
		Int("fetched", report.Fetched).
		Int("inserted", report.Inserted).
		Int("skipped", report.Skipped).
		Int("rejected", report.Rejected).
		Int("failed", report.Failed).
		Bool("dry_run", report.DryRun).
		Msg("Ingestion run completed")

	return report, nil
}

// dryRunResult classifies a record without persisting anything
func (s *ingestService) dryRunResult(ctx context.Context, rec models.RawRecord) (models.IngestResult, error) {
	rec, err := s.normalizer.Prepare(rec)
	if err != nil {
		var ve *ingest.ValidationError
		if errors.As(err, &ve) {
			return models.IngestResult{Outcome: models.IngestRejected, Reason: ve.Error()}, nil
		}
		return models.IngestResult{}, err
	}
	existing, err := s.repos.Article.GetByExternalURL(ctx, rec.URL)
	if err != nil {
		return models.IngestResult{}, err
	}
	if existing != nil {
		return models.IngestResult{Outcome: models.IngestSkipped, Reason: "duplicate"}, nil
	}
	return models.IngestResult{Outcome: models.IngestInserted}, nil
}
