package service

import (
	"context"
	"time"

	"github.com/clickbait-pipeline/internal/config"
	"github.com/clickbait-pipeline/internal/models"
	"github.com/clickbait-pipeline/internal/provider"
	"github.com/clickbait-pipeline/internal/repository"
	"github.com/rs/zerolog"
)

// IngestionRunRequest describes one crawl-and-ingest pass
type IngestionRunRequest struct {
	Date          time.Time
	Keywords      []string
	MaxPerKeyword int
	DryRun        bool
}

// IngestService defines the interface for article ingestion
type IngestService interface {
	Ingest(ctx context.Context, rec models.RawRecord) (models.IngestResult, error)
	RunIngestion(ctx context.Context, req IngestionRunRequest) (*models.IngestReport, error)
}

// BatchService defines the interface for the scoring batch lifecycle
type BatchService interface {
	FormBatch(ctx context.Context, maxSize int) (*models.BatchJob, error)
	Submit(ctx context.Context, jobID string) error
	Poll(ctx context.Context, jobID string) error
	Cancel(ctx context.Context, jobID string) error
	RunCycle(ctx context.Context) (*models.CycleReport, error)
	GetJobStatus(ctx context.Context, id string) (*models.BatchJobStatus, error)
	RequeueFailed(ctx context.Context, articleIDs []string) (int, error)
	StartProcessor(ctx context.Context)
	StopProcessor()
}

// ReconcileService defines the interface for aggregate reconciliation and
// derived reporting
type ReconcileService interface {
	Reconcile(ctx context.Context, mode models.ReconcileMode) (*models.ReconciliationReport, error)
	StatsSummary(ctx context.Context) (*models.StatsSummary, error)
	HighScoreReport(ctx context.Context, threshold, days, limit int) (*models.HighScoreReport, error)
}

// Services holds all service interfaces
type Services struct {
	Ingest    IngestService
	Batch     BatchService
	Reconcile ReconcileService
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, cfg *config.Config,
	search provider.SearchProvider, scorer provider.ScoringProvider, log zerolog.Logger) *Services {
	return &Services{
		Ingest:    newIngestService(repos, search, cfg, log),
		Batch:     newBatchService(repos, scorer, cfg, log),
		Reconcile: newReconcileService(repos, cfg, log),
	}
}
