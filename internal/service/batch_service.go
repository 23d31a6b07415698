package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clickbait-pipeline/internal/config"
	"github.com/clickbait-pipeline/internal/models"
	"github.com/clickbait-pipeline/internal/provider"
	"github.com/clickbait-pipeline/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrJobNotFound is returned when a batch job ID does not exist
var ErrJobNotFound = errors.New("batch job not found")

// ErrJobTerminal is returned when an operation targets an already-terminal job
var ErrJobTerminal = errors.New("batch job already terminal")

// batchService is the concrete implementation of BatchService
type batchService struct {
	repos  *repository.Repositories
	scorer provider.ScoringProvider
	cfg    *config.Config
	log    zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
	// Semaphore: buffered channel bounding concurrent job polls
	sem chan struct{}
}

// newBatchService creates a new BatchService
func newBatchService(repos *repository.Repositories, scorer provider.ScoringProvider,
	cfg *config.Config, log zerolog.Logger) *batchService {
	workers := cfg.Batch.PollWorkers
	if workers < 1 {
		workers = 1
	}
	return &batchService{
		repos:  repos,
		scorer: scorer,
		cfg:    cfg,
		log:    log.With().Str("service", "batch").Logger(),
		sem:    make(chan struct{}, workers),
	}
}

// FormBatch claims up to maxSize unscored articles into a fresh pending job.
// The select-and-mark step is atomic at the store level, so concurrent calls
// never place the same article into two jobs. Returns nil when no articles
// are claimable.
func (s *batchService) FormBatch(ctx context.Context, maxSize int) (*models.BatchJob, error) {
	if maxSize <= 0 {
		maxSize = s.cfg.Batch.MaxSize
	}

	now := time.Now()
	job := &models.BatchJob{
		ID:        uuid.New().String(),
		State:     models.BatchStatePending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Batch.TTL),
	}

	memberIDs, err := s.repos.BatchJob.FormBatch(ctx, job, maxSize)
	if err != nil {
		return nil, fmt.Errorf("form batch: %w", err)
	}
	if len(memberIDs) == 0 {
		return nil, nil
	}
	job.MemberArticleIDs = memberIDs

	s.log.Info().
		Str("job_id", job.ID).
		Int("members", len(memberIDs)).
		Time("expires_at", job.ExpiresAt).
		Msg("Batch job formed")

	return job, nil
}

// Submit hands a pending job's payload to the scoring provider. Transient
// failures leave the job pending with an increased retry count and a
// backed-off next attempt; exhausted retries and terminal provider errors
// fail the job and release its members.
func (s *batchService) Submit(ctx context.Context, jobID string) error {
	job, err := s.repos.BatchJob.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return ErrJobNotFound
	}
	_, err = s.submitJob(ctx, job)
	return err
}

func (s *batchService) submitJob(ctx context.Context, job *models.BatchJob) (models.BatchState, error) {
	if job.State != models.BatchStatePending {
		return job.State, nil
	}

	now := time.Now()
	if job.Expired(now) {
		return s.closeJob(ctx, job, models.BatchStateExpired, "ttl exceeded before submission")
	}
	if job.NextAttemptAt != nil && now.Before(*job.NextAttemptAt) {
		return job.State, nil
	}

	articles, err := s.repos.Article.GetByIDs(ctx, job.MemberArticleIDs)
	if err != nil {
		return job.State, fmt.Errorf("load members: %w", err)
	}

	requests := make([]provider.ScoringRequest, 0, len(articles))
	for _, article := range articles {
		if article.ScoringStatus != models.ScoringStatusSubmitted {
			continue
		}
		requests = append(requests, provider.ScoringRequest{
			ArticleID: article.ID,
			Title:     article.Title,
			Content:   article.Content,
		})
	}

	providerBatchID, err := s.scorer.SubmitBatch(ctx, requests)
	if err != nil {
		return s.handleSubmitFailure(ctx, job, err)
	}

	if _, err := s.repos.BatchJob.MarkSubmitted(ctx, job.ID, providerBatchID); err != nil {
		return job.State, fmt.Errorf("mark submitted: %w", err)
	}

	s.log.Info().
		Str("job_id", job.ID).
		Str("provider_batch_id", providerBatchID).
		Int("requests", len(requests)).
		Msg("Batch submitted to scorer")

	return models.BatchStateSubmitted, nil
}

func (s *batchService) handleSubmitFailure(ctx context.Context, job *models.BatchJob, submitErr error) (models.BatchState, error) {
	if provider.IsTerminal(submitErr) {
		s.log.Warn().Err(submitErr).Str("job_id", job.ID).Msg("Terminal provider error on submit")
		return s.closeJob(ctx, job, models.BatchStateFailed, submitErr.Error())
	}

	if job.RetryCount >= s.cfg.Batch.MaxRetries {
		s.log.Warn().
			Str("job_id", job.ID).
			Int("retries", job.RetryCount).
			Msg("Submit retries exhausted")
		return s.closeJob(ctx, job, models.BatchStateFailed, submitErr.Error())
	}

	retry := job.RetryCount + 1
	nextAttempt := time.Now().Add(s.backoff(retry))
	if _, err := s.repos.BatchJob.RecordRetry(ctx, job.ID, retry, nextAttempt, submitErr.Error()); err != nil {
		return job.State, fmt.Errorf("record retry: %w", err)
	}

	s.log.Warn().Err(submitErr).
		Str("job_id", job.ID).
		Int("retry", retry).
		Time("next_attempt_at", nextAttempt).
		Msg("Transient submit failure, will retry")

	return models.BatchStatePending, nil
}

// backoff doubles the base delay per completed attempt
func (s *batchService) backoff(retry int) time.Duration {
	delay := s.cfg.Batch.RetryBackoff
	for i := 1; i < retry; i++ {
		delay *= 2
	}
	return delay
}

// Poll advances a submitted or in-progress job from the provider's status.
// Expiry is checked before the provider call and takes precedence over a
// stale in-progress read. Polling a terminal job is a no-op.
func (s *batchService) Poll(ctx context.Context, jobID string) error {
	job, err := s.repos.BatchJob.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return ErrJobNotFound
	}
	_, err = s.pollJob(ctx, job)
	return err
}

func (s *batchService) pollJob(ctx context.Context, job *models.BatchJob) (models.BatchState, error) {
	if job.State.Terminal() || job.State == models.BatchStatePending {
		return job.State, nil
	}

	if job.Expired(time.Now()) {
		return s.closeJob(ctx, job, models.BatchStateExpired, "ttl exceeded before completion")
	}

	status, err := s.scorer.GetStatus(ctx, job.ProviderBatchID)
	if err != nil {
		if provider.IsTerminal(err) {
			return s.closeJob(ctx, job, models.BatchStateFailed, err.Error())
		}
		// Transient; the next cycle retries and the TTL bounds the wait
		return job.State, fmt.Errorf("get status: %w", err)
	}

	switch status {
	case provider.StatusPending:
		return job.State, nil

	case provider.StatusRunning:
		if job.State == models.BatchStateSubmitted {
			if _, err := s.repos.BatchJob.MarkInProgress(ctx, job.ID); err != nil {
				return job.State, fmt.Errorf("mark in progress: %w", err)
			}
		}
		return models.BatchStateInProgress, nil

	case provider.StatusError:
		return s.closeJob(ctx, job, models.BatchStateFailed, "provider reported batch error")

	case provider.StatusDone:
		results, err := s.scorer.FetchResults(ctx, job.ProviderBatchID)
		if err != nil {
			if provider.IsTerminal(err) {
				return s.closeJob(ctx, job, models.BatchStateFailed, err.Error())
			}
			return job.State, fmt.Errorf("fetch results: %w", err)
		}
		if err := s.applyResults(ctx, job, results); err != nil {
			return job.State, err
		}
		if _, err := s.repos.BatchJob.MarkTerminal(ctx, job.ID, models.BatchStateCompleted, ""); err != nil {
			return job.State, fmt.Errorf("mark completed: %w", err)
		}
		s.log.Info().Str("job_id", job.ID).Int("results", len(results)).Msg("Batch completed")
		return models.BatchStateCompleted, nil
	}

	return job.State, fmt.Errorf("unexpected provider status %q", status)
}

// applyResults writes per-article outcomes for a finished batch. Members
// with a valid result become scored; members with a missing, malformed, or
// failed result become failed, individually. The conditional writes only
// touch members still submitted under this job, so re-applying the same
// result set changes nothing. A store error keeps the job open so the next
// poll retries the remaining members.
func (s *batchService) applyResults(ctx context.Context, job *models.BatchJob, results []provider.ScoringResult) error {
	byArticle := make(map[string]provider.ScoringResult, len(results))
	for _, res := range results {
		byArticle[res.ArticleID] = res
	}

	var scored, failed, storeErrors int
	for _, articleID := range job.MemberArticleIDs {
		res, ok := byArticle[articleID]

		if ok && !res.Failed && models.ValidScore(res.Score) {
			applied, err := s.repos.Article.ApplyScore(ctx, articleID, job.ID, res.Score, res.Explanation)
			if err != nil {
				s.log.Error().Err(err).Str("article_id", articleID).Msg("Failed to apply score")
				storeErrors++
				continue
			}
			if applied {
				scored++
			}
			continue
		}

		reason := "no result from provider"
		switch {
		case ok && res.Failed:
			reason = res.FailureReason
		case ok:
			reason = fmt.Sprintf("score %d out of range", res.Score)
		}

		marked, err := s.repos.Article.MarkFailed(ctx, articleID, job.ID)
		if err != nil {
			s.log.Error().Err(err).Str("article_id", articleID).Msg("Failed to mark article failed")
			storeErrors++
			continue
		}
		if marked {
			failed++
			s.log.Warn().
				Str("article_id", articleID).
				Str("reason", reason).
				Msg("Article scoring failed")
		}
	}

	s.log.Info().
		Str("job_id", job.ID).
		Int("scored", scored).
		Int("failed", failed).
		Msg("Batch results applied")

	if storeErrors > 0 {
		return fmt.Errorf("apply results: %d member writes failed", storeErrors)
	}
	return nil
}

// closeJob moves a job to a terminal state and releases any members still
// submitted back to unscored. Provider failure, TTL expiry, and operator
// cancellation all share this path.
func (s *batchService) closeJob(ctx context.Context, job *models.BatchJob, to models.BatchState, reason string) (models.BatchState, error) {
	transitioned, err := s.repos.BatchJob.MarkTerminal(ctx, job.ID, to, reason)
	if err != nil {
		return job.State, fmt.Errorf("mark %s: %w", to, err)
	}
	if !transitioned {
		// Lost the race to another transition; nothing to release
		return job.State, nil
	}

	released, err := s.repos.Article.ReleaseSubmitted(ctx, job.ID)
	if err != nil {
		return to, fmt.Errorf("release members: %w", err)
	}

	s.log.Warn().
		Str("job_id", job.ID).
		Str("state", string(to)).
		Str("reason", reason).
		Int("released", released).
		Msg("Batch job closed")

	return to, nil
}

// Cancel is the operator abort: the job fails and its members are released
// exactly as on a provider failure
func (s *batchService) Cancel(ctx context.Context, jobID string) error {
	job, err := s.repos.BatchJob.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.State.Terminal() {
		return ErrJobTerminal
	}
	_, err = s.closeJob(ctx, job, models.BatchStateFailed, "cancelled by operator")
	return err
}

// RunCycle performs one scheduler pass: poll in-flight jobs concurrently,
// submit due pending jobs, then form and submit a new batch if unscored
// articles are waiting. Per-job errors are recorded and never block other
// jobs.
func (s *batchService) RunCycle(ctx context.Context) (*models.CycleReport, error) {
	report := &models.CycleReport{StartedAt: time.Now()}

	jobs, err := s.repos.BatchJob.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active jobs: %w", err)
	}

	var pending, inflight []*models.BatchJob
	for _, job := range jobs {
		if job.State == models.BatchStatePending {
			pending = append(pending, job)
		} else {
			inflight = append(inflight, job)
		}
	}

	// Jobs operate on disjoint member sets, so polls run in parallel
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, job := range inflight {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return report, ctx.Err()
		}

		wg.Add(1)
		go func(j *models.BatchJob) {
			defer wg.Done()
			defer func() { <-s.sem }()

			state, err := s.pollJob(ctx, j)

			mu.Lock()
			defer mu.Unlock()
			report.Polled++
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("poll %s: %v", j.ID, err))
				return
			}
			switch state {
			case models.BatchStateCompleted:
				report.Completed++
			case models.BatchStateFailed:
				report.Failed++
			case models.BatchStateExpired:
				report.Expired++
			}
		}(job)
	}
	wg.Wait()

	for _, job := range pending {
		state, err := s.submitJob(ctx, job)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("submit %s: %v", job.ID, err))
			continue
		}
		if state == models.BatchStateSubmitted {
			report.Submitted++
		}
	}

	newJob, err := s.FormBatch(ctx, s.cfg.Batch.MaxSize)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("form batch: %v", err))
	} else if newJob != nil {
		report.FormedJob = newJob.ID
		report.FormedSize = len(newJob.MemberArticleIDs)
		state, err := s.submitJob(ctx, newJob)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("submit %s: %v", newJob.ID, err))
		} else if state == models.BatchStateSubmitted {
			report.Submitted++
		}
	}

	report.FinishedAt = time.Now()
	return report, nil
}

// GetJobStatus returns a job with member outcome counts, or nil when absent
func (s *batchService) GetJobStatus(ctx context.Context, id string) (*models.BatchJobStatus, error) {
	job, err := s.repos.BatchJob.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	counts, err := s.repos.Article.StatusCountsForIDs(ctx, job.MemberArticleIDs)
	if err != nil {
		return nil, err
	}

	return &models.BatchJobStatus{
		BatchJob:    *job,
		MemberCount: len(job.MemberArticleIDs),
		ScoredCount: counts[models.ScoringStatusScored],
		FailedCount: counts[models.ScoringStatusFailed],
	}, nil
}

// RequeueFailed flips failed articles back into the unscored pool
func (s *batchService) RequeueFailed(ctx context.Context, articleIDs []string) (int, error) {
	requeued, err := s.repos.Article.RequeueFailed(ctx, articleIDs)
	if err != nil {
		return 0, err
	}
	if requeued > 0 {
		s.log.Info().Int("requeued", requeued).Msg("Failed articles requeued")
	}
	return requeued, nil
}

// StartProcessor runs the batch cycle on a fixed interval until stopped
func (s *batchService) StartProcessor(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.cfg.Batch.CycleInterval).Msg("Batch cycle processor started")

	ticker := time.NewTicker(s.cfg.Batch.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("Batch cycle processor stopping")
			return
		case <-ticker.C:
			// Adding under the lock keeps the Add ordered before a
			// concurrent StopProcessor's Wait
			s.mu.Lock()
			if !s.running {
				s.mu.Unlock()
				return
			}
			s.wg.Add(1)
			s.mu.Unlock()
			report, err := s.RunCycle(s.ctx)
			s.wg.Done()
			if err != nil {
				s.log.Error().Err(err).Msg("Batch cycle failed")
				continue
			}
			if report.Polled > 0 || report.Submitted > 0 || report.FormedSize > 0 {
				s.log.Info().
					Int("polled", report.Polled).
					Int("completed", report.Completed).
					Int("submitted", report.Submitted).
					Int("formed_size", report.FormedSize).
					Msg("Batch cycle completed")
			}
		}
	}
}

// StopProcessor stops the background cycle and waits for the current pass
func (s *batchService) StopProcessor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false
	s.log.Info().Msg("Batch cycle processor stopped")
}
