package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/clickbait-pipeline/internal/database"
	"github.com/clickbait-pipeline/internal/models"
	"github.com/lib/pq"
)

// batchJobRepo is the concrete implementation of BatchJobRepository
type batchJobRepo struct {
	db *database.DB
}

// NewBatchJobRepo creates a new batch job repository
func NewBatchJobRepo(db *database.DB) BatchJobRepository {
	return &batchJobRepo{db: db}
}

const batchColumns = `id, provider_batch_id, state, retry_count, last_error,
	next_attempt_at, created_at, expires_at, updated_at`

// FormBatch atomically claims up to maxSize unscored articles and creates a
// pending job owning them. The claim and the membership insert run in one
// transaction with SKIP LOCKED, so concurrent calls never share an article.
// When no articles are claimable the transaction rolls back and no job is
// persisted; the returned member set is empty.
func (r *batchJobRepo) FormBatch(ctx context.Context, job *models.BatchJob, maxSize int) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	insertJob := `
		INSERT INTO batch_jobs (id, state, retry_count, created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $4)
	`
	if _, err := tx.ExecContext(ctx, insertJob,
		job.ID, job.State, job.RetryCount, job.CreatedAt, job.ExpiresAt,
	); err != nil {
		return nil, err
	}

	claim := `
		UPDATE articles
		SET scoring_status = $1, batch_job_id = $2, updated_at = $3
		WHERE id IN (
			SELECT id FROM articles
			WHERE scoring_status = $4
			ORDER BY created_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`
	rows, err := tx.QueryContext(ctx, claim,
		models.ScoringStatusSubmitted, job.ID, time.Now(),
		models.ScoringStatusUnscored, maxSize,
	)
	if err != nil {
		return nil, err
	}

	var memberIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		memberIDs = append(memberIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(memberIDs) == 0 {
		// Nothing to batch; drop the job with the rollback
		return nil, nil
	}

	insertMember := `INSERT INTO batch_job_members (batch_job_id, article_id) VALUES ($1, $2)`
	for _, articleID := range memberIDs {
		if _, err := tx.ExecContext(ctx, insertMember, job.ID, articleID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return memberIDs, nil
}

// GetByID retrieves a job with its member set loaded
func (r *batchJobRepo) GetByID(ctx context.Context, id string) (*models.BatchJob, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_jobs WHERE id = $1`
	job, err := r.scanOne(r.db.QueryRowContext(ctx, query, id))
	if err != nil || job == nil {
		return job, err
	}
	if err := r.loadMembers(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetActive retrieves non-terminal jobs, oldest first, members loaded
func (r *batchJobRepo) GetActive(ctx context.Context) ([]*models.BatchJob, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_jobs WHERE state = ANY($1) ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, activeStates())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.BatchJob
	for rows.Next() {
		job, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if err := r.loadMembers(ctx, job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// CountActive returns the number of non-terminal jobs
func (r *batchJobRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM batch_jobs WHERE state = ANY($1)`, activeStates()).Scan(&count)
	return count, err
}

// MarkSubmitted transitions pending -> submitted, recording the provider ID
func (r *batchJobRepo) MarkSubmitted(ctx context.Context, id, providerBatchID string) (bool, error) {
	query := `
		UPDATE batch_jobs
		SET state = $1, provider_batch_id = $2, next_attempt_at = NULL, updated_at = $3
		WHERE id = $4 AND state = $5
	`
	result, err := r.db.ExecContext(ctx, query,
		models.BatchStateSubmitted, providerBatchID, time.Now(),
		id, models.BatchStatePending,
	)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkInProgress transitions submitted -> in_progress
func (r *batchJobRepo) MarkInProgress(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE batch_jobs SET state = $1, updated_at = $2
		WHERE id = $3 AND state = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		models.BatchStateInProgress, time.Now(), id, models.BatchStateSubmitted,
	)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkTerminal transitions a non-terminal job to a terminal state. The state
// guard makes a second concurrent transition observe "already terminal" and
// report false.
func (r *batchJobRepo) MarkTerminal(ctx context.Context, id string, to models.BatchState, lastError string) (bool, error) {
	query := `
		UPDATE batch_jobs SET state = $1, last_error = $2, updated_at = $3
		WHERE id = $4 AND state = ANY($5)
	`
	result, err := r.db.ExecContext(ctx, query,
		to, nullString(lastError), time.Now(), id, activeStates(),
	)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// RecordRetry bumps the retry counter on a still-pending job and schedules
// the next submission attempt
func (r *batchJobRepo) RecordRetry(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, lastError string) (bool, error) {
	query := `
		UPDATE batch_jobs
		SET retry_count = $1, next_attempt_at = $2, last_error = $3, updated_at = $4
		WHERE id = $5 AND state = $6
	`
	result, err := r.db.ExecContext(ctx, query,
		retryCount, nextAttemptAt, nullString(lastError), time.Now(),
		id, models.BatchStatePending,
	)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *batchJobRepo) loadMembers(ctx context.Context, job *models.BatchJob) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT article_id FROM batch_job_members WHERE batch_job_id = $1 ORDER BY article_id`, job.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		job.MemberArticleIDs = append(job.MemberArticleIDs, id)
	}
	return rows.Err()
}

func (r *batchJobRepo) scanOne(row *sql.Row) (*models.BatchJob, error) {
	job, err := r.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *batchJobRepo) scanRow(row rowScanner) (*models.BatchJob, error) {
	var job models.BatchJob
	var providerBatchID, lastError sql.NullString
	var nextAttemptAt sql.NullTime

	err := row.Scan(
		&job.ID, &providerBatchID, &job.State, &job.RetryCount, &lastError,
		&nextAttemptAt, &job.CreatedAt, &job.ExpiresAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.ProviderBatchID = providerBatchID.String
	job.LastError = lastError.String
	if nextAttemptAt.Valid {
		job.NextAttemptAt = &nextAttemptAt.Time
	}
	return &job, nil
}

func activeStates() pq.StringArray {
	return pq.StringArray{
		string(models.BatchStatePending),
		string(models.BatchStateSubmitted),
		string(models.BatchStateInProgress),
	}
}
