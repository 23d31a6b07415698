package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/clickbait-pipeline/internal/database"
	"github.com/clickbait-pipeline/internal/models"
	"github.com/lib/pq"
)

// articleRepo is the concrete implementation of ArticleRepository
type articleRepo struct {
	db *database.DB
}

// NewArticleRepo creates a new article repository
func NewArticleRepo(db *database.DB) ArticleRepository {
	return &articleRepo{db: db}
}

const articleColumns = `id, external_url, title, content, author_id, publisher_name,
	published_at, score, score_explanation, scoring_status, batch_job_id, created_at, updated_at`

// Insert stores a new article. A unique violation on external_url surfaces
// as-is so the caller can classify the duplicate.
func (r *articleRepo) Insert(ctx context.Context, article *models.Article) error {
	query := `
		INSERT INTO articles (id, external_url, title, content, author_id, publisher_name,
			published_at, scoring_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		article.ID, article.ExternalURL, article.Title, article.Content,
		article.AuthorID, article.PublisherName, article.PublishedAt,
		article.ScoringStatus, article.CreatedAt,
	)
	return err
}

// GetByID retrieves an article by ID
func (r *articleRepo) GetByID(ctx context.Context, id string) (*models.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByExternalURL retrieves an article by its dedup key
func (r *articleRepo) GetByExternalURL(ctx context.Context, url string) (*models.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE external_url = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, url))
}

// GetByIDs retrieves articles for a member set
func (r *articleRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = ANY($1) ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, pq.StringArray(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		article, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// ApplyScore writes a validated score onto a submitted member of the given
// job. The WHERE clause makes re-application a no-op: only articles still in
// submitted state for this job are touched.
func (r *articleRepo) ApplyScore(ctx context.Context, articleID, jobID string, score int, explanation string) (bool, error) {
	query := `
		UPDATE articles
		SET score = $1, score_explanation = $2, scoring_status = $3, updated_at = $4
		WHERE id = $5 AND batch_job_id = $6 AND scoring_status = $7
	`
	result, err := r.db.ExecContext(ctx, query,
		score, explanation, models.ScoringStatusScored, time.Now(),
		articleID, jobID, models.ScoringStatusSubmitted,
	)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkFailed marks a submitted member of the given job as failed
func (r *articleRepo) MarkFailed(ctx context.Context, articleID, jobID string) (bool, error) {
	query := `
		UPDATE articles
		SET scoring_status = $1, updated_at = $2
		WHERE id = $3 AND batch_job_id = $4 AND scoring_status = $5
	`
	result, err := r.db.ExecContext(ctx, query,
		models.ScoringStatusFailed, time.Now(),
		articleID, jobID, models.ScoringStatusSubmitted,
	)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ReleaseSubmitted reverts every still-submitted member of a job back to
// unscored so the articles re-enter the batch formation pool.
func (r *articleRepo) ReleaseSubmitted(ctx context.Context, jobID string) (int, error) {
	query := `
		UPDATE articles
		SET scoring_status = $1, batch_job_id = NULL, updated_at = $2
		WHERE batch_job_id = $3 AND scoring_status = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		models.ScoringStatusUnscored, time.Now(),
		jobID, models.ScoringStatusSubmitted,
	)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// RequeueFailed flips failed articles back to unscored (operator action)
func (r *articleRepo) RequeueFailed(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `
		UPDATE articles
		SET scoring_status = $1, score = NULL, score_explanation = NULL,
			batch_job_id = NULL, updated_at = $2
		WHERE id = ANY($3) AND scoring_status = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		models.ScoringStatusUnscored, time.Now(),
		pq.StringArray(ids), models.ScoringStatusFailed,
	)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// CountByStatus returns article totals per scoring status
func (r *articleRepo) CountByStatus(ctx context.Context) (map[models.ScoringStatus]int, error) {
	query := `SELECT scoring_status, COUNT(*) FROM articles GROUP BY scoring_status`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatusCounts(rows)
}

// StatusCountsForIDs returns per-status totals for a member set
func (r *articleRepo) StatusCountsForIDs(ctx context.Context, ids []string) (map[models.ScoringStatus]int, error) {
	if len(ids) == 0 {
		return map[models.ScoringStatus]int{}, nil
	}
	query := `SELECT scoring_status, COUNT(*) FROM articles WHERE id = ANY($1) GROUP BY scoring_status`
	rows, err := r.db.QueryContext(ctx, query, pq.StringArray(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatusCounts(rows)
}

// AggregatesForAuthor recomputes the authoritative aggregate values for one
// author from the articles table. Averages and maxima consider scored
// articles only; the count covers all of the author's articles.
func (r *articleRepo) AggregatesForAuthor(ctx context.Context, authorID string) (models.AuthorAggregates, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(ROUND(AVG(score) FILTER (WHERE scoring_status = $1), 2), 0),
			COALESCE(MAX(score) FILTER (WHERE scoring_status = $1), 0)
		FROM articles WHERE author_id = $2
	`
	var agg models.AuthorAggregates
	err := r.db.QueryRowContext(ctx, query, models.ScoringStatusScored, authorID).Scan(
		&agg.ArticleCount, &agg.AverageScore, &agg.MaxScore,
	)
	if err != nil {
		return models.AuthorAggregates{}, err
	}
	return agg, nil
}

// ListHighScores returns scored articles at or above minScore published
// since the given instant, highest score first
func (r *articleRepo) ListHighScores(ctx context.Context, minScore int, since time.Time) ([]*models.Article, error) {
	query := `SELECT ` + articleColumns + `
		FROM articles
		WHERE scoring_status = $1 AND score >= $2 AND published_at >= $3
		ORDER BY score DESC, published_at DESC`
	rows, err := r.db.QueryContext(ctx, query, models.ScoringStatusScored, minScore, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		article, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *articleRepo) scanOne(row *sql.Row) (*models.Article, error) {
	article, err := r.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return article, nil
}

func (r *articleRepo) scanRow(row rowScanner) (*models.Article, error) {
	var article models.Article
	var score sql.NullInt64
	var explanation, batchJobID sql.NullString

	err := row.Scan(
		&article.ID, &article.ExternalURL, &article.Title, &article.Content,
		&article.AuthorID, &article.PublisherName, &article.PublishedAt,
		&score, &explanation, &article.ScoringStatus, &batchJobID,
		&article.CreatedAt, &article.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if score.Valid {
		v := int(score.Int64)
		article.Score = &v
	}
	if explanation.Valid {
		v := explanation.String
		article.ScoreExplanation = &v
	}
	if batchJobID.Valid {
		v := batchJobID.String
		article.BatchJobID = &v
	}
	return &article, nil
}

func scanStatusCounts(rows *sql.Rows) (map[models.ScoringStatus]int, error) {
	counts := make(map[models.ScoringStatus]int)
	for rows.Next() {
		var status models.ScoringStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// helper to convert empty string to NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
