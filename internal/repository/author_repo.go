package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/clickbait-pipeline/internal/database"
	"github.com/clickbait-pipeline/internal/models"
)

// authorRepo is the concrete implementation of AuthorRepository
type authorRepo struct {
	db *database.DB
}

// NewAuthorRepo creates a new author repository
func NewAuthorRepo(db *database.DB) AuthorRepository {
	return &authorRepo{db: db}
}

const authorColumns = `id, name, publisher_name, external_author_id,
	article_count, average_score, max_score, created_at, updated_at`

// Insert stores a new author. A unique violation on (name, publisher_name)
// surfaces as-is; the caller resolves the race by re-reading.
func (r *authorRepo) Insert(ctx context.Context, author *models.Author) error {
	query := `
		INSERT INTO authors (id, name, publisher_name, external_author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		author.ID, author.Name, author.PublisherName,
		nullString(author.ExternalAuthorID), author.CreatedAt,
	)
	return err
}

// GetByID retrieves an author by ID
func (r *authorRepo) GetByID(ctx context.Context, id string) (*models.Author, error) {
	query := `SELECT ` + authorColumns + ` FROM authors WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByNamePublisher retrieves an author by the composite lookup key
func (r *authorRepo) GetByNamePublisher(ctx context.Context, name, publisher string) (*models.Author, error) {
	query := `SELECT ` + authorColumns + ` FROM authors WHERE name = $1 AND publisher_name = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, name, publisher))
}

// ListIDs returns all author IDs in creation order
func (r *authorRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM authors ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the total number of authors
func (r *authorRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM authors`).Scan(&count)
	return count, err
}

// UpdateAggregates overwrites the derived statistics for one author
func (r *authorRepo) UpdateAggregates(ctx context.Context, id string, agg models.AuthorAggregates) error {
	query := `
		UPDATE authors
		SET article_count = $1, average_score = $2, max_score = $3, updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query,
		agg.ArticleCount, agg.AverageScore, agg.MaxScore, time.Now(), id,
	)
	return err
}

func (r *authorRepo) scanOne(row *sql.Row) (*models.Author, error) {
	var author models.Author
	var externalID sql.NullString

	err := row.Scan(
		&author.ID, &author.Name, &author.PublisherName, &externalID,
		&author.ArticleCount, &author.AverageScore, &author.MaxScore,
		&author.CreatedAt, &author.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	author.ExternalAuthorID = externalID.String
	return &author, nil
}
