package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/dbx"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
)

const postColumns = `id, author_id, title, content, summary, thumbnail, published, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, post *models.Post) (*models.Post, error) {
	query :=
		`INSERT INTO posts (author_id, title, content, summary, thumbnail, published)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING ` + postColumns

	return scanPost(r.db.QueryRowContext(ctx, query,
		post.AuthorID, post.Title, post.Content, post.Summary, post.Thumbnail, post.Published))
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	return scanPost(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1 FOR UPDATE`
	return scanPost(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) Update(ctx context.Context, post *models.Post) (*models.Post, error) {
	query :=
		`UPDATE posts
		 SET title = $2, content = $3, summary = $4, thumbnail = $5, published = $6, updated_at = now()
		 WHERE id = $1
		 RETURNING ` + postColumns

	return scanPost(r.db.QueryRowContext(ctx, query,
		post.ID, post.Title, post.Content, post.Summary, post.Thumbnail, post.Published))
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (*models.Post, error) {
	query := `DELETE FROM posts WHERE id = $1 RETURNING ` + postColumns
	return scanPost(r.db.QueryRowContext(ctx, query, id))
}

func scanPost(row *sql.Row) (*models.Post, error) {
	p := &models.Post{}
	err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.Summary, &p.Thumbnail, &p.Published, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}
