package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/dbx"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
)

const mediaColumns = `id, blob_url, medium_url, storage_key, original_filename, content_type,
		uploader_id, is_public, status, created_at, scheduled_delete_at`

// candidatePredicate selects rows the sweep may purge. $2 is now, $3 is the
// orphan cut-off, $4 and $5 are the uploaded and pending statuses.
const candidatePredicate = `((status = $4 AND created_at < $3)
		   OR (status = $5 AND scheduled_delete_at <= $2))`

// embeddedBy matches a post alias p whose content mentions either URL of
// the media row m.
const embeddedBy = `(strpos(p.content, m.blob_url) > 0
		                OR (m.medium_url IS NOT NULL AND strpos(p.content, m.medium_url) > 0))`

func statusNames(ss ...models.MediaStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func candidateArgs(now, orphanedBefore time.Time) []any {
	return []any{now, orphanedBefore, string(models.MediaUploaded), string(models.MediaPendingDeletion)}
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Media) error {
	query :=
		`INSERT INTO media (id, blob_url, medium_url, storage_key, original_filename, content_type, uploader_id, is_public, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		m.ID, m.BlobURL, m.MediumURL, m.StorageKey, m.OriginalFilename, m.ContentType,
		m.UploaderID, m.IsPublic, string(m.Status)).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id = $1`
	return scanMedia(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) MarkReferenced(ctx context.Context, postID string, urls []string, published bool) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	query :=
		`UPDATE media m
		 SET status = $4,
		     scheduled_delete_at = NULL,
		     is_public = $3 OR EXISTS (
		         SELECT 1 FROM posts p
		         WHERE p.id <> $2 AND p.published
		           AND ` + embeddedBy + `)
		 WHERE m.status = ANY($5)
		   AND (m.blob_url = ANY($1) OR m.medium_url = ANY($1))`

	// rows already referenced only get their visibility refreshed
	to := models.MediaReferenced
	from := statusNames(append(to.Sources(), to)...)
	return r.exec(ctx, query, urls, postID, published, string(to), from)
}

func (r *PostgresRepository) MarkUnreferenced(ctx context.Context, postID string, urls []string, deleteAt time.Time) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	query :=
		`UPDATE media m
		 SET status = $4,
		     scheduled_delete_at = $3,
		     is_public = FALSE
		 WHERE m.status = ANY($5)
		   AND (m.blob_url = ANY($1) OR m.medium_url = ANY($1))
		   AND NOT EXISTS (
		         SELECT 1 FROM posts p
		         WHERE p.id <> $2
		           AND ` + embeddedBy + `)`

	to := models.MediaPendingDeletion
	return r.exec(ctx, query, urls, postID, deleteAt, string(to), statusNames(to.Sources()...))
}

func (r *PostgresRepository) SweepCandidates(ctx context.Context, now, orphanedBefore time.Time, limit int) ([]*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media
		 WHERE ` + candidatePredicate + `
		 ORDER BY created_at
		 LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, append([]any{limit}, candidateArgs(now, orphanedBefore)...)...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var items []*models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return items, nil
}

func (r *PostgresRepository) LockCandidate(ctx context.Context, id string, now, orphanedBefore time.Time) (*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media
		 WHERE id = $1 AND ` + candidatePredicate + `
		 FOR UPDATE SKIP LOCKED`

	return scanMedia(r.db.QueryRowContext(ctx, query, append([]any{id}, candidateArgs(now, orphanedBefore)...)...))
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM media WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMedia(row scanner) (*models.Media, error) {
	var (
		m         models.Media
		mediumURL sql.NullString
		status    string
		deleteAt  sql.NullTime
	)

	err := row.Scan(&m.ID, &m.BlobURL, &mediumURL, &m.StorageKey, &m.OriginalFilename, &m.ContentType,
		&m.UploaderID, &m.IsPublic, &status, &m.CreatedAt, &deleteAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if m.Status, err = models.ParseMediaStatus(status); err != nil {
		return nil, err
	}
	if mediumURL.Valid {
		m.MediumURL = &mediumURL.String
	}
	if deleteAt.Valid {
		m.ScheduledDeleteAt = &deleteAt.Time
	}
	return &m, nil
}
