package users

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

const userColumns = `id, email, password_hash, totp_secret, temp_token, temp_token_expires_at, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (email, password_hash, totp_secret)
         VALUES ($1, $2, $3)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, user.TOTPSecret).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE email = $1
		 `
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) SetTempToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	query :=
		`UPDATE users SET temp_token = $2, temp_token_expires_at = $3
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectRow(res)
}

func (r *PostgresRepository) FindByTempToken(ctx context.Context, token string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE temp_token = $1
		 `
	return scanUser(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) ConsumeTempToken(ctx context.Context, userID, token string, now time.Time) (bool, error) {
	query :=
		`UPDATE users SET temp_token = NULL, temp_token_expires_at = NULL
		 WHERE id = $1 AND temp_token = $2 AND temp_token_expires_at >= $3
		 `

	res, err := r.db.ExecContext(ctx, query, userID, token, now)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SetTOTPSecret(ctx context.Context, userID string, secret *string) error {
	query :=
		`UPDATE users SET totp_secret = $2
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, userID, secret)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectRow(res)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		user      models.User
		secret    sql.NullString
		tempToken sql.NullString
		expiresAt sql.NullTime
	)

	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &secret, &tempToken, &expiresAt, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if secret.Valid {
		user.TOTPSecret = &secret.String
	}
	if tempToken.Valid {
		user.TempToken = &tempToken.String
	}
	if expiresAt.Valid {
		user.TempTokenExpiresAt = &expiresAt.Time
	}

	return &user, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
