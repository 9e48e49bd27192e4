// Package users declares the user repository contract and its PostgreSQL
// implementation.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)

	// SetTempToken stores the sign-in challenge token, replacing any prior one.
	SetTempToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	// FindByTempToken returns the user holding token, expired or not.
	FindByTempToken(ctx context.Context, token string) (*models.User, error)
	// ConsumeTempToken clears the token only if it still matches and has not
	// expired at now. It reports whether this call won the clear.
	ConsumeTempToken(ctx context.Context, userID, token string, now time.Time) (bool, error)

	// SetTOTPSecret enables (non-nil) or disables (nil) the second factor.
	SetTOTPSecret(ctx context.Context, userID string, secret *string) error
}
