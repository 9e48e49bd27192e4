// Package sessions declares the server-side repository contract for
// signed-in sessions.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/server/models"
)

// Repository defines operations for creating, resolving and revoking sessions.
type Repository interface {
	// Create stores a session for userID expiring at expires.
	Create(ctx context.Context, id, userID string, expires time.Time) error

	// Find returns the session by id. Implementations return a not-found
	// error when the session is absent.
	Find(ctx context.Context, id string) (*models.Session, error)

	// Delete removes a session by id. Deleting a non-existent session is
	// not an error.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes sessions that expired before now and returns
	// how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
