// Package media stores the index of uploaded objects and drives their
// lifecycle status with set-based conditional updates. Each transition
// method is a single statement keyed by the current status, so applying it
// twice is a no-op and concurrent writers converge.
package media

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, m *models.Media) error
	GetByID(ctx context.Context, id string) (*models.Media, error)

	// MarkReferenced moves every media item whose blob or medium URL is in
	// urls to REFERENCED, clearing any scheduled deletion, and syncs its
	// visibility: public when published is true or another published post
	// (other than postID) embeds it.
	MarkReferenced(ctx context.Context, postID string, urls []string, published bool) (int64, error)

	// MarkUnreferenced moves REFERENCED items in urls to PENDING_DELETION
	// with the given deletion time and forces them private, unless a post
	// other than postID still embeds them.
	MarkUnreferenced(ctx context.Context, postID string, urls []string, deleteAt time.Time) (int64, error)

	// SweepCandidates lists UPLOADED items created before orphanedBefore and
	// PENDING_DELETION items scheduled at or before now.
	SweepCandidates(ctx context.Context, now, orphanedBefore time.Time, limit int) ([]*models.Media, error)

	// LockCandidate re-reads and locks one candidate inside a transaction.
	// It returns common.ErrorNotFound when the item no longer qualifies or
	// another sweep holds it.
	LockCandidate(ctx context.Context, id string, now, orphanedBefore time.Time) (*models.Media, error)

	Delete(ctx context.Context, id string) error
}
