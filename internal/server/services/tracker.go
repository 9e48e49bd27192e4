package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/dbx"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/dmitrijs2005/gophblog/internal/server/mediaref"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/repomanager"
)

// ReferenceTracker keeps media status in step with post content. Every
// method runs on the caller's transaction, next to the post write that
// triggered it.
type ReferenceTracker struct {
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	retention   time.Duration
	nowFn       func() time.Time
}

func NewReferenceTracker(m repomanager.RepositoryManager, retention time.Duration, logger logging.Logger) *ReferenceTracker {
	return &ReferenceTracker{
		repomanager: m,
		logger:      logger.With("module", "tracker"),
		retention:   retention,
		nowFn:       time.Now,
	}
}

// OnPostCreated marks the media embedded in post as referenced, with
// visibility following post.Published.
func (t *ReferenceTracker) OnPostCreated(ctx context.Context, tx dbx.DBTX, post *models.Post) error {
	return t.reference(ctx, tx, post)
}

// OnPostUpdated references everything after embeds, resyncing visibility,
// and schedules deletion of what before embedded and after dropped.
func (t *ReferenceTracker) OnPostUpdated(ctx context.Context, tx dbx.DBTX, before, after *models.Post) error {
	if err := t.reference(ctx, tx, after); err != nil {
		return err
	}
	return t.unreference(ctx, tx, after.ID, mediaref.Dropped(before.Content, after.Content))
}

// OnPostDeleted schedules deletion of every media item post embedded. The
// post row must already be gone or be excluded by id.
func (t *ReferenceTracker) OnPostDeleted(ctx context.Context, tx dbx.DBTX, post *models.Post) error {
	return t.unreference(ctx, tx, post.ID, mediaref.References(post.Content))
}

func (t *ReferenceTracker) reference(ctx context.Context, tx dbx.DBTX, post *models.Post) error {
	urls := mediaref.References(post.Content)
	n, err := t.repomanager.Media(tx).MarkReferenced(ctx, post.ID, urls, post.Published)
	if err != nil {
		return fmt.Errorf("error referencing media: %w", err)
	}
	t.logger.Debug(ctx, "media referenced", "post_id", post.ID, "urls", len(urls), "updated", n)
	return nil
}

func (t *ReferenceTracker) unreference(ctx context.Context, tx dbx.DBTX, postID string, urls []string) error {
	deleteAt := t.nowFn().Add(t.retention)
	n, err := t.repomanager.Media(tx).MarkUnreferenced(ctx, postID, urls, deleteAt)
	if err != nil {
		return fmt.Errorf("error unreferencing media: %w", err)
	}
	t.logger.Debug(ctx, "media unreferenced", "post_id", postID, "urls", len(urls), "scheduled", n)
	return nil
}
