package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/dbx"
	"github.com/dmitrijs2005/gophblog/internal/server/mediaref"
	"github.com/dmitrijs2005/gophblog/internal/server/models"
	"github.com/dmitrijs2005/gophblog/internal/server/repositories/repomanager"
)

// PostInput carries the editable fields of a post.
type PostInput struct {
	Title     string
	Content   string
	Summary   string
	Thumbnail string
	Published bool
}

// PostService writes posts and feeds every write through the reference
// tracker inside the same transaction.
type PostService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tracker     *ReferenceTracker
}

func NewPostService(db *sql.DB, m repomanager.RepositoryManager, tracker *ReferenceTracker) *PostService {
	return &PostService{db: db, repomanager: m, tracker: tracker}
}

func (s *PostService) Create(ctx context.Context, authorID string, in PostInput) (*models.Post, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	post := in.apply(&models.Post{AuthorID: authorID})

	var created *models.Post
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if created, err = s.repomanager.Posts(tx).Create(ctx, post); err != nil {
			return fmt.Errorf("error creating post: %w", err)
		}
		return s.tracker.OnPostCreated(ctx, tx, created)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get returns a post. Drafts are only visible to authenticated callers.
func (s *PostService) Get(ctx context.Context, id string, authenticated bool) (*models.Post, error) {
	post, err := s.repomanager.Posts(s.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !post.Published && !authenticated {
		return nil, common.ErrorNotFound
	}
	return post, nil
}

func (s *PostService) Update(ctx context.Context, id string, in PostInput) (*models.Post, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var updated *models.Post
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Posts(tx)

		before, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		after := in.apply(&models.Post{ID: before.ID, AuthorID: before.AuthorID})
		if updated, err = repo.Update(ctx, after); err != nil {
			return fmt.Errorf("error updating post: %w", err)
		}
		return s.tracker.OnPostUpdated(ctx, tx, before, updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the post, then schedules its media for deletion using the
// content the removed row still carried.
func (s *PostService) Delete(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		removed, err := s.repomanager.Posts(tx).Delete(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return err
			}
			return fmt.Errorf("error deleting post: %w", err)
		}
		return s.tracker.OnPostDeleted(ctx, tx, removed)
	})
}

func (in PostInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", common.ErrValidation)
	}
	return nil
}

// apply copies the input onto p. An empty thumbnail defaults to the first
// media embedded in the content.
func (in PostInput) apply(p *models.Post) *models.Post {
	p.Title = strings.TrimSpace(in.Title)
	p.Content = in.Content
	p.Summary = in.Summary
	p.Thumbnail = in.Thumbnail
	p.Published = in.Published
	if p.Thumbnail == "" {
		p.Thumbnail = mediaref.First(in.Content)
	}
	return p
}
