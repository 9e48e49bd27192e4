// Package posts stores blog posts. Only the fields the media lifecycle and
// the post endpoints need are exposed.
package posts

import (
	"context"

	"github.com/dmitrijs2005/gophblog/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, post *models.Post) (*models.Post, error)
	Get(ctx context.Context, id string) (*models.Post, error)
	// GetForUpdate reads a post and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Post, error)
	Update(ctx context.Context, post *models.Post) (*models.Post, error)
	// Delete removes the post and returns it as it was.
	Delete(ctx context.Context, id string) (*models.Post, error)
}
