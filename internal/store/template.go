package store

import (
	"context"

	"github.com/phrazzld/revival-api/internal/domain"
)

// TemplateStore defines persistence for the compose-step poster templates.
type TemplateStore interface {
	// Create saves a new poster template.
	Create(ctx context.Context, tmpl *domain.PosterTemplate) error

	// Random returns one enabled template chosen uniformly at random.
	// Returns ErrTemplateNotFound if no enabled template exists.
	Random(ctx context.Context) (*domain.PosterTemplate, error)
}
