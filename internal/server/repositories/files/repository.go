package files

import (
	"context"

	"github.com/dmitrijs2005/objidx/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	GetByURLAndObject(ctx context.Context, url, objectID string) (*models.File, error)
	UpdateMetadata(ctx context.Context, file *models.File) error
	SelectByURL(ctx context.Context, url string) ([]*models.File, error)
	SelectByURLPrefix(ctx context.Context, prefix string) ([]*models.File, error)
	SelectByExtraTag(ctx context.Context, key, value string) ([]*models.File, error)
	SelectByObject(ctx context.Context, objectID string) ([]*models.File, error)
}
