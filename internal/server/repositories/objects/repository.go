package objects

import (
	"context"

	"github.com/dmitrijs2005/objidx/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, object *models.Object) error
	GetByID(ctx context.Context, id string) (*models.Object, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Object, error)
	FindForIngest(ctx context.Context, checksum []byte) (*models.Object, error)
	SelectByChecksum(ctx context.Context, checksum []byte) ([]*models.Object, error)
	MarkCompleted(ctx context.Context, id string) error
	UpdateMetadata(ctx context.Context, object *models.Object) error
}
