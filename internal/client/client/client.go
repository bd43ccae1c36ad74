package client

import (
	"context"
	"io"

	"github.com/dmitrijs2005/objidx/internal/client/models"
)

// Client is the objidx API as seen by the CLI.
type Client interface {
	Ping(ctx context.Context) error
	Upload(ctx context.Context, req *models.UploadRequest) (*models.UploadResult, error)
	Complete(ctx context.Context, objectID string) (*models.Object, error)
	GetObject(ctx context.Context, id string) (*models.Object, error)
	GetFile(ctx context.Context, id string) (*models.File, error)
	FindObjects(ctx context.Context, checksum string) ([]*models.Object, error)
	SearchFiles(ctx context.Context, url, tagKey, tagValue string) ([]*models.File, error)
	Download(ctx context.Context, objectID string, presigned bool) (*models.Locator, error)
	PutPresigned(ctx context.Context, url string, body io.Reader, size int64, contentType string) error
	GetPresigned(ctx context.Context, url string) (io.ReadCloser, error)
}
