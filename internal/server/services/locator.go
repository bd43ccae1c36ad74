package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/objidx/internal/blobstore"
	"github.com/dmitrijs2005/objidx/internal/common"
	"github.com/dmitrijs2005/objidx/internal/logging"
	sc "github.com/dmitrijs2005/objidx/internal/server/config"
	"github.com/dmitrijs2005/objidx/internal/server/metrics"
	"github.com/dmitrijs2005/objidx/internal/server/models"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/repomanager"
)

// BlobStore is the part of the object storage the server needs.
type BlobStore interface {
	HeadObject(ctx context.Context, bucket, key string) (*blobstore.ObjectInfo, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// PresignCache remembers presigned GET URLs.
type PresignCache interface {
	Get(ctx context.Context, bucket, key string) (string, bool, error)
	Set(ctx context.Context, bucket, key, url string, ttl time.Duration) error
}

// LocatorService turns objects into storage locators and presigned URLs.
type LocatorService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	store       BlobStore
	cache       PresignCache
	logger      logging.Logger
}

// NewLocatorService builds a LocatorService. cache may be nil.
func NewLocatorService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config,
	store BlobStore, cache PresignCache, logger logging.Logger) *LocatorService {
	return &LocatorService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		store:       store,
		cache:       cache,
		logger:      logger,
	}
}

func (s *LocatorService) expiry() time.Duration {
	if s.config.PresignExpiry > 0 {
		return s.config.PresignExpiry
	}
	return common.DefaultPresignExpiry
}

// Locate returns the raw (server, bucket, key) triple of an object.
func (s *LocatorService) Locate(obj *models.Object) *models.Locator {
	return &models.Locator{Server: s.config.StorageServer, Bucket: obj.Bucket, Key: obj.Key}
}

// ResolveDownload returns where to fetch an object's bytes. With presigned
// set the locator carries a time-limited GET URL that is never persisted.
func (s *LocatorService) ResolveDownload(ctx context.Context, id string, presigned bool) (*models.Locator, error) {
	if err := validateID("object", id); err != nil {
		return nil, err
	}

	obj, err := s.repomanager.Objects(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj.Deleted {
		return nil, common.NewConflict(common.ErrObjectDeleted, obj.ID)
	}
	if !obj.Completed {
		return nil, common.NewConflict(common.ErrObjectIncomplete, obj.ID)
	}

	loc := s.Locate(obj)
	if !presigned {
		return loc, nil
	}

	url, err := s.presignGet(ctx, obj.Bucket, obj.Key)
	if err != nil {
		return nil, err
	}
	loc.URL = url
	return loc, nil
}

// presignGet consults the cache first. Cache failures are logged and
// treated as a miss.
func (s *LocatorService) presignGet(ctx context.Context, bucket, key string) (string, error) {
	if s.cache != nil {
		url, ok, err := s.cache.Get(ctx, bucket, key)
		if err != nil {
			s.logger.Warn(ctx, "presign cache get failed", "bucket", bucket, "key", key, "error", err)
		} else if ok {
			metrics.PresignTotal.WithLabelValues(http.MethodGet, "hit").Inc()
			return url, nil
		}
	}

	ttl := s.expiry()
	url, err := s.store.PresignGet(ctx, bucket, key, ttl)
	if err != nil {
		return "", err
	}

	cacheLabel := "none"
	if s.cache != nil {
		cacheLabel = "miss"
		if err := s.cache.Set(ctx, bucket, key, url, ttl/2); err != nil {
			s.logger.Warn(ctx, "presign cache set failed", "bucket", bucket, "key", key, "error", err)
		}
	}
	metrics.PresignTotal.WithLabelValues(http.MethodGet, cacheLabel).Inc()
	return url, nil
}

// PresignUpload mints a PUT URL for a freshly created object.
func (s *LocatorService) PresignUpload(ctx context.Context, obj *models.Object) (string, error) {
	url, err := s.store.PresignPut(ctx, obj.Bucket, obj.Key, s.expiry())
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	metrics.PresignTotal.WithLabelValues(http.MethodPut, "none").Inc()
	return url, nil
}
