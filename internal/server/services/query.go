package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/dmitrijs2005/objidx/internal/common"
	"github.com/dmitrijs2005/objidx/internal/server/models"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/repomanager"
)

// FileFilter selects files by url or by one extra tag, never both. A url
// ending in common.WildcardSuffix matches as a prefix.
type FileFilter struct {
	URL      string
	TagKey   string
	TagValue string
}

func (f FileFilter) hasTag() bool { return f.TagKey != "" }

// QueryService serves read-only lookups.
type QueryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewQueryService(db *sql.DB, repomanager repomanager.RepositoryManager) *QueryService {
	return &QueryService{db: db, repomanager: repomanager}
}

// GetObject returns an object with the files referencing it.
func (s *QueryService) GetObject(ctx context.Context, id string) (*models.Object, []*models.File, error) {
	if err := validateID("object", id); err != nil {
		return nil, nil, err
	}
	obj, err := s.repomanager.Objects(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	files, err := s.repomanager.Files(s.db).SelectByObject(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return obj, files, nil
}

// GetFile returns a file with its object. The object is nil for a file not
// yet matched to content.
func (s *QueryService) GetFile(ctx context.Context, id string) (*models.File, *models.Object, error) {
	if err := validateID("file", id); err != nil {
		return nil, nil, err
	}
	file, err := s.repomanager.Files(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if file.ObjectID == nil {
		return file, nil, nil
	}
	obj, err := s.repomanager.Objects(s.db).GetByID(ctx, *file.ObjectID)
	if err != nil {
		return nil, nil, err
	}
	return file, obj, nil
}

// FindObjectsByChecksum lists objects with a hex checksum. Deleted objects
// are included so that callers can see why a checksum is refused.
func (s *QueryService) FindObjectsByChecksum(ctx context.Context, checksumHex string) ([]*models.Object, error) {
	checksum, err := hex.DecodeString(checksumHex)
	if err != nil || len(checksum) == 0 {
		return nil, common.Validationf("checksum %q is not hex", checksumHex)
	}
	return s.repomanager.Objects(s.db).SelectByChecksum(ctx, checksum)
}

// FindFilesByURL matches url exactly, or as a prefix when it ends in the
// wildcard suffix.
func (s *QueryService) FindFilesByURL(ctx context.Context, url string) ([]*models.File, error) {
	repo := s.repomanager.Files(s.db)
	if prefix, ok := strings.CutSuffix(url, common.WildcardSuffix); ok {
		return repo.SelectByURLPrefix(ctx, prefix)
	}
	return repo.SelectByURL(ctx, url)
}

// FindFilesByExtraTag matches files whose extra map holds key with the
// string value.
func (s *QueryService) FindFilesByExtraTag(ctx context.Context, key, value string) ([]*models.File, error) {
	return s.repomanager.Files(s.db).SelectByExtraTag(ctx, key, value)
}

// SearchFiles dispatches on the filter. Combining url and tag is a caller
// error.
func (s *QueryService) SearchFiles(ctx context.Context, filter FileFilter) ([]*models.File, error) {
	switch {
	case filter.URL != "" && filter.hasTag():
		return nil, common.ErrConflictingFilters
	case filter.URL != "":
		return s.FindFilesByURL(ctx, filter.URL)
	case filter.hasTag():
		return s.FindFilesByExtraTag(ctx, filter.TagKey, filter.TagValue)
	default:
		return nil, common.Validationf("url or extra filter is required")
	}
}
