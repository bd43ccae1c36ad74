package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"path"
	"time"

	"github.com/dmitrijs2005/objidx/internal/common"
	"github.com/dmitrijs2005/objidx/internal/dbx"
	"github.com/dmitrijs2005/objidx/internal/logging"
	sc "github.com/dmitrijs2005/objidx/internal/server/config"
	"github.com/dmitrijs2005/objidx/internal/server/metrics"
	"github.com/dmitrijs2005/objidx/internal/server/models"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Column limits of the objects/files tables.
const (
	maxBucketLen = 63
	maxURLLen    = 2047
)

// IngestRequest is a validated-once request to register content. Checksum
// is the hex digest as sent on the wire.
type IngestRequest struct {
	Checksum    string
	Size        int64
	Bucket      string
	URL         string
	Filename    string
	Direct      bool
	Partial     bool
	MTime       *time.Time
	Mime        *string
	ExtraFile   map[string]any
	ExtraObject map[string]any
	Uploader    models.Uploader
}

// Validate checks required fields and returns the decoded checksum. An
// empty Filename is replaced by the last path element of URL.
func (r *IngestRequest) Validate() ([]byte, error) {
	if r.Checksum == "" {
		return nil, common.Validationf("checksum is required")
	}
	checksum, err := hex.DecodeString(r.Checksum)
	if err != nil {
		return nil, common.Validationf("checksum is not hex: %v", err)
	}
	if n := len(checksum); n != 32 && n != 64 {
		return nil, common.Validationf("checksum must be 32 or 64 bytes, got %d", n)
	}
	if r.Size < 0 {
		return nil, common.Validationf("size must not be negative")
	}
	if r.Bucket == "" {
		return nil, common.Validationf("bucket is required")
	}
	if len(r.Bucket) > maxBucketLen {
		return nil, common.Validationf("bucket longer than %d bytes", maxBucketLen)
	}
	if r.URL == "" {
		return nil, common.Validationf("url is required")
	}
	if len(r.URL) > maxURLLen {
		return nil, common.Validationf("url longer than %d bytes", maxURLLen)
	}
	if r.Filename == "" {
		if base := path.Base(r.URL); base != "." && base != "/" {
			r.Filename = base
		}
	}
	return checksum, nil
}

func validateID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.Validationf("invalid %s id %q", kind, id)
	}
	return nil
}

// IngestService decides new-versus-duplicate for incoming content and
// tracks completion of uploads.
type IngestService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	locator     *LocatorService
	store       BlobStore
	logger      logging.Logger
}

func NewIngestService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config,
	locator *LocatorService, store BlobStore, logger logging.Logger) *IngestService {
	return &IngestService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		locator:     locator,
		store:       store,
		logger:      logger,
	}
}

// Ingest registers a (url, content) pair. New content gets an Object with
// completed=false and an upload locator; content already stored and
// completed gets a download locator instead. Object and File changes commit
// together or not at all.
func (s *IngestService) Ingest(ctx context.Context, req *IngestRequest) (*models.IngestResult, error) {
	checksum, err := req.Validate()
	if err == nil && !s.config.BucketAllowed(req.Bucket) {
		err = common.Validationf("bucket %q is not allowed", req.Bucket)
	}
	if err != nil {
		s.countIngest(err, false)
		return nil, err
	}

	var (
		obj    *models.Object
		file   *models.File
		exists bool
	)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		objRepo := s.repomanager.Objects(tx)
		fileRepo := s.repomanager.Files(tx)

		found, err := objRepo.FindForIngest(ctx, checksum)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			obj = &models.Object{
				Bucket:   req.Bucket,
				Key:      KeyDerive(checksum, req.Filename),
				Size:     req.Size,
				Checksum: checksum,
			}
			MergeObject(obj, req.Mime, req.ExtraObject)
			if err := objRepo.Create(ctx, obj); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if found.Size != req.Size {
				return common.NewConflict(common.ErrSizeMismatch, found.ID)
			}
			if !found.Completed {
				return common.NewConflict(common.ErrIngestConflict, found.ID)
			}
			if found.Deleted {
				return common.NewConflict(common.ErrObjectDeleted, found.ID)
			}
			obj, exists = found, true
			if MergeObject(obj, req.Mime, req.ExtraObject) {
				if err := objRepo.UpdateMetadata(ctx, obj); err != nil {
					return err
				}
			}
		}

		if exists {
			existing, err := fileRepo.GetByURLAndObject(ctx, req.URL, obj.ID)
			switch {
			case errors.Is(err, common.ErrorNotFound):
			case err != nil:
				return err
			default:
				if existing.Direct != req.Direct || existing.Partial != req.Partial {
					return common.NewConflict(common.ErrInconsistentFileFlags, obj.ID)
				}
				file = existing
				if MergeFile(file, req.MTime, req.ExtraFile) {
					return fileRepo.UpdateMetadata(ctx, file)
				}
				return nil
			}
		}

		objectID := obj.ID
		file = &models.File{
			ObjectID: &objectID,
			URL:      req.URL,
			Direct:   req.Direct,
			Partial:  req.Partial,
			Uploader: req.Uploader,
		}
		MergeFile(file, req.MTime, req.ExtraFile)
		return fileRepo.Create(ctx, file)
	})

	if err != nil {
		err = s.resolveRace(ctx, checksum, err)
		s.countIngest(err, false)
		s.logger.Warn(ctx, "ingest rejected", "checksum", req.Checksum, "url", req.URL,
			"object_id", common.ConflictObjectID(err), "error", err)
		return nil, err
	}

	result := &models.IngestResult{File: file, Object: obj, Exists: exists}
	if exists {
		result.Download = s.locator.Locate(obj)
	} else {
		result.Upload = s.locator.Locate(obj)
		if s.config.PresignUploads {
			url, err := s.locator.PresignUpload(ctx, obj)
			if err != nil {
				s.logger.Error(ctx, "presign upload failed", "object_id", obj.ID, "error", err)
			} else {
				result.Upload.URL = url
			}
		}
	}

	s.countIngest(nil, exists)
	s.logger.Info(ctx, "ingested", "object_id", obj.ID, "file_id", file.ID, "exists", exists)
	return result, nil
}

// resolveRace attaches the winning object id to a unique violation raised by
// a concurrent ingestion. The lookup runs after rollback, outside the
// failed transaction.
func (s *IngestService) resolveRace(ctx context.Context, checksum []byte, err error) error {
	if !errors.Is(err, common.ErrIngestConflict) || common.ConflictObjectID(err) != "" {
		return err
	}
	objs, lookupErr := s.repomanager.Objects(s.db).SelectByChecksum(ctx, checksum)
	if lookupErr != nil {
		s.logger.Warn(ctx, "conflict lookup failed", "error", lookupErr)
		return common.NewConflict(common.ErrIngestConflict, "")
	}
	for _, o := range objs {
		if !o.Deleted {
			return common.NewConflict(common.ErrIngestConflict, o.ID)
		}
	}
	return common.NewConflict(common.ErrIngestConflict, "")
}

func (s *IngestService) countIngest(err error, exists bool) {
	outcome := metrics.OutcomeError
	switch {
	case err == nil && exists:
		outcome = metrics.OutcomeDuplicate
	case err == nil:
		outcome = metrics.OutcomeNew
	case errors.Is(err, common.ErrSizeMismatch):
		outcome = metrics.OutcomeSizeMismatch
	case errors.Is(err, common.ErrIngestConflict):
		outcome = metrics.OutcomeConflict
	case errors.Is(err, common.ErrObjectDeleted):
		outcome = metrics.OutcomeDeleted
	case errors.Is(err, common.ErrInconsistentFileFlags):
		outcome = metrics.OutcomeInconsistentFlags
	case errors.Is(err, common.ErrorValidation):
		outcome = metrics.OutcomeInvalid
	}
	metrics.IngestRequestsTotal.WithLabelValues(outcome).Inc()
}

// CompleteIngestion marks an object completed. Completing a completed
// object returns it unchanged. With verification enabled the stored blob
// must exist and have the declared size.
func (s *IngestService) CompleteIngestion(ctx context.Context, id string) (*models.Object, error) {
	if err := validateID("object", id); err != nil {
		return nil, err
	}

	var (
		obj     *models.Object
		already bool
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Objects(tx)

		o, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Completed {
			obj, already = o, true
			return nil
		}
		if o.Deleted {
			return common.NewConflict(common.ErrObjectDeleted, o.ID)
		}
		if s.config.VerifyCompletion {
			if err := s.verifyBlob(ctx, o); err != nil {
				return err
			}
		}
		if err := repo.MarkCompleted(ctx, o.ID); err != nil {
			return err
		}
		o.Completed = true
		obj = o
		return nil
	})

	outcome := metrics.OutcomeCompleted
	switch {
	case err == nil && already:
		outcome = metrics.OutcomeAlreadyCompleted
	case errors.Is(err, common.ErrorNotFound):
		outcome = metrics.OutcomeNotFound
	case errors.Is(err, common.ErrBlobMismatch):
		outcome = metrics.OutcomeBlobMismatch
	case errors.Is(err, common.ErrObjectDeleted):
		outcome = metrics.OutcomeDeleted
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.CompletionsTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		s.logger.Warn(ctx, "completion rejected", "object_id", id, "error", err)
		return nil, err
	}
	s.logger.Info(ctx, "completed", "object_id", obj.ID, "already", already)
	return obj, nil
}

func (s *IngestService) verifyBlob(ctx context.Context, o *models.Object) error {
	info, err := s.store.HeadObject(ctx, o.Bucket, o.Key)
	if errors.Is(err, common.ErrorNotFound) {
		return common.NewConflict(common.ErrBlobMismatch, o.ID)
	}
	if err != nil {
		return err
	}
	if info.Size != o.Size {
		return common.NewConflict(common.ErrBlobMismatch, o.ID)
	}
	return nil
}
