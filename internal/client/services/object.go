// Package services implements the client workflows on top of the API
// client: registering and uploading local files, finishing interrupted
// uploads, and fetching stored objects.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/objidx/internal/client/checksum"
	"github.com/dmitrijs2005/objidx/internal/client/client"
	"github.com/dmitrijs2005/objidx/internal/client/journal"
	"github.com/dmitrijs2005/objidx/internal/client/models"
)

// Journal is the local state the service keeps between runs.
type Journal interface {
	LookupChecksum(ctx context.Context, path, algo string, size int64, mtime time.Time) (string, bool, error)
	StoreChecksum(ctx context.Context, path, algo string, size int64, mtime time.Time, sum string) error
	RecordPending(ctx context.Context, u journal.Upload) error
	MarkCompleted(ctx context.Context, objectID string) error
	Pending(ctx context.Context) ([]*journal.Upload, error)
}

// BlobStore moves bytes with S3 credentials when the server hands out no
// presigned URL. *blobstore.Store satisfies it.
type BlobStore interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

var ErrNoTransport = errors.New("no presigned URL and no S3 credentials configured")

// Settings are the per-client defaults applied to every upload.
type Settings struct {
	Bucket   string
	Algo     string
	User     string
	Software string
	Host     string
}

// UploadOptions tune a single upload. Zero values mean defaults.
type UploadOptions struct {
	URL     string
	Bucket  string
	Mime    string
	Tags    map[string]any
	Extra   map[string]any
	Partial bool
	Direct  *bool
}

// UploadOutcome reports what an upload did.
type UploadOutcome struct {
	Result      *models.UploadResult
	Object      *models.Object
	Checksum    string
	Transferred bool
}

type ObjectService interface {
	Upload(ctx context.Context, path string, opts UploadOptions) (*UploadOutcome, error)
	ResumePending(ctx context.Context) (int, error)
	Download(ctx context.Context, objectID string, w io.Writer) (int64, error)
}

type objectService struct {
	client   client.Client
	journal  Journal
	blobs    BlobStore
	settings Settings
}

// NewObjectService wires the workflows. journal and blobs may be nil.
func NewObjectService(c client.Client, j Journal, blobs BlobStore, s Settings) ObjectService {
	return &objectService{client: c, journal: j, blobs: blobs, settings: s}
}

// DefaultURL is the File url used when none is given:
// file://<host>/<absolute path>.
func DefaultURL(host, absPath string) string {
	u := url.URL{Scheme: "file", Host: host, Path: filepath.ToSlash(absPath)}
	return u.String()
}

// ParseTags turns key=value arguments into an extra map.
func ParseTags(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("tag %q must be key=value", a)
		}
		out[k] = v
	}
	return out, nil
}

func (s *objectService) Upload(ctx context.Context, path string, opts UploadOptions) (*UploadOutcome, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", abs)
	}

	sum, err := s.checksum(ctx, abs, info)
	if err != nil {
		return nil, err
	}

	contentType, err := detectMime(abs, opts.Mime)
	if err != nil {
		return nil, err
	}

	req := s.buildRequest(abs, info, sum, contentType, opts)

	res, err := s.client.Upload(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("register upload: %w", err)
	}

	out := &UploadOutcome{Result: res, Checksum: sum}
	if res.Exists || res.Upload == nil {
		return out, nil
	}

	if err := s.transfer(ctx, abs, info.Size(), contentType, res.Upload.S3); err != nil {
		return nil, err
	}
	out.Transferred = true

	if s.journal != nil {
		err := s.journal.RecordPending(ctx, journal.Upload{
			ObjectID: res.Upload.ObjectID,
			FileID:   res.File.UUID,
			Path:     abs,
			URL:      res.File.URL,
		})
		if err != nil {
			return nil, err
		}
	}

	obj, err := s.complete(ctx, res.Upload.ObjectID)
	if err != nil {
		return nil, err
	}
	out.Object = obj

	return out, nil
}

func (s *objectService) buildRequest(abs string, info os.FileInfo, sum, contentType string, opts UploadOptions) *models.UploadRequest {
	fileURL := opts.URL
	if fileURL == "" {
		fileURL = DefaultURL(s.settings.Host, abs)
	}
	bucket := opts.Bucket
	if bucket == "" {
		bucket = s.settings.Bucket
	}

	extraFile := map[string]any{}
	for k, v := range opts.Extra {
		extraFile[k] = v
	}
	for k, v := range opts.Tags {
		extraFile[k] = v
	}
	if len(extraFile) == 0 {
		extraFile = nil
	}

	mtime := info.ModTime().UTC()
	return &models.UploadRequest{
		Checksum:  sum,
		ObjSize:   info.Size(),
		Bucket:    bucket,
		URL:       fileURL,
		Filename:  filepath.Base(abs),
		Direct:    opts.Direct,
		Partial:   opts.Partial,
		MTime:     &mtime,
		Mime:      contentType,
		ExtraFile: extraFile,
		ULUser:    s.settings.User,
		ULSw:      s.settings.Software,
		ULHost:    s.settings.Host,
	}
}

func (s *objectService) checksum(ctx context.Context, abs string, info os.FileInfo) (string, error) {
	algo := s.settings.Algo
	if s.journal != nil {
		sum, ok, err := s.journal.LookupChecksum(ctx, abs, algo, info.Size(), info.ModTime())
		if err != nil {
			return "", err
		}
		if ok {
			return sum, nil
		}
	}

	sum, n, err := checksum.File(algo, abs)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", abs, err)
	}
	if n != info.Size() {
		return "", fmt.Errorf("%s changed while reading", abs)
	}

	if s.journal != nil {
		if err := s.journal.StoreChecksum(ctx, abs, algo, info.Size(), info.ModTime(), sum); err != nil {
			return "", err
		}
	}
	return sum, nil
}

func (s *objectService) transfer(ctx context.Context, abs string, size int64, contentType string, loc *models.Locator) error {
	if loc == nil {
		return errors.New("server returned no upload locator")
	}

	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()

	switch {
	case loc.URL != "":
		err = s.client.PutPresigned(ctx, loc.URL, f, size, contentType)
	case s.blobs != nil:
		err = s.blobs.PutObject(ctx, loc.Bucket, loc.Key, f, size, contentType)
	default:
		return ErrNoTransport
	}
	if err != nil {
		return fmt.Errorf("transfer %s: %w", abs, err)
	}
	return nil
}

func (s *objectService) complete(ctx context.Context, objectID string) (*models.Object, error) {
	obj, err := s.client.Complete(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("complete object %s: %w", objectID, err)
	}
	if s.journal != nil {
		if err := s.journal.MarkCompleted(ctx, objectID); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// ResumePending completes uploads whose bytes were sent in an earlier run.
// Objects the server no longer knows are dropped from the journal.
func (s *objectService) ResumePending(ctx context.Context) (int, error) {
	if s.journal == nil {
		return 0, nil
	}

	pending, err := s.journal.Pending(ctx)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, u := range pending {
		_, err := s.complete(ctx, u.ObjectID)
		switch {
		case err == nil:
			done++
		case errors.Is(err, client.ErrNotFound):
			if err := s.journal.MarkCompleted(ctx, u.ObjectID); err != nil {
				return done, err
			}
		default:
			return done, err
		}
	}
	return done, nil
}

// Download streams the object's bytes into w, through a presigned URL when
// the server returns one and with S3 credentials otherwise.
func (s *objectService) Download(ctx context.Context, objectID string, w io.Writer) (int64, error) {
	loc, err := s.client.Download(ctx, objectID, true)
	if err != nil {
		return 0, err
	}

	var body io.ReadCloser
	switch {
	case loc.URL != "":
		body, err = s.client.GetPresigned(ctx, loc.URL)
	case s.blobs != nil:
		body, err = s.blobs.GetObject(ctx, loc.Bucket, loc.Key)
	default:
		return 0, ErrNoTransport
	}
	if err != nil {
		return 0, err
	}
	defer body.Close()

	return io.Copy(w, body)
}

// detectMime prefers an explicit type, then the extension, then sniffing.
func detectMime(path, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}
