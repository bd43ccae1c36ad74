package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/objidx/internal/blobstore"
	"github.com/dmitrijs2005/objidx/internal/common"
	"github.com/dmitrijs2005/objidx/internal/dbx"
	"github.com/dmitrijs2005/objidx/internal/logging"
	sc "github.com/dmitrijs2005/objidx/internal/server/config"
	"github.com/dmitrijs2005/objidx/internal/server/models"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/files"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/objects"
	"github.com/dmitrijs2005/objidx/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// -------- in-memory store --------

// memStore mimics the uniqueness rules of the schema: one live object per
// checksum, unique (bucket, key), unique (url, object), and the object
// foreign key on files.
type memStore struct {
	mu        sync.Mutex
	objects   map[string]*models.Object
	objOrder  []string
	files     map[string]*models.File
	fileOrder []string
	clock     time.Time

	findErr    error
	hideOnFind bool
	markCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		objects: map[string]*models.Object{},
		files:   map[string]*models.File{},
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func cloneObject(o *models.Object) *models.Object {
	c := *o
	c.Checksum = append([]byte(nil), o.Checksum...)
	if o.Mime != nil {
		m := *o.Mime
		c.Mime = &m
	}
	c.Extra = cloneMap(o.Extra)
	return &c
}

func cloneFile(f *models.File) *models.File {
	c := *f
	if f.ObjectID != nil {
		id := *f.ObjectID
		c.ObjectID = &id
	}
	if f.ModifiedAt != nil {
		t := *f.ModifiedAt
		c.ModifiedAt = &t
	}
	c.Extra = cloneMap(f.Extra)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// seedObject inserts an object directly, bypassing the service.
func (s *memStore) seedObject(o *models.Object) *models.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = s.tick()
	s.objects[o.ID] = cloneObject(o)
	s.objOrder = append(s.objOrder, o.ID)
	return o
}

func (s *memStore) object(id string) *models.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.objects[id]; ok {
		return cloneObject(o)
	}
	return nil
}

func (s *memStore) objectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *memStore) fileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *memStore) filesByURL(url string) []*models.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.File
	for _, id := range s.fileOrder {
		if f := s.files[id]; f.URL == url {
			out = append(out, cloneFile(f))
		}
	}
	return out
}

type memObjects struct{ s *memStore }

func (r *memObjects) Create(ctx context.Context, o *models.Object) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.objOrder {
		ex := s.objects[id]
		if !ex.Deleted && string(ex.Checksum) == string(o.Checksum) {
			return fmt.Errorf("insert object (objects_checksum_live_key): %w", common.ErrIngestConflict)
		}
		if ex.Bucket == o.Bucket && ex.Key == o.Key {
			return fmt.Errorf("insert object (objects_bucket_key_key): %w", common.ErrIngestConflict)
		}
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = s.tick()
	o.Completed, o.Deleted = false, false
	s.objects[o.ID] = cloneObject(o)
	s.objOrder = append(s.objOrder, o.ID)
	return nil
}

func (r *memObjects) GetByID(ctx context.Context, id string) (*models.Object, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.objects[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneObject(o), nil
}

func (r *memObjects) GetByIDForUpdate(ctx context.Context, id string) (*models.Object, error) {
	return r.GetByID(ctx, id)
}

func (r *memObjects) FindForIngest(ctx context.Context, checksum []byte) (*models.Object, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.hideOnFind {
		return nil, common.ErrorNotFound
	}
	var deleted *models.Object
	for _, id := range s.objOrder {
		o := s.objects[id]
		if string(o.Checksum) != string(checksum) {
			continue
		}
		if !o.Deleted {
			return cloneObject(o), nil
		}
		deleted = o
	}
	if deleted != nil {
		return cloneObject(deleted), nil
	}
	return nil, common.ErrorNotFound
}

func (r *memObjects) SelectByChecksum(ctx context.Context, checksum []byte) ([]*models.Object, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Object
	for _, id := range s.objOrder {
		if o := s.objects[id]; string(o.Checksum) == string(checksum) {
			out = append(out, cloneObject(o))
		}
	}
	return out, nil
}

func (r *memObjects) MarkCompleted(ctx context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls++
	o, ok := s.objects[id]
	if !ok {
		return common.ErrorNotFound
	}
	o.Completed = true
	return nil
}

func (r *memObjects) UpdateMetadata(ctx context.Context, o *models.Object) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.objects[o.ID]
	if !ok {
		return common.ErrorNotFound
	}
	c := cloneObject(o)
	ex.Mime, ex.Extra = c.Mime, c.Extra
	return nil
}

type memFiles struct{ s *memStore }

func (r *memFiles) Create(ctx context.Context, f *models.File) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ObjectID != nil {
		if _, ok := s.objects[*f.ObjectID]; !ok {
			return fmt.Errorf("insert file: object: %w", common.ErrorNotFound)
		}
	}
	for _, id := range s.fileOrder {
		ex := s.files[id]
		if ex.URL == f.URL && ex.ObjectID != nil && f.ObjectID != nil && *ex.ObjectID == *f.ObjectID {
			return fmt.Errorf("insert file (files_url_obj_key): %w", common.ErrIngestConflict)
		}
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = s.tick()
	s.files[f.ID] = cloneFile(f)
	s.fileOrder = append(s.fileOrder, f.ID)
	return nil
}

func (r *memFiles) GetByID(ctx context.Context, id string) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneFile(f), nil
}

func (r *memFiles) GetByURLAndObject(ctx context.Context, url, objectID string) (*models.File, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.fileOrder {
		f := s.files[id]
		if f.URL == url && f.ObjectID != nil && *f.ObjectID == objectID {
			return cloneFile(f), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memFiles) UpdateMetadata(ctx context.Context, f *models.File) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.files[f.ID]
	if !ok {
		return common.ErrorNotFound
	}
	c := cloneFile(f)
	ex.ModifiedAt, ex.Extra = c.ModifiedAt, c.Extra
	return nil
}

func (r *memFiles) selectWhere(match func(*models.File) bool) []*models.File {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.File
	for _, id := range s.fileOrder {
		if f := s.files[id]; match(f) {
			out = append(out, cloneFile(f))
		}
	}
	return out
}

func (r *memFiles) SelectByURL(ctx context.Context, url string) ([]*models.File, error) {
	return r.selectWhere(func(f *models.File) bool { return f.URL == url }), nil
}

func (r *memFiles) SelectByURLPrefix(ctx context.Context, prefix string) ([]*models.File, error) {
	out := r.selectWhere(func(f *models.File) bool { return strings.HasPrefix(f.URL, prefix) })
	sort.SliceStable(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (r *memFiles) SelectByExtraTag(ctx context.Context, key, value string) ([]*models.File, error) {
	return r.selectWhere(func(f *models.File) bool {
		v, ok := f.Extra[key].(string)
		return ok && v == value
	}), nil
}

func (r *memFiles) SelectByObject(ctx context.Context, objectID string) ([]*models.File, error) {
	return r.selectWhere(func(f *models.File) bool { return f.ObjectID != nil && *f.ObjectID == objectID }), nil
}

// -------- repository manager --------

type fakeRepoManager struct {
	repomanager.RepositoryManager
	store *memStore

	mu       sync.Mutex
	bindings []string
}

func (m *fakeRepoManager) bind(db dbx.DBTX) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch db.(type) {
	case *sql.Tx:
		m.bindings = append(m.bindings, "tx")
	case *sql.DB:
		m.bindings = append(m.bindings, "db")
	default:
		m.bindings = append(m.bindings, fmt.Sprintf("%T", db))
	}
}

func (m *fakeRepoManager) resetBindings() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings = nil
}

func (m *fakeRepoManager) Objects(db dbx.DBTX) objects.Repository {
	m.bind(db)
	return &memObjects{s: m.store}
}

func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository {
	m.bind(db)
	return &memFiles{s: m.store}
}

// -------- blob store and cache --------

type fakeBlobStore struct {
	heads      map[string]*blobstore.ObjectInfo
	headErr    error
	presignErr error
	getCalls   int
	putCalls   int
	lastTTL    time.Duration
}

func (b *fakeBlobStore) HeadObject(ctx context.Context, bucket, key string) (*blobstore.ObjectInfo, error) {
	if b.headErr != nil {
		return nil, b.headErr
	}
	info, ok := b.heads[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("head %s/%s: %w", bucket, key, common.ErrorNotFound)
	}
	return info, nil
}

func (b *fakeBlobStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	b.getCalls++
	b.lastTTL = ttl
	if b.presignErr != nil {
		return "", b.presignErr
	}
	return fmt.Sprintf("https://s3.local/%s/%s?sig=get&n=%d", bucket, key, b.getCalls), nil
}

func (b *fakeBlobStore) PresignPut(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	b.putCalls++
	b.lastTTL = ttl
	if b.presignErr != nil {
		return "", b.presignErr
	}
	return fmt.Sprintf("https://s3.local/%s/%s?sig=put", bucket, key), nil
}

type fakeCache struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) Get(ctx context.Context, bucket, key string) (string, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.data[bucket+"/"+key]
	return v, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, bucket, key, url string, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.data[bucket+"/"+key] = url
	c.ttls[bucket+"/"+key] = ttl
	return nil
}

// -------- harness --------

type harness struct {
	db      *sql.DB
	mock    sqlmock.Sqlmock
	store   *memStore
	rm      *fakeRepoManager
	blobs   *fakeBlobStore
	cfg     *sc.Config
	ingest  *IngestService
	query   *QueryService
	locator *LocatorService
}

func newTestConfig() *sc.Config {
	return &sc.Config{
		StorageServer: "http://s3.local",
		PresignExpiry: time.Hour,
	}
}

func newHarness(t *testing.T, cfg *sc.Config, cache PresignCache) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if cfg == nil {
		cfg = newTestConfig()
	}
	store := newMemStore()
	rm := &fakeRepoManager{store: store}
	blobs := &fakeBlobStore{heads: map[string]*blobstore.ObjectInfo{}}
	logger := logging.Nop()

	loc := NewLocatorService(db, rm, cfg, blobs, cache, logger)
	return &harness{
		db:      db,
		mock:    mock,
		store:   store,
		rm:      rm,
		blobs:   blobs,
		cfg:     cfg,
		ingest:  NewIngestService(db, rm, cfg, loc, blobs, logger),
		query:   NewQueryService(db, rm),
		locator: loc,
	}
}

// expectTx queues one transaction that either commits or rolls back.
func (h *harness) expectTx(commit bool) {
	h.mock.ExpectBegin()
	if commit {
		h.mock.ExpectCommit()
	} else {
		h.mock.ExpectRollback()
	}
}

func (h *harness) verify(t *testing.T) {
	t.Helper()
	if err := h.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}
