package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/objidx/internal/client/client"
	"github.com/dmitrijs2005/objidx/internal/client/config"
	"github.com/dmitrijs2005/objidx/internal/client/journal"
	"github.com/dmitrijs2005/objidx/internal/client/models"
	"github.com/dmitrijs2005/objidx/internal/client/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	client.Client

	uploads  []*models.UploadRequest
	exists   bool
	puts     map[string]string
	complete []string
	search   [][3]string
	objects  map[string]*models.Object
	files    map[string]*models.File
	blobs    map[string]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		puts:    map[string]string{},
		objects: map[string]*models.Object{},
		files:   map[string]*models.File{},
		blobs:   map[string]string{},
	}
}

func (f *fakeAPI) Upload(_ context.Context, req *models.UploadRequest) (*models.UploadResult, error) {
	f.uploads = append(f.uploads, req)
	res := &models.UploadResult{File: models.File{UUID: "f-" + req.Filename, URL: req.URL}, Exists: f.exists}
	if f.exists {
		res.Download = &models.Locator{Bucket: req.Bucket, Key: "k"}
		return res, nil
	}
	res.Upload = &models.UploadLink{
		ObjectID: "o-" + req.Filename,
		S3:       &models.Locator{Bucket: req.Bucket, Key: "k", URL: "http://put/" + req.Filename},
	}
	return res, nil
}

func (f *fakeAPI) PutPresigned(_ context.Context, u string, body io.Reader, _ int64, _ string) error {
	b, _ := io.ReadAll(body)
	f.puts[u] = string(b)
	return nil
}

func (f *fakeAPI) Complete(_ context.Context, id string) (*models.Object, error) {
	f.complete = append(f.complete, id)
	return &models.Object{UUID: id, Completed: true}, nil
}

func (f *fakeAPI) SearchFiles(_ context.Context, u, k, v string) ([]*models.File, error) {
	f.search = append(f.search, [3]string{u, k, v})
	return []*models.File{{UUID: "f1", URL: "file://h/a"}}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, id string) (*models.Object, error) {
	o, ok := f.objects[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	return o, nil
}

func (f *fakeAPI) FindObjects(_ context.Context, sum string) ([]*models.Object, error) {
	var out []*models.Object
	for _, o := range f.objects {
		if o.Checksum == sum {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetFile(_ context.Context, id string) (*models.File, error) {
	fl, ok := f.files[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	return fl, nil
}

func (f *fakeAPI) Download(_ context.Context, id string, _ bool) (*models.Locator, error) {
	return &models.Locator{Bucket: "b", Key: id, URL: "http://get/" + id}, nil
}

func (f *fakeAPI) GetPresigned(_ context.Context, u string) (io.ReadCloser, error) {
	v, ok := f.blobs[u]
	if !ok {
		return nil, client.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func withFakes(t *testing.T, api *fakeAPI) string {
	t.Helper()
	t.Setenv("OBJIDX_JOURNAL", filepath.Join(t.TempDir(), "journal.db"))
	t.Setenv("OBJIDX_S3_ACCESS_KEY", "")

	oldClient := newAPIClient
	t.Cleanup(func() { newAPIClient = oldClient })
	newAPIClient = func(*config.Config) client.Client { return api }

	return os.Getenv("OBJIDX_JOURNAL")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(context.Background(), args, &out)
	return out.String(), err
}

func TestUpload_NewAndExisting(t *testing.T) {
	api := newFakeAPI()
	withFakes(t, api)
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o600))

	out, err := run(t, "upload", p, "-t", "env=prod", "-t", "team=x", "--host", "box", "-o", "json")
	require.NoError(t, err)

	var lines []uploadLine
	require.NoError(t, json.Unmarshal([]byte(out), &lines))
	require.Len(t, lines, 1)
	assert.True(t, lines[0].Uploaded)
	assert.Equal(t, "o-a.txt", lines[0].ObjectID)

	require.Len(t, api.uploads, 1)
	req := api.uploads[0]
	assert.Equal(t, map[string]any{"env": "prod", "team": "x"}, req.ExtraFile)
	assert.Equal(t, "file://box"+filepath.ToSlash(p), req.URL)
	assert.Equal(t, "hello", api.puts["http://put/a.txt"])
	assert.Equal(t, []string{"o-a.txt"}, api.complete)

	api.exists = true
	out, err = run(t, "upload", p, "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "deduplicated")
	assert.Len(t, api.complete, 1)
}

func TestUpload_Validation(t *testing.T) {
	withFakes(t, newFakeAPI())

	_, err := run(t, "upload")
	require.Error(t, err)

	_, err = run(t, "upload", "a", "b", "--url", "http://x")
	require.Error(t, err)

	_, err = run(t, "upload", "a", "-t", "bad")
	require.Error(t, err)
}

func TestSearch(t *testing.T) {
	api := newFakeAPI()
	withFakes(t, api)

	_, err := run(t, "search", "--url", "file://h/*", "-o", "json")
	require.NoError(t, err)
	_, err = run(t, "search", "-t", "env=prod", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, [][3]string{{"file://h/*", "", ""}, {"", "env", "prod"}}, api.search)

	_, err = run(t, "search")
	require.Error(t, err)
	_, err = run(t, "search", "--url", "u", "-t", "a=b")
	require.Error(t, err)
}

func TestObjectAndFile(t *testing.T) {
	api := newFakeAPI()
	api.objects["o1"] = &models.Object{UUID: "o1", Checksum: "abcd", Bucket: "b", Key: "k",
		Files: []models.BriefFile{{UUID: "f1", Link: "file://h/a"}}}
	api.files["f1"] = &models.File{UUID: "f1", URL: "file://h/a", Object: api.objects["o1"]}
	withFakes(t, api)

	out, err := run(t, "object", "o1", "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "CHECKSUM")
	assert.Contains(t, out, "file://h/a")

	out, err = run(t, "object", "--checksum", "abcd", "-o", "json")
	require.NoError(t, err)
	var objs []models.Object
	require.NoError(t, json.Unmarshal([]byte(out), &objs))
	require.Len(t, objs, 1)

	out, err = run(t, "file", "f1", "-o", "json")
	require.NoError(t, err)
	var f models.File
	require.NoError(t, json.Unmarshal([]byte(out), &f))
	require.NotNil(t, f.Object)
	assert.Equal(t, "o1", f.Object.UUID)

	_, err = run(t, "object", "missing")
	assert.ErrorIs(t, err, client.ErrNotFound)

	_, err = run(t, "object")
	require.Error(t, err)
}

func TestDownload_ToFile(t *testing.T) {
	api := newFakeAPI()
	api.blobs["http://get/o1"] = "payload"
	withFakes(t, api)
	dest := filepath.Join(t.TempDir(), "out.bin")

	_, err := run(t, "download", "o1", "-O", dest)
	require.NoError(t, err)
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	out, err := run(t, "download", "o1")
	require.NoError(t, err)
	assert.Equal(t, "payload", out)

	_, err = run(t, "download", "o2", "-O", filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestComplete(t *testing.T) {
	api := newFakeAPI()
	journalPath := withFakes(t, api)

	j, err := journal.Open(context.Background(), journalPath)
	require.NoError(t, err)
	require.NoError(t, j.RecordPending(context.Background(), journal.Upload{ObjectID: "p1", FileID: "f", Path: "/p", URL: "u"}))
	require.NoError(t, j.Close())

	out, err := run(t, "complete", "--pending")
	require.NoError(t, err)
	assert.Contains(t, out, "completed 1 pending upload(s)")

	_, err = run(t, "complete", "o9", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "o9"}, api.complete)

	_, err = run(t, "complete")
	require.Error(t, err)
}

func TestNewPrinter(t *testing.T) {
	old := isTerminal
	t.Cleanup(func() { isTerminal = old })

	p, err := newPrinter(&bytes.Buffer{}, "auto")
	require.NoError(t, err)
	assert.True(t, p.json, "non-files are never terminals")

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	isTerminal = func(int) bool { return true }
	p, err = newPrinter(f, "")
	require.NoError(t, err)
	assert.False(t, p.json)

	isTerminal = func(int) bool { return false }
	p, err = newPrinter(f, "auto")
	require.NoError(t, err)
	assert.True(t, p.json)

	_, err = newPrinter(f, "xml")
	require.Error(t, err)
}

func TestNewApp_UsesBlobStoreWithCredentials(t *testing.T) {
	oldStore, oldClient := newBlobStore, newAPIClient
	t.Cleanup(func() { newBlobStore, newAPIClient = oldStore, oldClient })

	called := false
	newBlobStore = func(context.Context, *config.Config) (services.BlobStore, error) {
		called = true
		return nil, nil
	}
	newAPIClient = func(*config.Config) client.Client { return newFakeAPI() }

	app, err := NewApp(context.Background(), &config.Config{Output: "json", S3AccessKey: "AK"}, io.Discard)
	require.NoError(t, err)
	defer app.Close()
	assert.True(t, called)
}
