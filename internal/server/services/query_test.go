package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/objidx/internal/common"
	"github.com/dmitrijs2005/objidx/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFile(t *testing.T, h *harness, f *models.File) *models.File {
	t.Helper()
	require.NoError(t, (&memFiles{s: h.store}).Create(context.Background(), f))
	return f
}

func TestQuery_GetObjectWithFiles(t *testing.T) {
	h := newHarness(t, nil, nil)
	o := h.store.seedObject(&models.Object{Bucket: "B", Key: "k", Size: 3, Checksum: mustHex(t, checksumC), Completed: true})
	f1 := seedFile(t, h, &models.File{ObjectID: &o.ID, URL: "U1"})
	f2 := seedFile(t, h, &models.File{ObjectID: &o.ID, URL: "U2"})

	obj, files, err := h.query.GetObject(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, obj.ID)
	require.Len(t, files, 2)
	assert.Equal(t, f1.ID, files[0].ID)
	assert.Equal(t, f2.ID, files[1].ID)

	for _, b := range h.rm.bindings {
		assert.Equal(t, "db", b)
	}
}

func TestQuery_GetObjectErrors(t *testing.T) {
	h := newHarness(t, nil, nil)

	_, _, err := h.query.GetObject(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, _, err = h.query.GetObject(context.Background(), "8a0b7f8e-1111-4222-8333-444455556666")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestQuery_GetFile(t *testing.T) {
	h := newHarness(t, nil, nil)
	o := h.store.seedObject(&models.Object{Bucket: "B", Key: "k", Size: 3, Checksum: mustHex(t, checksumC)})
	f := seedFile(t, h, &models.File{ObjectID: &o.ID, URL: "U1", Direct: true})
	orphan := seedFile(t, h, &models.File{URL: "U2"})

	file, obj, err := h.query.GetFile(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, "U1", file.URL)
	require.NotNil(t, obj)
	assert.Equal(t, o.ID, obj.ID)

	file, obj, err = h.query.GetFile(context.Background(), orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, "U2", file.URL)
	assert.Nil(t, obj)

	_, _, err = h.query.GetFile(context.Background(), "8a0b7f8e-1111-4222-8333-444455556666")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestQuery_FindObjectsByChecksum(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.store.seedObject(&models.Object{Bucket: "B", Key: "old", Size: 3, Checksum: mustHex(t, checksumC), Deleted: true})
	h.store.seedObject(&models.Object{Bucket: "B", Key: "new", Size: 3, Checksum: mustHex(t, checksumC)})

	objs, err := h.query.FindObjectsByChecksum(context.Background(), checksumC)
	require.NoError(t, err)
	assert.Len(t, objs, 2)

	objs, err = h.query.FindObjectsByChecksum(context.Background(), "00ff")
	require.NoError(t, err)
	assert.Empty(t, objs)

	for _, bad := range []string{"", "xyz", "abc"} {
		_, err = h.query.FindObjectsByChecksum(context.Background(), bad)
		assert.ErrorIs(t, err, common.ErrorValidation, bad)
	}
}

func TestQuery_SearchFiles(t *testing.T) {
	h := newHarness(t, nil, nil)
	o := h.store.seedObject(&models.Object{Bucket: "B", Key: "k", Size: 3, Checksum: mustHex(t, checksumC)})
	seedFile(t, h, &models.File{ObjectID: &o.ID, URL: "file://host/a/2.mp4", Extra: map[string]any{"channel": "news"}})
	seedFile(t, h, &models.File{ObjectID: &o.ID, URL: "file://host/a/1.mp4", Extra: map[string]any{"channel": "sport"}})
	seedFile(t, h, &models.File{ObjectID: &o.ID, URL: "file://host/b/3.mp4", Extra: map[string]any{"n": float64(1)}})

	urls := func(fs []*models.File) []string {
		var out []string
		for _, f := range fs {
			out = append(out, f.URL)
		}
		return out
	}

	tests := []struct {
		name    string
		filter  FileFilter
		want    []string
		wantErr error
	}{
		{name: "exact url", filter: FileFilter{URL: "file://host/a/1.mp4"}, want: []string{"file://host/a/1.mp4"}},
		{name: "exact url no wildcard", filter: FileFilter{URL: "file://host/a/"}, want: nil},
		{name: "prefix", filter: FileFilter{URL: "file://host/a/*"}, want: []string{"file://host/a/1.mp4", "file://host/a/2.mp4"}},
		{name: "tag", filter: FileFilter{TagKey: "channel", TagValue: "news"}, want: []string{"file://host/a/2.mp4"}},
		{name: "tag with non-string value", filter: FileFilter{TagKey: "n", TagValue: "1"}, want: nil},
		{name: "both filters", filter: FileFilter{URL: "x", TagKey: "channel", TagValue: "news"}, wantErr: common.ErrConflictingFilters},
		{name: "no filter", filter: FileFilter{}, wantErr: common.ErrorValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.query.SearchFiles(context.Background(), tt.filter)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, urls(got))
		})
	}
}
