package services

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/objidx/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestMergeObject(t *testing.T) {
	tests := []struct {
		name        string
		existing    models.Object
		mime        *string
		extra       map[string]any
		wantMime    *string
		wantExtra   map[string]any
		wantChanged bool
	}{
		{
			name:        "fills unset fields",
			mime:        strPtr("video/mp4"),
			extra:       map[string]any{"codec": "h264"},
			wantMime:    strPtr("video/mp4"),
			wantExtra:   map[string]any{"codec": "h264"},
			wantChanged: true,
		},
		{
			name:      "never overwrites",
			existing:  models.Object{Mime: strPtr("video/webm"), Extra: map[string]any{"codec": "vp9"}},
			mime:      strPtr("video/mp4"),
			extra:     map[string]any{"codec": "h264"},
			wantMime:  strPtr("video/webm"),
			wantExtra: map[string]any{"codec": "vp9"},
		},
		{
			name:     "nil incoming keeps existing",
			existing: models.Object{Mime: strPtr("text/plain")},
			wantMime: strPtr("text/plain"),
		},
		{
			name:        "empty stored values count as unset",
			existing:    models.Object{Mime: strPtr(""), Extra: map[string]any{}},
			mime:        strPtr("image/png"),
			extra:       map[string]any{"w": float64(10)},
			wantMime:    strPtr("image/png"),
			wantExtra:   map[string]any{"w": float64(10)},
			wantChanged: true,
		},
		{
			name:      "empty incoming ignored",
			mime:      strPtr(""),
			extra:     map[string]any{},
			wantMime:  nil,
			wantExtra: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.existing
			changed := MergeObject(&o, tt.mime, tt.extra)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Empty(t, cmp.Diff(tt.wantMime, o.Mime))
			if tt.wantExtra == nil {
				assert.Empty(t, o.Extra)
			} else {
				assert.Empty(t, cmp.Diff(tt.wantExtra, o.Extra))
			}
		})
	}
}

func TestMergeObject_CopiesIncoming(t *testing.T) {
	in := map[string]any{"a": "b"}
	mime := "x/y"
	o := models.Object{}
	MergeObject(&o, &mime, in)

	in["a"] = "changed"
	mime = "changed"
	assert.Equal(t, "b", o.Extra["a"])
	assert.Equal(t, "x/y", *o.Mime)
}

func TestMergeFile(t *testing.T) {
	t1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	f := models.File{}
	assert.True(t, MergeFile(&f, &t1, map[string]any{"k": "v"}))
	assert.Equal(t, t1, *f.ModifiedAt)
	assert.Equal(t, "v", f.Extra["k"])

	assert.False(t, MergeFile(&f, &t2, map[string]any{"k": "other"}))
	assert.Equal(t, t1, *f.ModifiedAt)
	assert.Equal(t, "v", f.Extra["k"])

	g := models.File{}
	var zero time.Time
	assert.False(t, MergeFile(&g, &zero, nil))
	assert.Nil(t, g.ModifiedAt)
}

func TestMergeFile_IdentityUntouched(t *testing.T) {
	f := models.File{ID: "f1", URL: "u", Direct: true, Partial: false}
	mt := time.Now()
	MergeFile(&f, &mt, map[string]any{"direct": false})
	assert.Equal(t, "f1", f.ID)
	assert.Equal(t, "u", f.URL)
	assert.True(t, f.Direct)
	assert.False(t, f.Partial)
}
