package httpapi

import (
	"time"

	"github.com/dmitrijs2005/objidx/internal/common"
	"github.com/dmitrijs2005/objidx/internal/server/models"
	"github.com/dmitrijs2005/objidx/internal/server/services"
)

// uploadRequest is the POST /upload/ body. Pointer fields distinguish
// "absent" from the zero value.
type uploadRequest struct {
	Checksum    string         `json:"checksum"`
	ObjSize     *int64         `json:"obj_size"`
	Bucket      string         `json:"bucket"`
	URL         string         `json:"url"`
	Filename    string         `json:"filename,omitempty"`
	Direct      *bool          `json:"direct,omitempty"`
	Partial     bool           `json:"partial,omitempty"`
	MTime       *time.Time     `json:"mtime,omitempty"`
	Mime        *string        `json:"mime,omitempty"`
	ExtraFile   map[string]any `json:"extra_file,omitempty"`
	ExtraObject map[string]any `json:"extra_object,omitempty"`
	ULUser      string         `json:"ul_user,omitempty"`
	ULSw        string         `json:"ul_sw,omitempty"`
	ULHost      string         `json:"ul_host,omitempty"`
}

// toService converts the wire form. Direct defaults to true.
func (r *uploadRequest) toService() (*services.IngestRequest, error) {
	if r.ObjSize == nil {
		return nil, common.Validationf("obj_size is required")
	}
	direct := true
	if r.Direct != nil {
		direct = *r.Direct
	}
	return &services.IngestRequest{
		Checksum:    r.Checksum,
		Size:        *r.ObjSize,
		Bucket:      r.Bucket,
		URL:         r.URL,
		Filename:    r.Filename,
		Direct:      direct,
		Partial:     r.Partial,
		MTime:       r.MTime,
		Mime:        r.Mime,
		ExtraFile:   r.ExtraFile,
		ExtraObject: r.ExtraObject,
		Uploader:    models.Uploader{User: r.ULUser, Software: r.ULSw, Host: r.ULHost},
	}, nil
}

type completeRequest struct {
	Completed bool `json:"completed"`
}

type briefFile struct {
	UUID string `json:"uuid"`
	URL  string `json:"url"`
	Link string `json:"link"`
}

type objectView struct {
	UUID      string         `json:"uuid"`
	Bucket    string         `json:"bucket"`
	Key       string         `json:"key"`
	ObjSize   int64          `json:"obj_size"`
	Checksum  string         `json:"checksum"`
	CTime     time.Time      `json:"ctime"`
	Mime      *string        `json:"mime,omitempty"`
	Completed bool           `json:"completed"`
	Deleted   bool           `json:"deleted"`
	Extra     map[string]any `json:"extra,omitempty"`
	URL       string         `json:"url"`
	Download  string         `json:"download"`
	Files     []briefFile    `json:"files,omitempty"`
}

type fileView struct {
	UUID    string         `json:"uuid"`
	URL     string         `json:"url"`
	CTime   time.Time      `json:"ctime"`
	MTime   *time.Time     `json:"mtime,omitempty"`
	Direct  bool           `json:"direct"`
	Partial bool           `json:"partial"`
	Extra   map[string]any `json:"extra,omitempty"`
	ULUser  string         `json:"ul_user,omitempty"`
	ULSw    string         `json:"ul_sw,omitempty"`
	ULHost  string         `json:"ul_host,omitempty"`
	Object  *objectView    `json:"object,omitempty"`
}

type uploadLink struct {
	ObjectID string          `json:"object_id"`
	S3       *models.Locator `json:"s3"`
	Finished string          `json:"finished"`
}

type uploadResult struct {
	File     fileView        `json:"file"`
	Exists   bool            `json:"exists"`
	Upload   *uploadLink     `json:"upload,omitempty"`
	Download *models.Locator `json:"download,omitempty"`
}

type errorBody struct {
	Error    string `json:"error"`
	ObjectID string `json:"object_id,omitempty"`
}

func objectPath(id string) string { return "/object/" + id + "/" }

func filePath(id string) string { return "/file/" + id + "/" }

func newObjectView(o *models.Object, files []*models.File) *objectView {
	v := &objectView{
		UUID:      o.ID,
		Bucket:    o.Bucket,
		Key:       o.Key,
		ObjSize:   o.Size,
		Checksum:  o.ChecksumHex(),
		CTime:     o.CreatedAt,
		Mime:      o.Mime,
		Completed: o.Completed,
		Deleted:   o.Deleted,
		Extra:     o.Extra,
		URL:       objectPath(o.ID),
		Download:  objectPath(o.ID) + "download",
	}
	for _, f := range files {
		v.Files = append(v.Files, briefFile{UUID: f.ID, URL: filePath(f.ID), Link: f.URL})
	}
	return v
}

func newFileView(f *models.File, o *models.Object) fileView {
	v := fileView{
		UUID:    f.ID,
		URL:     f.URL,
		CTime:   f.CreatedAt,
		MTime:   f.ModifiedAt,
		Direct:  f.Direct,
		Partial: f.Partial,
		Extra:   f.Extra,
		ULUser:  f.Uploader.User,
		ULSw:    f.Uploader.Software,
		ULHost:  f.Uploader.Host,
	}
	if o != nil {
		v.Object = newObjectView(o, nil)
	}
	return v
}

func newUploadResult(res *models.IngestResult) *uploadResult {
	out := &uploadResult{
		File:     newFileView(res.File, nil),
		Exists:   res.Exists,
		Download: res.Download,
	}
	if res.Upload != nil {
		out.Upload = &uploadLink{
			ObjectID: res.Object.ID,
			S3:       res.Upload,
			Finished: objectPath(res.Object.ID),
		}
	}
	return out
}
