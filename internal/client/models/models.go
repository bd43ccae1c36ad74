// Package models holds the client-side view of the objidx HTTP API.
package models

import "time"

// Locator says where an object's bytes live.
type Locator struct {
	Server string `json:"server"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	URL    string `json:"url,omitempty"`
}

// UploadRequest is the POST /upload/ body.
type UploadRequest struct {
	Checksum    string         `json:"checksum"`
	ObjSize     int64          `json:"obj_size"`
	Bucket      string         `json:"bucket"`
	URL         string         `json:"url"`
	Filename    string         `json:"filename,omitempty"`
	Direct      *bool          `json:"direct,omitempty"`
	Partial     bool           `json:"partial,omitempty"`
	MTime       *time.Time     `json:"mtime,omitempty"`
	Mime        string         `json:"mime,omitempty"`
	ExtraFile   map[string]any `json:"extra_file,omitempty"`
	ExtraObject map[string]any `json:"extra_object,omitempty"`
	ULUser      string         `json:"ul_user,omitempty"`
	ULSw        string         `json:"ul_sw,omitempty"`
	ULHost      string         `json:"ul_host,omitempty"`
}

type BriefFile struct {
	UUID string `json:"uuid"`
	URL  string `json:"url"`
	Link string `json:"link"`
}

type Object struct {
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
	Files     []BriefFile    `json:"files,omitempty"`
}

type File struct {
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
	Object  *Object        `json:"object,omitempty"`
}

type UploadLink struct {
	ObjectID string   `json:"object_id"`
	S3       *Locator `json:"s3"`
	Finished string   `json:"finished"`
}

// UploadResult is the POST /upload/ response. Upload is set when the bytes
// still have to be transferred, Download otherwise.
type UploadResult struct {
	File     File        `json:"file"`
	Exists   bool        `json:"exists"`
	Upload   *UploadLink `json:"upload,omitempty"`
	Download *Locator    `json:"download,omitempty"`
}

// APIError is the server's error body.
type APIError struct {
	Status   int    `json:"-"`
	Message  string `json:"error"`
	ObjectID string `json:"object_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.ObjectID != "" {
		return e.Message + " (object " + e.ObjectID + ")"
	}
	return e.Message
}
