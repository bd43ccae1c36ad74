package models

import "time"

// Uploader identifies who produced a File reference.
type Uploader struct {
	User     string `json:"ul_user,omitempty"`
	Software string `json:"ul_sw,omitempty"`
	Host     string `json:"ul_host,omitempty"`
}

// File is a named reference to an Object: "this URL produced this content".
// Direct and Partial are fixed at creation; only ModifiedAt and Extra may
// be filled in later, and only while unset.
type File struct {
	ID         string
	ObjectID   *string
	CreatedAt  time.Time
	ModifiedAt *time.Time
	URL        string
	Direct     bool
	Partial    bool
	Extra      map[string]any
	Uploader   Uploader
}
