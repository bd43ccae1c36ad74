// Package models defines server-side data models persisted in the database.
package models

import (
	"encoding/hex"
	"time"
)

// Object is a unique piece of content addressed by its checksum. The bytes
// live in object storage at (Bucket, Key).
type Object struct {
	ID        string
	Bucket    string
	Key       string
	Size      int64
	Checksum  []byte
	CreatedAt time.Time
	Mime      *string
	Completed bool
	Deleted   bool
	Extra     map[string]any
}

// ChecksumHex returns the lowercase hex form used on the wire and in keys.
func (o *Object) ChecksumHex() string {
	return hex.EncodeToString(o.Checksum)
}
