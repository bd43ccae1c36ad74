package models

// Locator says where an object's bytes live. URL is set only when a
// presigned URL was minted for it.
type Locator struct {
	Server string `json:"server"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	URL    string `json:"url,omitempty"`
}

// IngestResult is the outcome of an ingestion request. Exactly one of
// Upload and Download is set.
type IngestResult struct {
	File     *File
	Object   *Object
	Exists   bool
	Upload   *Locator
	Download *Locator
}
