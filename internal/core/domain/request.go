package domain

import (
	"strings"
	"time"
)

const (
	EventTypeProcessRequest = "content.process.request"
	EventTypeProcessSuccess = "content.process.success"
	EventTypeProcessFailed  = "content.process.failed"
)

type ContentType string

const (
	ContentTypeDocument ContentType = "document"
	ContentTypeImage    ContentType = "image"
	ContentTypeVideo    ContentType = "video"
	ContentTypeAudio    ContentType = "audio"
)

// KnownContentTypes lists every content type accepted on the inbound channel.
func KnownContentTypes() []ContentType {
	return []ContentType{ContentTypeDocument, ContentTypeImage, ContentTypeVideo, ContentTypeAudio}
}

// ObjectLocation addresses a blob in object storage.
type ObjectLocation struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (l ObjectLocation) String() string {
	return l.Bucket + "/" + l.Key
}

// ProcessRequest is a decoded unit of work. Redeliveries of the same logical
// request carry the same EventID.
type ProcessRequest struct {
	EventID     string
	ContentID   string
	ContentType ContentType
	FileName    string
	Source      ObjectLocation
	MimeType    string
	FileSize    int64
	ProjectID   string
	UserID      string
	Timestamp   time.Time
}

// Metadata is the slice of the request handed to transformers.
func (r ProcessRequest) Metadata() DocumentMetadata {
	return DocumentMetadata{
		ContentID:   r.ContentID,
		ContentType: r.ContentType,
		FileName:    r.FileName,
		MimeType:    r.MimeType,
		FileSize:    r.FileSize,
		ProjectID:   r.ProjectID,
		UserID:      r.UserID,
	}
}

// DocumentMetadata describes a source document to a transformer.
type DocumentMetadata struct {
	ContentID   string
	ContentType ContentType
	FileName    string
	MimeType    string
	FileSize    int64
	ProjectID   string
	UserID      string
}

// Extension returns the lower-cased file extension without the dot.
func (m DocumentMetadata) Extension() string {
	idx := strings.LastIndex(m.FileName, ".")
	if idx < 0 || idx == len(m.FileName)-1 {
		return ""
	}
	return strings.ToLower(m.FileName[idx+1:])
}

// ResultKey is the storage key of the chunk set for contentID. It is a pure
// function of contentID so that redelivered attempts overwrite one object.
func ResultKey(prefix, contentID string) string {
	return prefix + contentID + "-chunks.json"
}
