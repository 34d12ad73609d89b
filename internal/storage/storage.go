// Package storage provides an abstraction for putting image objects into a
// bucket and deriving the public URL they are served from. The S3
// implementation is the production backend; MinIO, GCS and local-disk
// implementations satisfy the same interface.
package storage

import (
	"context"
	"io"
	"strings"
)

// Uploader persists objects to a storage backend and returns public URLs.
type Uploader interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)
}

type UploadRequest struct {
	// ObjectName is the object path within the configured bucket.
	ObjectName string

	// Content is the data to be uploaded.
	Content io.Reader

	// Size is the exact byte length of Content, or -1 if unknown.
	Size int64

	// ContentType is the MIME type of the content, e.g. "image/png".
	ContentType string
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	// ObjectName is the object path within the configured bucket.
	ObjectName string

	// URL is where the object is publicly served.
	URL string
}

// publicURL joins a base URL and an object name with exactly one slash.
func publicURL(base, objectName string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(objectName, "/")
}
