package storage

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSUploader uploads objects to a Google Cloud Storage bucket.
type GCSUploader struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCSUploader creates a GCSUploader for the given bucket. When baseURL is
// empty the object is assumed to be served from the public GCS host. opts are
// passed through to the underlying GCS client, allowing credential injection.
func NewGCSUploader(ctx context.Context, bucket, baseURL string, opts ...option.ClientOption) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create GCS client: %w", err)
	}
	if baseURL == "" {
		baseURL = gcsPublicHost + "/" + bucket
	}
	return &GCSUploader{client: client, bucket: bucket, baseURL: baseURL}, nil
}

// Upload writes content to GCS at the object name and returns its public URL.
func (u *GCSUploader) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	obj := u.client.Bucket(u.bucket).Object(req.ObjectName)
	w := obj.NewWriter(ctx)
	w.ContentType = req.ContentType

	// A single-request upload; the payload is never split into chunks.
	w.ChunkSize = 0

	if _, err := io.Copy(w, req.Content); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("storage: upload write failed for %q: %w", req.ObjectName, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("storage: upload close failed for %q: %w", req.ObjectName, err)
	}

	return &UploadResult{
		ObjectName: req.ObjectName,
		URL:        publicURL(u.baseURL, req.ObjectName),
	}, nil
}

// Close releases the underlying GCS client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
