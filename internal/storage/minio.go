package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures a MinioUploader.
type MinioOptions struct {
	// Endpoint may be a bare host[:port] or a URL; an http:// scheme
	// disables TLS.
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	BaseURL   string
}

// MinioUploader uploads objects to any S3-compatible service through the
// MinIO client.
type MinioUploader struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioUploader creates a MinIO client for the endpoint. Unlike the S3
// backend the bucket addressing style is detected by the client.
func NewMinioUploader(opts MinioOptions) (*MinioUploader, error) {
	host, secure, err := splitEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:      credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:     secure,
		Region:     opts.Region,
		MaxRetries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create minio client: %w", err)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		scheme := "https"
		if !secure {
			scheme = "http"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, host, opts.Bucket)
	}

	return &MinioUploader{client: client, bucket: opts.Bucket, baseURL: baseURL}, nil
}

// Upload puts content into the bucket under the object name.
func (u *MinioUploader) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	_, err := u.client.PutObject(ctx, u.bucket, req.ObjectName, req.Content, req.Size, minio.PutObjectOptions{
		ContentType: req.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: put object %q failed: %w", req.ObjectName, err)
	}

	return &UploadResult{
		ObjectName: req.ObjectName,
		URL:        publicURL(u.baseURL, req.ObjectName),
	}, nil
}

func splitEndpoint(endpoint string) (host string, secure bool, err error) {
	if endpoint == "" {
		return "", false, fmt.Errorf("storage: minio endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("storage: invalid minio endpoint %q: %w", endpoint, err)
	}
	return u.Host, u.Scheme == "https", nil
}
