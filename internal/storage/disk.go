package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// LocalUploader writes objects to a directory on the local filesystem. It is
// useful when the directory is itself served by a web server: with a base URL
// configured the returned URL points there, otherwise it is a file:// URL.
type LocalUploader struct {
	baseDir string
	baseURL string
}

// NewLocalUploader creates a LocalUploader that writes objects under baseDir.
// The directory is created if it does not already exist.
func NewLocalUploader(baseDir, baseURL string) (*LocalUploader, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create local base directory %q: %w", baseDir, err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to resolve absolute path for %q: %w", baseDir, err)
	}
	return &LocalUploader{baseDir: abs, baseURL: baseURL}, nil
}

// Upload writes content to baseDir/objectName, creating any intermediate
// directories as needed.
func (u *LocalUploader) Upload(_ context.Context, req *UploadRequest) (*UploadResult, error) {
	dest := filepath.Join(u.baseDir, filepath.FromSlash(req.ObjectName))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create directory for %q: %w", req.ObjectName, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create file %q: %w", dest, err)
	}

	if _, err := io.Copy(f, req.Content); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return nil, fmt.Errorf("storage: failed to write file %q: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dest)
		return nil, fmt.Errorf("storage: failed to close file %q: %w", dest, err)
	}

	location := publicURL(u.baseURL, req.ObjectName)
	if u.baseURL == "" {
		location = (&url.URL{Scheme: "file", Path: filepath.ToSlash(dest)}).String()
	}

	return &UploadResult{
		ObjectName: req.ObjectName,
		URL:        location,
	}, nil
}
