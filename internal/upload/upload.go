// Package upload turns image bytes into a public URL: it resolves the content
// type, generates a date-partitioned object key and performs a single PUT
// through a storage backend.
package upload

import (
	"bytes"
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tomasbasham/imgup/internal/objectkey"
	"github.com/tomasbasham/imgup/internal/storage"
)

// DefaultExtension is assumed for input that carries no file name.
const DefaultExtension = "png"

// contentTypes maps the image extensions accepted for upload to their MIME
// type.
var contentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"avif": "image/avif",
	"heic": "image/heic",
	"heif": "image/heif",
}

// Request is a single image to upload. It is consumed once by Upload.
type Request struct {
	Data []byte

	// Extension names the image format without a leading dot. When empty the
	// format is sniffed from Data.
	Extension string
}

// Result is the outcome of a successful upload.
type Result struct {
	URL       string
	ObjectKey string
}

// Client uploads images to a configured bucket. It holds no mutable state
// and is safe for concurrent use.
type Client struct {
	uploader storage.Uploader
	keys     objectkey.Generator
}

// NewClient returns a Client that writes through uploader and names objects
// with keys.
func NewClient(uploader storage.Uploader, keys objectkey.Generator) *Client {
	return &Client{uploader: uploader, keys: keys}
}

// Upload stores req.Data under a fresh object key and returns its public URL.
// The error is ErrUnknownContentType when the extension cannot be mapped, or a
// *StorageError when the PUT fails. There is no retry.
func (c *Client) Upload(ctx context.Context, req Request) (*Result, error) {
	ext := normaliseExtension(req.Extension)
	if ext == "" {
		ext = DetectExtension(req.Data)
	}

	contentType, err := ContentType(ext)
	if err != nil {
		return nil, err
	}

	key := c.keys.Generate(ext)
	uploaded, err := c.uploader.Upload(ctx, &storage.UploadRequest{
		ObjectName:  key,
		Content:     bytes.NewReader(req.Data),
		Size:        int64(len(req.Data)),
		ContentType: contentType,
	})
	if err != nil {
		return nil, &StorageError{Key: key, Err: err}
	}

	return &Result{URL: uploaded.URL, ObjectKey: key}, nil
}

// ContentType returns the MIME type for an image extension.
func ContentType(ext string) (string, error) {
	ext = normaliseExtension(ext)
	if ct, ok := contentTypes[ext]; ok {
		return ct, nil
	}
	return "", &UnknownContentTypeError{Extension: ext}
}

// DetectExtension sniffs data and returns the extension of the detected
// format without a leading dot, or "" if nothing is recognised.
func DetectExtension(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return normaliseExtension(mimetype.Detect(data).Extension())
}

func normaliseExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
