package upload

import (
	"errors"
	"fmt"
)

// ErrUnknownContentType is matched by every *UnknownContentTypeError.
var ErrUnknownContentType = errors.New("unknown content type")

// UnknownContentTypeError reports an extension with no MIME mapping.
type UnknownContentTypeError struct {
	Extension string
}

func (e *UnknownContentTypeError) Error() string {
	if e.Extension == "" {
		return "upload: unknown content type: no extension and format not recognised"
	}
	return fmt.Sprintf("upload: unknown content type for extension %q", e.Extension)
}

func (e *UnknownContentTypeError) Is(target error) bool {
	return target == ErrUnknownContentType
}

// StorageError reports a failed PUT to the bucket, whether from the network
// or from the storage service.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("upload: storage error for %q: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
